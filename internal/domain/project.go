package domain

import "time"

// Project is a tenant workspace owned by exactly one user. The subdomain
// starts empty and is assigned exactly once when provisioning succeeds.
type Project struct {
	ID           string
	OwnerUserID  string
	Name         string
	Description  string
	DBType       string
	InstanceKind string
	Subdomain    string
	CreatedAt    time.Time
	IsDeleted    bool
}

// ProjectCredential stores the encrypted connection credentials for a
// project. It is created and soft-deleted together with its Project.
type ProjectCredential struct {
	ProjectID     string
	OwnerUserID   string
	EncryptedBlob string
	IsDeleted     bool
}

// User is the minimal identity record the provisioner reads: the stored
// password hash doubles as credential-vault key material.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}
