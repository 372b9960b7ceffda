package repository

import (
	"context"

	"github.com/nabilpatel4012/smaapi/internal/domain"
)

// RegisterFunc performs the external subdomain registration for a project
// mid-transaction and returns the assigned subdomain. An error aborts the
// surrounding transaction so no half-provisioned project is ever committed.
type RegisterFunc func(ctx context.Context, projectID string) (string, error)

// UserRepository reads identity records.
type UserRepository interface {
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
}

// ProjectRepository persists projects and their credentials.
type ProjectRepository interface {
	// ProvisionProject inserts the project and credential rows, invokes
	// register before commit, and records the returned subdomain, all in
	// one transaction.
	ProvisionProject(ctx context.Context, project *domain.Project, cred *domain.ProjectCredential, register RegisterFunc) error
	GetProjectByID(ctx context.Context, ownerID, projectID string) (*domain.Project, error)
	ListProjectsByOwner(ctx context.Context, ownerID string, limit, offset int) ([]domain.Project, error)
	GetProjectCredential(ctx context.Context, ownerID, projectID string) (*domain.ProjectCredential, error)
	// SoftDeleteProject marks the project and its credential deleted in one
	// transaction.
	SoftDeleteProject(ctx context.Context, ownerID, projectID string) error
	// HardDeleteProject irreversibly removes the project and credential rows.
	HardDeleteProject(ctx context.Context, ownerID, projectID string) error
}

// APIDefinitionRepository persists the authoritative API rows.
type APIDefinitionRepository interface {
	CreateAPIDefinition(ctx context.Context, def *domain.APIDefinition) error
	GetAPIDefinitionByID(ctx context.Context, ownerID, apiID string) (*domain.APIDefinition, error)
	ListAPIDefinitionsByProject(ctx context.Context, ownerID, projectID string, limit, offset int) ([]domain.APIDefinition, error)
	// UpdateAPIDefinition applies the patch and, when bumpVersion is set,
	// increments version_number atomically. It returns the resulting row so
	// the document mirror can copy the version instead of deriving its own.
	UpdateAPIDefinition(ctx context.Context, ownerID, apiID string, patch APIDefinitionPatch, bumpVersion bool) (*domain.APIDefinition, error)
	UpdateAPIStatus(ctx context.Context, ownerID, apiID, status string) error
	// SoftDeleteAPIDefinition marks the row deleted and rewrites its path
	// with a uniquifying suffix so the endpoint can be re-created later.
	SoftDeleteAPIDefinition(ctx context.Context, ownerID, apiID, suffixedPath string) error
}

// APIDefinitionPatch carries optional field updates; nil means unchanged.
type APIDefinitionPatch struct {
	Name         *string
	HTTPMethod   *string
	EndpointPath *string
	Description  *string
	Status       *string
}

// APIDocumentRepository mirrors API definitions in the document store.
type APIDocumentRepository interface {
	InsertAPIDocument(ctx context.Context, doc *domain.APIDocument) error
	GetAPIDocument(ctx context.Context, ownerID, apiID string) (*domain.APIDocument, error)
	// UpdateAPIDocument replaces mutable fields; when snapshot is non-nil it
	// is appended to the version history in the same write.
	UpdateAPIDocument(ctx context.Context, ownerID, apiID string, doc *domain.APIDocument, snapshot *domain.VersionSnapshot) error
	UpdateDocumentStatus(ctx context.Context, ownerID, apiID, status string) error
	SetContainerInstance(ctx context.Context, ownerID, apiID string, instance *domain.ContainerInstance) error
	SoftDeleteAPIDocument(ctx context.Context, ownerID, apiID, suffixedPath string) error
	ReplaceAPIDocument(ctx context.Context, doc *domain.APIDocument) error
}
