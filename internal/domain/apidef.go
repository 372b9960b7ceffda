package domain

import (
	"time"

	"github.com/nabilpatel4012/smaapi/internal/schema"
)

// API lifecycle states.
const (
	StatusDraft     = "draft"
	StatusActive    = "active"
	StatusInactive  = "inactive"
	StatusSuspended = "suspended"
)

// APIDefinition is the authoritative relational record of a declared API.
// (project_id, endpoint_path, http_method, owner_user_id) is unique among
// non-deleted rows.
type APIDefinition struct {
	ID            string
	ProjectID     string
	OwnerUserID   string
	Name          string
	HTTPMethod    string
	EndpointPath  string
	Description   string
	VersionNumber int
	Status        string
	CreatedAt     time.Time
	IsDeleted     bool
}

// APIDocument mirrors an APIDefinition in the document store, carrying the
// rich schema payload the relational row does not. The relational row wins
// on any conflict; the document is enrichment only.
type APIDocument struct {
	APIID         string                      `bson:"api_id"`
	ProjectID     string                      `bson:"project_id"`
	OwnerUserID   string                      `bson:"owner_user_id"`
	Name          string                      `bson:"name"`
	HTTPMethod    string                      `bson:"http_method"`
	EndpointPath  string                      `bson:"endpoint_path"`
	Description   string                      `bson:"description,omitempty"`
	VersionNumber int                         `bson:"version_number"`
	Status        string                      `bson:"status"`
	BodySchema    map[string]schema.FieldSpec `bson:"body_schema,omitempty"`
	QuerySchema   map[string]schema.FieldSpec `bson:"query_schema,omitempty"`
	Filters       []string                    `bson:"filters,omitempty"`
	Versions      []VersionSnapshot           `bson:"versions"`
	Container     *ContainerInstance          `bson:"container,omitempty"`
	IsDeleted     bool                        `bson:"is_deleted"`
}

// VersionSnapshot freezes the contract-relevant fields of an API document
// immediately before a contract-changing update is applied.
type VersionSnapshot struct {
	VersionNumber int                         `bson:"version_number"`
	HTTPMethod    string                      `bson:"http_method"`
	EndpointPath  string                      `bson:"endpoint_path"`
	Description   string                      `bson:"description,omitempty"`
	BodySchema    map[string]schema.FieldSpec `bson:"body_schema,omitempty"`
	QuerySchema   map[string]schema.FieldSpec `bson:"query_schema,omitempty"`
	SnapshotAt    time.Time                   `bson:"snapshot_at"`
}

// ContainerInstance records the runtime artifacts of a materialized API.
// It exists only while the API is active.
type ContainerInstance struct {
	APIID         string `bson:"api_id"`
	ContainerID   string `bson:"container_id"`
	ContainerName string `bson:"container_name"`
	HostPort      int    `bson:"host_port"`
	Directory     string `bson:"directory"`
}
