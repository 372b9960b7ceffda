// Package apidef validates and persists API definitions, keeping the
// relational row authoritative and mirroring the rich payload into the
// document store with an append-only version history.
package apidef

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/nabilpatel4012/smaapi/internal/domain"
	"github.com/nabilpatel4012/smaapi/internal/repository"
	"github.com/nabilpatel4012/smaapi/internal/schema"
	"github.com/nabilpatel4012/smaapi/pkg/apperr"
)

var allowedMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "PATCH": true, "DELETE": true,
}

// Paths are baked into generated source and table-name derivation, so the
// charset is restricted to plain segment characters.
var endpointPathRe = regexp.MustCompile(`^/[a-zA-Z0-9_/-]*$`)

// Statuses a caller may set directly. Active is reached only through
// materialization, which owns the container lifecycle.
var settableStatuses = map[string]bool{
	domain.StatusDraft: true, domain.StatusInactive: true, domain.StatusSuspended: true,
}

func validPath(path string) error {
	if !strings.HasPrefix(path, "/") {
		return apperr.New(apperr.CodeInvalid, "endpoint path must start with /")
	}
	if !endpointPathRe.MatchString(path) {
		return apperr.Newf(apperr.CodeInvalid, "endpoint path %q contains unsupported characters", path)
	}
	return nil
}

func validSchemas(body, query map[string]schema.FieldSpec) error {
	if err := schema.ValidateBody(body); err != nil {
		return apperr.Wrap(err, apperr.CodeInvalid, "body schema rejected")
	}
	if err := schema.ValidateBody(query); err != nil {
		return apperr.Wrap(err, apperr.CodeInvalid, "query schema rejected")
	}
	return nil
}

// CreateInput carries a new API definition.
type CreateInput struct {
	ProjectID    string
	OwnerUserID  string
	Name         string
	HTTPMethod   string
	EndpointPath string
	Description  string
	BodySchema   map[string]schema.FieldSpec
	QuerySchema  map[string]schema.FieldSpec
	Filters      []string
}

// UpdateInput carries optional field updates; nil means unchanged.
type UpdateInput struct {
	Name         *string
	HTTPMethod   *string
	EndpointPath *string
	Description  *string
	Status       *string
	BodySchema   map[string]schema.FieldSpec
	QuerySchema  map[string]schema.FieldSpec
	Filters      []string
}

// Definition pairs the authoritative row with its document enrichment.
type Definition struct {
	domain.APIDefinition
	BodySchema  map[string]schema.FieldSpec
	QuerySchema map[string]schema.FieldSpec
	Filters     []string
	Versions    []domain.VersionSnapshot
	Container   *domain.ContainerInstance
}

// Service manages API definitions and their version history.
type Service struct {
	defs     repository.APIDefinitionRepository
	docs     repository.APIDocumentRepository
	projects repository.ProjectRepository
	logger   *slog.Logger
}

// New returns an apidef service.
func New(defs repository.APIDefinitionRepository, docs repository.APIDocumentRepository, projects repository.ProjectRepository, logger *slog.Logger) Service {
	return Service{defs: defs, docs: docs, projects: projects, logger: logger}
}

func validate(input CreateInput) error {
	if strings.TrimSpace(input.ProjectID) == "" {
		return apperr.New(apperr.CodeInvalid, "project id is required")
	}
	if strings.TrimSpace(input.Name) == "" {
		return apperr.New(apperr.CodeInvalid, "api name is required")
	}
	if !allowedMethods[input.HTTPMethod] {
		return apperr.Newf(apperr.CodeInvalid, "unsupported http method %q", input.HTTPMethod)
	}
	if err := validPath(input.EndpointPath); err != nil {
		return err
	}
	return validSchemas(input.BodySchema, input.QuerySchema)
}

// Create validates before any I/O, inserts the authoritative row at
// version 1 in draft, then mirrors the document. A mirror failure is
// surfaced loudly so the caller can retry the sync; the relational row
// stays because it is the source of truth.
func (s Service) Create(ctx context.Context, input CreateInput) (*Definition, error) {
	if err := validate(input); err != nil {
		return nil, err
	}
	if _, err := s.projects.GetProjectByID(ctx, input.OwnerUserID, input.ProjectID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.New(apperr.CodeNotFound, "project not found")
		}
		return nil, err
	}

	def := &domain.APIDefinition{
		ID:            uuid.NewString(),
		ProjectID:     input.ProjectID,
		OwnerUserID:   input.OwnerUserID,
		Name:          input.Name,
		HTTPMethod:    input.HTTPMethod,
		EndpointPath:  input.EndpointPath,
		Description:   input.Description,
		VersionNumber: 1,
		Status:        domain.StatusDraft,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.defs.CreateAPIDefinition(ctx, def); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperr.Newf(apperr.CodeConflict, "endpoint %s %s already defined", input.HTTPMethod, input.EndpointPath)
		}
		return nil, fmt.Errorf("create api definition: %w", err)
	}

	doc := mirrorOf(def)
	doc.BodySchema = input.BodySchema
	doc.QuerySchema = input.QuerySchema
	doc.Filters = input.Filters
	if err := s.docs.InsertAPIDocument(ctx, doc); err != nil {
		s.logger.Error("document mirror write failed after relational commit", "api_id", def.ID, "error", err)
		return nil, apperr.Wrap(err, apperr.CodeDocSyncFailed, "api created but document sync incomplete; retry sync")
	}
	s.logger.Info("api definition created", "api_id", def.ID, "project_id", def.ProjectID, "version", def.VersionNumber)
	return merge(def, doc), nil
}

// contractChanging reports whether the update alters the request/response
// contract and therefore requires a version bump and snapshot.
func contractChanging(input UpdateInput) bool {
	return input.EndpointPath != nil || input.HTTPMethod != nil || input.Description != nil
}

// Update applies field changes. Contract-changing updates bump the
// relational version inside the transaction and snapshot the pre-update
// document fields into history; the document version is always copied
// from the relational result, never incremented independently.
func (s Service) Update(ctx context.Context, ownerID, apiID string, input UpdateInput) (*Definition, error) {
	if input.HTTPMethod != nil && !allowedMethods[*input.HTTPMethod] {
		return nil, apperr.Newf(apperr.CodeInvalid, "unsupported http method %q", *input.HTTPMethod)
	}
	if input.EndpointPath != nil {
		if err := validPath(*input.EndpointPath); err != nil {
			return nil, err
		}
	}
	if input.Status != nil && !settableStatuses[*input.Status] {
		if *input.Status == domain.StatusActive {
			return nil, apperr.New(apperr.CodeInvalid, "status active is set by materialization, not by update")
		}
		return nil, apperr.Newf(apperr.CodeInvalid, "unknown status %q", *input.Status)
	}
	if err := validSchemas(input.BodySchema, input.QuerySchema); err != nil {
		return nil, err
	}

	current, err := s.docs.GetAPIDocument(ctx, ownerID, apiID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.New(apperr.CodeNotFound, "api definition not found")
		}
		return nil, err
	}

	bump := contractChanging(input)
	patch := repository.APIDefinitionPatch{
		Name:         input.Name,
		HTTPMethod:   input.HTTPMethod,
		EndpointPath: input.EndpointPath,
		Description:  input.Description,
		Status:       input.Status,
	}
	def, err := s.defs.UpdateAPIDefinition(ctx, ownerID, apiID, patch, bump)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.New(apperr.CodeNotFound, "api definition not found")
		}
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperr.New(apperr.CodeConflict, "endpoint already defined")
		}
		return nil, fmt.Errorf("update api definition: %w", err)
	}

	var snapshot *domain.VersionSnapshot
	if bump {
		snapshot = &domain.VersionSnapshot{
			VersionNumber: current.VersionNumber,
			HTTPMethod:    current.HTTPMethod,
			EndpointPath:  current.EndpointPath,
			Description:   current.Description,
			BodySchema:    current.BodySchema,
			QuerySchema:   current.QuerySchema,
			SnapshotAt:    time.Now().UTC(),
		}
	}

	doc := mirrorOf(def)
	doc.BodySchema = current.BodySchema
	doc.QuerySchema = current.QuerySchema
	doc.Filters = current.Filters
	if input.BodySchema != nil {
		doc.BodySchema = input.BodySchema
	}
	if input.QuerySchema != nil {
		doc.QuerySchema = input.QuerySchema
	}
	if input.Filters != nil {
		doc.Filters = input.Filters
	}
	if err := s.docs.UpdateAPIDocument(ctx, ownerID, apiID, doc, snapshot); err != nil {
		s.logger.Error("document mirror update failed", "api_id", apiID, "error", err)
		return nil, apperr.Wrap(err, apperr.CodeDocSyncFailed, "api updated but document sync incomplete; retry sync")
	}
	s.logger.Info("api definition updated", "api_id", apiID, "version", def.VersionNumber, "contract_change", bump)
	return merge(def, doc), nil
}

// Get returns the definition with its document enrichment.
func (s Service) Get(ctx context.Context, ownerID, apiID string) (*Definition, error) {
	def, err := s.defs.GetAPIDefinitionByID(ctx, ownerID, apiID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.New(apperr.CodeNotFound, "api definition not found")
		}
		return nil, err
	}
	doc, err := s.docs.GetAPIDocument(ctx, ownerID, apiID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Mirror missing: relational truth still answers, enrichment empty.
			s.logger.Warn("api document missing, serving relational row only", "api_id", apiID)
			return merge(def, &domain.APIDocument{}), nil
		}
		return nil, err
	}
	return merge(def, doc), nil
}

// List returns the project's definitions from the relational store.
func (s Service) List(ctx context.Context, ownerID, projectID string, limit, offset int) ([]domain.APIDefinition, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.defs.ListAPIDefinitionsByProject(ctx, ownerID, projectID, limit, offset)
}

// Delete soft-deletes the definition in both stores, rewriting the path
// with a uniquifying suffix so the endpoint can be declared again later.
func (s Service) Delete(ctx context.Context, ownerID, apiID string) error {
	def, err := s.defs.GetAPIDefinitionByID(ctx, ownerID, apiID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.New(apperr.CodeNotFound, "api definition not found")
		}
		return err
	}
	suffixed := fmt.Sprintf("%s-deleted-%d", def.EndpointPath, time.Now().Unix())
	if err := s.defs.SoftDeleteAPIDefinition(ctx, ownerID, apiID, suffixed); err != nil {
		return fmt.Errorf("soft delete api definition: %w", err)
	}
	if err := s.docs.SoftDeleteAPIDocument(ctx, ownerID, apiID, suffixed); err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.logger.Error("document mirror delete failed", "api_id", apiID, "error", err)
		return apperr.Wrap(err, apperr.CodeDocSyncFailed, "api deleted but document sync incomplete; retry sync")
	}
	s.logger.Info("api definition deleted", "api_id", apiID)
	return nil
}

// Resync forces the document mirror back onto relational truth for every
// definition in a project. Recovery path for detected divergence; the
// rich payload is preserved, scalar fields and version are overwritten.
func (s Service) Resync(ctx context.Context, ownerID, projectID string) (int, error) {
	const pageSize = 100
	synced := 0
	for offset := 0; ; offset += pageSize {
		defs, err := s.defs.ListAPIDefinitionsByProject(ctx, ownerID, projectID, pageSize, offset)
		if err != nil {
			return synced, err
		}
		for i := range defs {
			def := &defs[i]
			doc, err := s.docs.GetAPIDocument(ctx, ownerID, def.ID)
			if err != nil && !errors.Is(err, repository.ErrNotFound) {
				return synced, err
			}
			fresh := mirrorOf(def)
			if doc != nil {
				fresh.BodySchema = doc.BodySchema
				fresh.QuerySchema = doc.QuerySchema
				fresh.Filters = doc.Filters
				fresh.Versions = doc.Versions
				fresh.Container = doc.Container
			}
			if err := s.docs.ReplaceAPIDocument(ctx, fresh); err != nil {
				return synced, apperr.Wrap(err, apperr.CodeDocSyncFailed, "resync write failed")
			}
			synced++
		}
		if len(defs) < pageSize {
			break
		}
	}
	s.logger.Info("api documents resynced", "project_id", projectID, "count", synced)
	return synced, nil
}

func mirrorOf(def *domain.APIDefinition) *domain.APIDocument {
	return &domain.APIDocument{
		APIID:         def.ID,
		ProjectID:     def.ProjectID,
		OwnerUserID:   def.OwnerUserID,
		Name:          def.Name,
		HTTPMethod:    def.HTTPMethod,
		EndpointPath:  def.EndpointPath,
		Description:   def.Description,
		VersionNumber: def.VersionNumber,
		Status:        def.Status,
		Versions:      []domain.VersionSnapshot{},
	}
}

func merge(def *domain.APIDefinition, doc *domain.APIDocument) *Definition {
	return &Definition{
		APIDefinition: *def,
		BodySchema:    doc.BodySchema,
		QuerySchema:   doc.QuerySchema,
		Filters:       doc.Filters,
		Versions:      doc.Versions,
		Container:     doc.Container,
	}
}
