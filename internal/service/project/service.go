// Package project orchestrates tenant workspace provisioning: the
// relational project row, the encrypted credential, and the subdomain
// registration execute as one logical unit with compensating rollback.
package project

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/nabilpatel4012/smaapi/internal/dns"
	"github.com/nabilpatel4012/smaapi/internal/domain"
	"github.com/nabilpatel4012/smaapi/internal/repository"
	"github.com/nabilpatel4012/smaapi/pkg/apperr"
	"github.com/nabilpatel4012/smaapi/pkg/vault"
)

// Registrar is the external DNS collaborator.
type Registrar interface {
	Register(ctx context.Context, slug string) (string, error)
	Deregister(ctx context.Context, slug string) error
}

// CreateInput encapsulates project creation attributes.
type CreateInput struct {
	OwnerUserID  string
	Name         string
	Description  string
	DBType       string
	InstanceKind string
	Credentials  map[string]string
}

// Service orchestrates project provisioning and deletion.
type Service struct {
	projects  repository.ProjectRepository
	users     repository.UserRepository
	registrar Registrar
	logger    *slog.Logger
}

// New returns a project service.
func New(projects repository.ProjectRepository, users repository.UserRepository, registrar Registrar, logger *slog.Logger) Service {
	return Service{projects: projects, users: users, registrar: registrar, logger: logger}
}

// Create provisions a project: relational insert, credential encryption
// and insert, and subdomain registration, all gated by one transaction.
// A registrar failure aborts before commit so no half-provisioned project
// is ever observable.
func (s Service) Create(ctx context.Context, input CreateInput) (*domain.Project, error) {
	if strings.TrimSpace(input.OwnerUserID) == "" {
		return nil, apperr.New(apperr.CodeInvalid, "owner user id is required")
	}
	if strings.TrimSpace(input.Name) == "" {
		return nil, apperr.New(apperr.CodeInvalid, "project name is required")
	}
	if strings.TrimSpace(input.DBType) == "" {
		return nil, apperr.New(apperr.CodeInvalid, "db type is required")
	}

	owner, err := s.users.GetUserByID(ctx, input.OwnerUserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.New(apperr.CodeNotFound, "owner not found")
		}
		return nil, fmt.Errorf("fetch owner: %w", err)
	}

	blob, err := json.Marshal(input.Credentials)
	if err != nil {
		return nil, fmt.Errorf("encode credentials: %w", err)
	}
	// Key material is the owner's stored password hash, never raw input.
	encrypted, err := vault.Encrypt(owner.PasswordHash, string(blob))
	if err != nil {
		return nil, fmt.Errorf("encrypt credentials: %w", err)
	}

	now := time.Now().UTC()
	proj := &domain.Project{
		ID:           uuid.NewString(),
		OwnerUserID:  input.OwnerUserID,
		Name:         input.Name,
		Description:  input.Description,
		DBType:       input.DBType,
		InstanceKind: input.InstanceKind,
		CreatedAt:    now,
	}
	cred := &domain.ProjectCredential{
		ProjectID:     proj.ID,
		OwnerUserID:   input.OwnerUserID,
		EncryptedBlob: encrypted,
	}

	register := func(ctx context.Context, projectID string) (string, error) {
		slug := dns.DeriveSubdomain(input.OwnerUserID, projectID, now)
		fqdn, err := s.registrar.Register(ctx, slug)
		if err != nil {
			return "", apperr.Wrap(err, apperr.CodeProvisioningFailed, "subdomain registration failed")
		}
		return fqdn, nil
	}

	if err := s.projects.ProvisionProject(ctx, proj, cred, register); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperr.Newf(apperr.CodeConflict, "project %q already exists", input.Name)
		}
		if apperr.IsCode(err, apperr.CodeProvisioningFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("provision project: %w", err)
	}
	s.logger.Info("project provisioned", "project_id", proj.ID, "owner_user_id", proj.OwnerUserID, "subdomain", proj.Subdomain)
	return proj, nil
}

// Get returns a project owned by the caller.
func (s Service) Get(ctx context.Context, ownerID, projectID string) (*domain.Project, error) {
	proj, err := s.projects.GetProjectByID(ctx, ownerID, projectID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.New(apperr.CodeNotFound, "project not found")
		}
		return nil, err
	}
	return proj, nil
}

// List returns the caller's projects.
func (s Service) List(ctx context.Context, ownerID string, limit, offset int) ([]domain.Project, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.projects.ListProjectsByOwner(ctx, ownerID, limit, offset)
}

// Credentials decrypts the stored credential blob for the owner.
func (s Service) Credentials(ctx context.Context, ownerID, projectID string) (map[string]string, error) {
	owner, err := s.users.GetUserByID(ctx, ownerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.New(apperr.CodeNotFound, "owner not found")
		}
		return nil, err
	}
	cred, err := s.projects.GetProjectCredential(ctx, ownerID, projectID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.New(apperr.CodeNotFound, "project credentials not found")
		}
		return nil, err
	}
	plain, err := vault.Decrypt(owner.PasswordHash, cred.EncryptedBlob)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string)
	if err := json.Unmarshal([]byte(plain), &out); err != nil {
		return nil, apperr.Wrap(err, apperr.CodeDecryptFailed, "decode credential payload")
	}
	return out, nil
}

// Delete runs the deletion saga: verify ownership, best-effort subdomain
// deregistration, then soft-delete the project and credential together.
// A dangling DNS record is preferable to blocking the user's delete.
func (s Service) Delete(ctx context.Context, ownerID, projectID string) error {
	proj, err := s.projects.GetProjectByID(ctx, ownerID, projectID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.New(apperr.CodeNotFound, "project not found")
		}
		return err
	}

	if slug := subdomainSlug(proj.Subdomain); slug != "" {
		if err := s.registrar.Deregister(ctx, slug); err != nil {
			s.logger.Warn("subdomain deregistration failed, continuing delete",
				"project_id", projectID, "subdomain", proj.Subdomain, "error", err)
		}
	}

	if err := s.projects.SoftDeleteProject(ctx, ownerID, projectID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.New(apperr.CodeNotFound, "project not found")
		}
		return fmt.Errorf("soft delete project: %w", err)
	}
	s.logger.Info("project deleted", "project_id", projectID, "owner_user_id", ownerID)
	return nil
}

// HardDelete irreversibly removes a project and its credential. Privileged
// operation, separate from the normal soft-delete flow.
func (s Service) HardDelete(ctx context.Context, ownerID, projectID string) error {
	if err := s.projects.HardDeleteProject(ctx, ownerID, projectID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.New(apperr.CodeNotFound, "project not found")
		}
		return fmt.Errorf("hard delete project: %w", err)
	}
	s.logger.Info("project hard-deleted", "project_id", projectID, "owner_user_id", ownerID)
	return nil
}

// subdomainSlug strips the domain suffix from a stored fqdn.
func subdomainSlug(fqdn string) string {
	slug, _, _ := strings.Cut(fqdn, ".")
	return slug
}
