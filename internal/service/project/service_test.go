package project

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/nabilpatel4012/smaapi/internal/domain"
	"github.com/nabilpatel4012/smaapi/internal/repository"
	"github.com/nabilpatel4012/smaapi/pkg/apperr"
	"github.com/nabilpatel4012/smaapi/pkg/vault"
)

// stubProjectRepository emulates the transactional provision contract: the
// project and credential only persist when the register callback succeeds.
type stubProjectRepository struct {
	projects    map[string]domain.Project
	credentials map[string]domain.ProjectCredential
	namesTaken  map[string]bool
}

func newStubProjectRepository() *stubProjectRepository {
	return &stubProjectRepository{
		projects:    map[string]domain.Project{},
		credentials: map[string]domain.ProjectCredential{},
		namesTaken:  map[string]bool{},
	}
}

func (s *stubProjectRepository) ProvisionProject(ctx context.Context, project *domain.Project, cred *domain.ProjectCredential, register repository.RegisterFunc) error {
	if s.namesTaken[project.OwnerUserID+"/"+project.Name] {
		return repository.ErrDuplicate
	}
	subdomain, err := register(ctx, project.ID)
	if err != nil {
		return err
	}
	project.Subdomain = subdomain
	s.projects[project.ID] = *project
	s.credentials[project.ID] = *cred
	s.namesTaken[project.OwnerUserID+"/"+project.Name] = true
	return nil
}

func (s *stubProjectRepository) GetProjectByID(ctx context.Context, ownerID, projectID string) (*domain.Project, error) {
	p, ok := s.projects[projectID]
	if !ok || p.OwnerUserID != ownerID || p.IsDeleted {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (s *stubProjectRepository) ListProjectsByOwner(ctx context.Context, ownerID string, limit, offset int) ([]domain.Project, error) {
	out := make([]domain.Project, 0)
	for _, p := range s.projects {
		if p.OwnerUserID == ownerID && !p.IsDeleted {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *stubProjectRepository) GetProjectCredential(ctx context.Context, ownerID, projectID string) (*domain.ProjectCredential, error) {
	c, ok := s.credentials[projectID]
	if !ok || c.OwnerUserID != ownerID || c.IsDeleted {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (s *stubProjectRepository) SoftDeleteProject(ctx context.Context, ownerID, projectID string) error {
	p, ok := s.projects[projectID]
	if !ok || p.OwnerUserID != ownerID || p.IsDeleted {
		return repository.ErrNotFound
	}
	p.IsDeleted = true
	s.projects[projectID] = p
	c := s.credentials[projectID]
	c.IsDeleted = true
	s.credentials[projectID] = c
	return nil
}

func (s *stubProjectRepository) HardDeleteProject(ctx context.Context, ownerID, projectID string) error {
	p, ok := s.projects[projectID]
	if !ok || p.OwnerUserID != ownerID {
		return repository.ErrNotFound
	}
	delete(s.projects, projectID)
	delete(s.credentials, projectID)
	return nil
}

type stubUserRepository struct {
	users map[string]domain.User
}

func (s *stubUserRepository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

type stubRegistrar struct {
	failRegister   bool
	failDeregister bool
	registered     []string
	deregistered   []string
}

func (s *stubRegistrar) Register(ctx context.Context, slug string) (string, error) {
	if s.failRegister {
		return "", errors.New("dns provider unavailable")
	}
	s.registered = append(s.registered, slug)
	return slug + ".smaapi.dev", nil
}

func (s *stubRegistrar) Deregister(ctx context.Context, slug string) error {
	s.deregistered = append(s.deregistered, slug)
	if s.failDeregister {
		return errors.New("dns provider unavailable")
	}
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(repo *stubProjectRepository, registrar *stubRegistrar) Service {
	users := &stubUserRepository{users: map[string]domain.User{
		"owner-1": {ID: "owner-1", Email: "owner@example.com", PasswordHash: "$2a$10$hashhashhash"},
	}}
	return New(repo, users, registrar, testLogger())
}

func TestCreateProvisionsProjectCredentialAndSubdomain(t *testing.T) {
	repo := newStubProjectRepository()
	registrar := &stubRegistrar{}
	svc := newTestService(repo, registrar)

	proj, err := svc.Create(context.Background(), CreateInput{
		OwnerUserID: "owner-1",
		Name:        "acme",
		DBType:      "postgres",
		Credentials: map[string]string{"user": "admin", "password": "s3cret"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if proj.Subdomain == "" || !strings.HasSuffix(proj.Subdomain, ".smaapi.dev") {
		t.Fatalf("unexpected subdomain %q", proj.Subdomain)
	}
	if len(repo.projects) != 1 || len(repo.credentials) != 1 {
		t.Fatalf("expected one project and one credential, got %d/%d", len(repo.projects), len(repo.credentials))
	}

	// The stored blob must decrypt back to the input with the owner's hash.
	cred := repo.credentials[proj.ID]
	plain, err := vault.Decrypt("$2a$10$hashhashhash", cred.EncryptedBlob)
	if err != nil {
		t.Fatalf("decrypt stored credential: %v", err)
	}
	if !strings.Contains(plain, "s3cret") {
		t.Fatalf("credential blob does not round-trip: %q", plain)
	}
}

func TestCreateRegistrarFailureLeavesNothingBehind(t *testing.T) {
	repo := newStubProjectRepository()
	registrar := &stubRegistrar{failRegister: true}
	svc := newTestService(repo, registrar)

	_, err := svc.Create(context.Background(), CreateInput{
		OwnerUserID: "owner-1",
		Name:        "acme",
		DBType:      "postgres",
	})
	if !apperr.IsCode(err, apperr.CodeProvisioningFailed) {
		t.Fatalf("expected provisioning_failed, got %v", err)
	}
	if len(repo.projects) != 0 || len(repo.credentials) != 0 {
		t.Fatalf("registrar failure left rows behind: %d/%d", len(repo.projects), len(repo.credentials))
	}
}

func TestCreateDuplicateNameConflicts(t *testing.T) {
	repo := newStubProjectRepository()
	svc := newTestService(repo, &stubRegistrar{})

	input := CreateInput{OwnerUserID: "owner-1", Name: "acme", DBType: "postgres"}
	if _, err := svc.Create(context.Background(), input); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := svc.Create(context.Background(), input); !apperr.IsCode(err, apperr.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestCreateValidatesInput(t *testing.T) {
	svc := newTestService(newStubProjectRepository(), &stubRegistrar{})
	cases := []CreateInput{
		{Name: "acme", DBType: "postgres"},
		{OwnerUserID: "owner-1", DBType: "postgres"},
		{OwnerUserID: "owner-1", Name: "acme"},
	}
	for i, input := range cases {
		if _, err := svc.Create(context.Background(), input); !apperr.IsCode(err, apperr.CodeInvalid) {
			t.Errorf("case %d: expected invalid, got %v", i, err)
		}
	}
}

func TestDeleteDeregistersAndSoftDeletes(t *testing.T) {
	repo := newStubProjectRepository()
	registrar := &stubRegistrar{}
	svc := newTestService(repo, registrar)

	proj, err := svc.Create(context.Background(), CreateInput{OwnerUserID: "owner-1", Name: "acme", DBType: "postgres"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.Delete(context.Background(), "owner-1", proj.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(registrar.deregistered) != 1 {
		t.Fatalf("expected 1 deregistration, got %d", len(registrar.deregistered))
	}
	if !repo.projects[proj.ID].IsDeleted || !repo.credentials[proj.ID].IsDeleted {
		t.Fatal("project and credential must be soft-deleted together")
	}
}

func TestDeleteContinuesWhenDeregistrationFails(t *testing.T) {
	repo := newStubProjectRepository()
	registrar := &stubRegistrar{failDeregister: true}
	svc := newTestService(repo, registrar)

	proj, err := svc.Create(context.Background(), CreateInput{OwnerUserID: "owner-1", Name: "acme", DBType: "postgres"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.Delete(context.Background(), "owner-1", proj.ID); err != nil {
		t.Fatalf("delete must not fail on registrar error: %v", err)
	}
	if !repo.projects[proj.ID].IsDeleted {
		t.Fatal("project not soft-deleted")
	}
}

func TestDeleteUnknownProject(t *testing.T) {
	svc := newTestService(newStubProjectRepository(), &stubRegistrar{})
	if err := svc.Delete(context.Background(), "owner-1", "missing"); !apperr.IsCode(err, apperr.CodeNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestCredentialsDecryptForOwner(t *testing.T) {
	repo := newStubProjectRepository()
	svc := newTestService(repo, &stubRegistrar{})

	proj, err := svc.Create(context.Background(), CreateInput{
		OwnerUserID: "owner-1",
		Name:        "acme",
		DBType:      "postgres",
		Credentials: map[string]string{"host": "db.internal", "password": "hunter2"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	creds, err := svc.Credentials(context.Background(), "owner-1", proj.ID)
	if err != nil {
		t.Fatalf("credentials: %v", err)
	}
	if creds["password"] != "hunter2" {
		t.Fatalf("unexpected credentials %v", creds)
	}
	// Another owner must not see the project at all.
	if _, err := svc.Credentials(context.Background(), "owner-2", proj.ID); !apperr.IsCode(err, apperr.CodeNotFound) {
		t.Fatalf("expected not_found for foreign owner, got %v", err)
	}
}
