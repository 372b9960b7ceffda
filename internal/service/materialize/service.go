// Package materialize turns a draft API definition into a running
// containerized service: generated source, built image, started
// container, and the status flip to active as the very last step.
package materialize

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"log/slog"

	"github.com/nabilpatel4012/smaapi/internal/domain"
	"github.com/nabilpatel4012/smaapi/internal/generator"
	"github.com/nabilpatel4012/smaapi/internal/repository"
	"github.com/nabilpatel4012/smaapi/internal/schema"
	"github.com/nabilpatel4012/smaapi/pkg/apperr"
	"github.com/nabilpatel4012/smaapi/pkg/config"
)

const servicePort = 8080

// Engine is the container engine contract the materializer needs.
type Engine interface {
	BuildImage(ctx context.Context, dir, tag string) error
	RunContainer(ctx context.Context, name, image string, env []string, containerPort, hostPort int) (string, error)
	StopContainer(ctx context.Context, id string) error
	RemoveContainer(ctx context.Context, id string) error
}

// Workspaces prepares isolated build directories.
type Workspaces interface {
	Prepare(identifier string) (string, error)
	Cleanup(path string) error
}

// CredentialSource resolves a project's decrypted connection settings.
// The materialized workload runs against the tenant's own database, never
// the platform store.
type CredentialSource interface {
	Credentials(ctx context.Context, ownerID, projectID string) (map[string]string, error)
}

// Generator writes the standalone service files for one definition.
type Generator func(dir string, spec generator.Spec) error

// PortAllocator returns a free host port within the configured range.
type PortAllocator func(min, max int) (int, error)

// Service drives the API lifecycle state machine.
type Service struct {
	defs       repository.APIDefinitionRepository
	docs       repository.APIDocumentRepository
	engine     Engine
	workspaces Workspaces
	creds      CredentialSource
	generate   Generator
	allocPort  PortAllocator
	logger     *slog.Logger
	cfg        config.APIConfig
}

// New returns a materializer service with default generator and port
// allocator.
func New(defs repository.APIDefinitionRepository, docs repository.APIDocumentRepository, engine Engine, workspaces Workspaces, creds CredentialSource, logger *slog.Logger, cfg config.APIConfig) Service {
	return Service{
		defs:       defs,
		docs:       docs,
		engine:     engine,
		workspaces: workspaces,
		creds:      creds,
		generate:   generator.Write,
		allocPort:  allocatePort,
		logger:     logger,
		cfg:        cfg,
	}
}

// Materialize advances a draft API to active. Preconditions are enforced
// before any filesystem or container work; the status update is the last
// step so partial failures always leave the definition in draft.
func (s Service) Materialize(ctx context.Context, ownerID, apiID string) (*domain.ContainerInstance, error) {
	def, err := s.defs.GetAPIDefinitionByID(ctx, ownerID, apiID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.New(apperr.CodeNotFound, "api definition not found")
		}
		return nil, err
	}
	if def.Status != domain.StatusDraft {
		return nil, apperr.Newf(apperr.CodeConflict, "api is %s, only draft definitions can be materialized", def.Status)
	}

	doc, err := s.docs.GetAPIDocument(ctx, ownerID, apiID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.New(apperr.CodeDocSyncFailed, "api document missing; run resync before materializing")
		}
		return nil, err
	}
	if def.HTTPMethod != "POST" {
		return nil, apperr.Newf(apperr.CodeUnsupportedShape, "only POST endpoints are materializable, got %s", def.HTTPMethod)
	}
	if len(doc.BodySchema) == 0 {
		return nil, apperr.New(apperr.CodeUnsupportedShape, "body schema is empty")
	}
	// Field names land in generated DDL and source; a stored document that
	// predates name validation must not reach the generator.
	if err := schema.ValidateBody(doc.BodySchema); err != nil {
		return nil, apperr.Wrap(err, apperr.CodeUnsupportedShape, "body schema rejected")
	}

	creds, err := s.creds.Credentials(ctx, ownerID, def.ProjectID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeProvisioningFailed, "resolve project credentials")
	}
	dsn := creds["database_url"]
	if dsn == "" {
		return nil, apperr.New(apperr.CodeInvalid, "project credentials do not define database_url")
	}

	table := schema.Generate(ownerID, def.ProjectID, def.EndpointPath, doc.BodySchema)

	dir, err := s.workspaces.Prepare(def.ID)
	if err != nil {
		return nil, fmt.Errorf("prepare workspace: %w", err)
	}

	if err := s.generate(dir, generator.Spec{
		APIID:        def.ID,
		EndpointPath: def.EndpointPath,
		HTTPMethod:   def.HTTPMethod,
		Port:         servicePort,
		Table:        table,
		Body:         doc.BodySchema,
	}); err != nil {
		return nil, fmt.Errorf("generate service: %w", err)
	}

	tag := fmt.Sprintf("%s/api-%s:v%d", s.cfg.ImageNamespace, def.ID, def.VersionNumber)
	buildCtx := ctx
	if s.cfg.BuildTimeout > 0 {
		var cancel context.CancelFunc
		buildCtx, cancel = context.WithTimeout(ctx, s.cfg.BuildTimeout)
		defer cancel()
	}
	if err := s.engine.BuildImage(buildCtx, dir, tag); err != nil {
		return nil, apperr.Wrap(err, apperr.CodeProvisioningFailed, "image build failed")
	}

	hostPort, err := s.allocPort(s.cfg.HostPortMin, s.cfg.HostPortMax)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeProvisioningFailed, "no free host port")
	}

	name := "smaapi-" + def.ID
	env := []string{"DATABASE_URL=" + dsn}
	containerID, err := s.engine.RunContainer(ctx, name, tag, env, servicePort, hostPort)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeProvisioningFailed, "container start failed")
	}

	instance := &domain.ContainerInstance{
		APIID:         def.ID,
		ContainerID:   containerID,
		ContainerName: name,
		HostPort:      hostPort,
		Directory:     dir,
	}
	if err := s.docs.SetContainerInstance(ctx, ownerID, apiID, instance); err != nil {
		return nil, apperr.Wrap(err, apperr.CodeDocSyncFailed, "record container instance")
	}
	// Relational status flips first; it is the arbiter on divergence.
	if err := s.defs.UpdateAPIStatus(ctx, ownerID, apiID, domain.StatusActive); err != nil {
		return nil, fmt.Errorf("activate api: %w", err)
	}
	if err := s.docs.UpdateDocumentStatus(ctx, ownerID, apiID, domain.StatusActive); err != nil {
		return nil, apperr.Wrap(err, apperr.CodeDocSyncFailed, "api activated but document sync incomplete; retry sync")
	}
	s.logger.Info("api materialized", "api_id", def.ID, "container_id", containerID, "host_port", hostPort)
	return instance, nil
}

// Stop takes an active API to inactive, tearing down its container. The
// container instance is discarded logically; the workspace is removed.
func (s Service) Stop(ctx context.Context, ownerID, apiID string) error {
	def, err := s.defs.GetAPIDefinitionByID(ctx, ownerID, apiID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.New(apperr.CodeNotFound, "api definition not found")
		}
		return err
	}
	if def.Status != domain.StatusActive {
		return apperr.Newf(apperr.CodeConflict, "api is %s, only active definitions can be stopped", def.Status)
	}

	doc, err := s.docs.GetAPIDocument(ctx, ownerID, apiID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	if doc != nil && doc.Container != nil {
		if err := s.engine.StopContainer(ctx, doc.Container.ContainerID); err != nil {
			s.logger.Warn("container stop failed, continuing teardown", "api_id", apiID, "error", err)
		}
		if err := s.engine.RemoveContainer(ctx, doc.Container.ContainerID); err != nil {
			s.logger.Warn("container remove failed, continuing teardown", "api_id", apiID, "error", err)
		}
		if doc.Container.Directory != "" {
			if err := s.workspaces.Cleanup(doc.Container.Directory); err != nil {
				s.logger.Warn("workspace cleanup failed", "api_id", apiID, "error", err)
			}
		}
	}

	if err := s.docs.SetContainerInstance(ctx, ownerID, apiID, nil); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return apperr.Wrap(err, apperr.CodeDocSyncFailed, "clear container instance")
	}
	if err := s.defs.UpdateAPIStatus(ctx, ownerID, apiID, domain.StatusInactive); err != nil {
		return fmt.Errorf("deactivate api: %w", err)
	}
	if err := s.docs.UpdateDocumentStatus(ctx, ownerID, apiID, domain.StatusInactive); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return apperr.Wrap(err, apperr.CodeDocSyncFailed, "api stopped but document sync incomplete; retry sync")
	}
	s.logger.Info("api stopped", "api_id", apiID)
	return nil
}

// Suspend is the administrative transition: any state may be suspended.
// A running container is torn down when present.
func (s Service) Suspend(ctx context.Context, ownerID, apiID string) error {
	def, err := s.defs.GetAPIDefinitionByID(ctx, ownerID, apiID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.New(apperr.CodeNotFound, "api definition not found")
		}
		return err
	}
	if def.Status == domain.StatusActive {
		doc, err := s.docs.GetAPIDocument(ctx, ownerID, apiID)
		if err == nil && doc.Container != nil {
			if err := s.engine.StopContainer(ctx, doc.Container.ContainerID); err != nil {
				s.logger.Warn("container stop failed during suspend", "api_id", apiID, "error", err)
			}
			if err := s.engine.RemoveContainer(ctx, doc.Container.ContainerID); err != nil {
				s.logger.Warn("container remove failed during suspend", "api_id", apiID, "error", err)
			}
		}
		if err := s.docs.SetContainerInstance(ctx, ownerID, apiID, nil); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return apperr.Wrap(err, apperr.CodeDocSyncFailed, "clear container instance")
		}
	}
	if err := s.defs.UpdateAPIStatus(ctx, ownerID, apiID, domain.StatusSuspended); err != nil {
		return fmt.Errorf("suspend api: %w", err)
	}
	if err := s.docs.UpdateDocumentStatus(ctx, ownerID, apiID, domain.StatusSuspended); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return apperr.Wrap(err, apperr.CodeDocSyncFailed, "api suspended but document sync incomplete; retry sync")
	}
	s.logger.Info("api suspended", "api_id", apiID, "previous_status", def.Status)
	return nil
}

// allocatePort probes for a free TCP port inside [min, max].
func allocatePort(min, max int) (int, error) {
	if min <= 0 || max < min {
		return 0, fmt.Errorf("invalid port range %d-%d", min, max)
	}
	for port := min; port <= max; port++ {
		l, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(port)))
		if err != nil {
			continue
		}
		l.Close()
		return port, nil
	}
	return 0, fmt.Errorf("port range %d-%d exhausted", min, max)
}
