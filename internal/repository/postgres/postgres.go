package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nabilpatel4012/smaapi/internal/domain"
	"github.com/nabilpatel4012/smaapi/internal/repository"
)

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.UserRepository          = (*Repository)(nil)
	_ repository.ProjectRepository       = (*Repository)(nil)
	_ repository.APIDefinitionRepository = (*Repository)(nil)
)

const uniqueViolation = "23505"

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return repository.ErrDuplicate
	}
	return err
}

// GetUserByID retrieves a user by identifier.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	const query = `SELECT id, email, password_hash, created_at FROM users WHERE id = $1`
	row := r.pool.QueryRow(ctx, query, id)
	var u domain.User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
		return nil, mapError(err)
	}
	return &u, nil
}

// ProvisionProject creates the project and its credential, registers the
// subdomain mid-transaction, and records it before commit. Registration
// failure rolls everything back.
func (r *Repository) ProvisionProject(ctx context.Context, project *domain.Project, cred *domain.ProjectCredential, register repository.RegisterFunc) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin provision: %w", err)
	}
	defer tx.Rollback(ctx)

	const insertProject = `INSERT INTO projects (id, owner_user_id, name, description, db_type, instance_kind, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := tx.Exec(ctx, insertProject, project.ID, project.OwnerUserID, project.Name,
		project.Description, project.DBType, project.InstanceKind, project.CreatedAt); err != nil {
		return mapError(err)
	}

	const insertCredential = `INSERT INTO project_credentials (project_id, owner_user_id, encrypted_blob)
		VALUES ($1, $2, $3)`
	if _, err := tx.Exec(ctx, insertCredential, cred.ProjectID, cred.OwnerUserID, cred.EncryptedBlob); err != nil {
		return mapError(err)
	}

	// DNS cannot join the transaction; registering before commit means a
	// registrar failure aborts without leaving a half-provisioned row.
	subdomain, err := register(ctx, project.ID)
	if err != nil {
		return err
	}
	const setSubdomain = `UPDATE projects SET subdomain = $1 WHERE id = $2`
	if _, err := tx.Exec(ctx, setSubdomain, subdomain, project.ID); err != nil {
		return mapError(err)
	}
	project.Subdomain = subdomain

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit provision: %w", err)
	}
	return nil
}

// GetProjectByID returns a non-deleted project owned by the caller.
func (r *Repository) GetProjectByID(ctx context.Context, ownerID, projectID string) (*domain.Project, error) {
	const query = `SELECT id, owner_user_id, name, description, db_type, instance_kind, COALESCE(subdomain, ''), created_at, is_deleted
		FROM projects WHERE id = $1 AND owner_user_id = $2 AND is_deleted = false`
	row := r.pool.QueryRow(ctx, query, projectID, ownerID)
	var p domain.Project
	if err := row.Scan(&p.ID, &p.OwnerUserID, &p.Name, &p.Description, &p.DBType, &p.InstanceKind, &p.Subdomain, &p.CreatedAt, &p.IsDeleted); err != nil {
		return nil, mapError(err)
	}
	return &p, nil
}

// ListProjectsByOwner returns the caller's non-deleted projects, newest first.
func (r *Repository) ListProjectsByOwner(ctx context.Context, ownerID string, limit, offset int) ([]domain.Project, error) {
	const query = `SELECT id, owner_user_id, name, description, db_type, instance_kind, COALESCE(subdomain, ''), created_at, is_deleted
		FROM projects WHERE owner_user_id = $1 AND is_deleted = false
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	projects := make([]domain.Project, 0)
	for rows.Next() {
		var p domain.Project
		if err := rows.Scan(&p.ID, &p.OwnerUserID, &p.Name, &p.Description, &p.DBType, &p.InstanceKind, &p.Subdomain, &p.CreatedAt, &p.IsDeleted); err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// GetProjectCredential fetches the encrypted credential blob for the owner.
func (r *Repository) GetProjectCredential(ctx context.Context, ownerID, projectID string) (*domain.ProjectCredential, error) {
	const query = `SELECT project_id, owner_user_id, encrypted_blob, is_deleted
		FROM project_credentials WHERE project_id = $1 AND owner_user_id = $2 AND is_deleted = false`
	row := r.pool.QueryRow(ctx, query, projectID, ownerID)
	var c domain.ProjectCredential
	if err := row.Scan(&c.ProjectID, &c.OwnerUserID, &c.EncryptedBlob, &c.IsDeleted); err != nil {
		return nil, mapError(err)
	}
	return &c, nil
}

// SoftDeleteProject marks the project and its credential deleted together.
func (r *Repository) SoftDeleteProject(ctx context.Context, ownerID, projectID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `UPDATE projects SET is_deleted = true WHERE id = $1 AND owner_user_id = $2 AND is_deleted = false`, projectID, ownerID)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	if _, err := tx.Exec(ctx, `UPDATE project_credentials SET is_deleted = true WHERE project_id = $1 AND owner_user_id = $2`, projectID, ownerID); err != nil {
		return mapError(err)
	}
	return tx.Commit(ctx)
}

// HardDeleteProject removes the project and credential rows outright.
func (r *Repository) HardDeleteProject(ctx context.Context, ownerID, projectID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin hard delete: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM project_credentials WHERE project_id = $1 AND owner_user_id = $2`, projectID, ownerID); err != nil {
		return mapError(err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM projects WHERE id = $1 AND owner_user_id = $2`, projectID, ownerID)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return tx.Commit(ctx)
}

// CreateAPIDefinition inserts the authoritative API row.
func (r *Repository) CreateAPIDefinition(ctx context.Context, def *domain.APIDefinition) error {
	const query = `INSERT INTO api_definitions (id, project_id, owner_user_id, name, http_method, endpoint_path, description, version_number, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.pool.Exec(ctx, query, def.ID, def.ProjectID, def.OwnerUserID, def.Name,
		def.HTTPMethod, def.EndpointPath, def.Description, def.VersionNumber, def.Status, def.CreatedAt)
	return mapError(err)
}

// GetAPIDefinitionByID returns a non-deleted API row owned by the caller.
func (r *Repository) GetAPIDefinitionByID(ctx context.Context, ownerID, apiID string) (*domain.APIDefinition, error) {
	const query = `SELECT id, project_id, owner_user_id, name, http_method, endpoint_path, description, version_number, status, created_at, is_deleted
		FROM api_definitions WHERE id = $1 AND owner_user_id = $2 AND is_deleted = false`
	row := r.pool.QueryRow(ctx, query, apiID, ownerID)
	return scanAPIDefinition(row)
}

// ListAPIDefinitionsByProject lists non-deleted APIs in a project.
func (r *Repository) ListAPIDefinitionsByProject(ctx context.Context, ownerID, projectID string, limit, offset int) ([]domain.APIDefinition, error) {
	const query = `SELECT id, project_id, owner_user_id, name, http_method, endpoint_path, description, version_number, status, created_at, is_deleted
		FROM api_definitions WHERE project_id = $1 AND owner_user_id = $2 AND is_deleted = false
		ORDER BY created_at DESC LIMIT $3 OFFSET $4`
	rows, err := r.pool.Query(ctx, query, projectID, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	defs := make([]domain.APIDefinition, 0)
	for rows.Next() {
		def, err := scanAPIDefinition(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, *def)
	}
	return defs, rows.Err()
}

// UpdateAPIDefinition applies the patch, bumping version_number when asked,
// and returns the resulting row in one round trip.
func (r *Repository) UpdateAPIDefinition(ctx context.Context, ownerID, apiID string, patch repository.APIDefinitionPatch, bumpVersion bool) (*domain.APIDefinition, error) {
	sets := make([]string, 0, 6)
	args := make([]any, 0, 8)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if patch.Name != nil {
		sets = append(sets, "name = "+arg(*patch.Name))
	}
	if patch.HTTPMethod != nil {
		sets = append(sets, "http_method = "+arg(*patch.HTTPMethod))
	}
	if patch.EndpointPath != nil {
		sets = append(sets, "endpoint_path = "+arg(*patch.EndpointPath))
	}
	if patch.Description != nil {
		sets = append(sets, "description = "+arg(*patch.Description))
	}
	if patch.Status != nil {
		sets = append(sets, "status = "+arg(*patch.Status))
	}
	if bumpVersion {
		sets = append(sets, "version_number = version_number + 1")
	}
	if len(sets) == 0 {
		return r.GetAPIDefinitionByID(ctx, ownerID, apiID)
	}
	query := fmt.Sprintf(`UPDATE api_definitions SET %s WHERE id = %s AND owner_user_id = %s AND is_deleted = false
		RETURNING id, project_id, owner_user_id, name, http_method, endpoint_path, description, version_number, status, created_at, is_deleted`,
		strings.Join(sets, ", "), arg(apiID), arg(ownerID))
	row := r.pool.QueryRow(ctx, query, args...)
	return scanAPIDefinition(row)
}

// UpdateAPIStatus flips the lifecycle state of an API row.
func (r *Repository) UpdateAPIStatus(ctx context.Context, ownerID, apiID, status string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE api_definitions SET status = $1 WHERE id = $2 AND owner_user_id = $3 AND is_deleted = false`, status, apiID, ownerID)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// SoftDeleteAPIDefinition marks the row deleted and rewrites the path so
// the uniqueness constraint does not block later re-creation.
func (r *Repository) SoftDeleteAPIDefinition(ctx context.Context, ownerID, apiID, suffixedPath string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE api_definitions SET is_deleted = true, endpoint_path = $1 WHERE id = $2 AND owner_user_id = $3 AND is_deleted = false`, suffixedPath, apiID, ownerID)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAPIDefinition(row rowScanner) (*domain.APIDefinition, error) {
	var d domain.APIDefinition
	if err := row.Scan(&d.ID, &d.ProjectID, &d.OwnerUserID, &d.Name, &d.HTTPMethod, &d.EndpointPath,
		&d.Description, &d.VersionNumber, &d.Status, &d.CreatedAt, &d.IsDeleted); err != nil {
		return nil, mapError(err)
	}
	return &d, nil
}
