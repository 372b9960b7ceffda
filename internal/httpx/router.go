// Package httpx is the thin transport glue: it decodes requests, reads
// the authenticated owner id, calls services, and maps error kinds to
// status codes. All real behavior lives in the services.
package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"github.com/nabilpatel4012/smaapi/internal/schema"
	"github.com/nabilpatel4012/smaapi/internal/service/apidef"
	"github.com/nabilpatel4012/smaapi/internal/service/materialize"
	"github.com/nabilpatel4012/smaapi/internal/service/project"
)

const healthCheckTimeout = 2 * time.Second

// Router wires HTTP endpoints to services.
type Router struct {
	mux         *http.ServeMux
	logger      *slog.Logger
	projects    project.Service
	apis        apidef.Service
	materialize materialize.Service
	dbHealth    func(context.Context) error
}

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, projectSvc project.Service, apiSvc apidef.Service, materializeSvc materialize.Service, dbHealth func(context.Context) error) *Router {
	r := &Router{
		mux:         http.NewServeMux(),
		logger:      logger,
		projects:    projectSvc,
		apis:        apiSvc,
		materialize: materializeSvc,
		dbHealth:    dbHealth,
	}
	r.register()
	return r
}

// ServeHTTP delegates to the underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

func (r *Router) register() {
	r.mux.HandleFunc("GET /healthz", r.handleHealthz)
	r.mux.HandleFunc("POST /projects", r.withOwner(r.handleCreateProject))
	r.mux.HandleFunc("GET /projects", r.withOwner(r.handleListProjects))
	r.mux.HandleFunc("GET /projects/{id}", r.withOwner(r.handleGetProject))
	r.mux.HandleFunc("DELETE /projects/{id}", r.withOwner(r.handleDeleteProject))
	r.mux.HandleFunc("GET /projects/{id}/credentials", r.withOwner(r.handleProjectCredentials))
	r.mux.HandleFunc("POST /projects/{id}/resync", r.withOwner(r.handleResync))
	r.mux.HandleFunc("POST /projects/{id}/apis", r.withOwner(r.handleCreateAPI))
	r.mux.HandleFunc("GET /projects/{id}/apis", r.withOwner(r.handleListAPIs))
	r.mux.HandleFunc("GET /apis/{id}", r.withOwner(r.handleGetAPI))
	r.mux.HandleFunc("PATCH /apis/{id}", r.withOwner(r.handleUpdateAPI))
	r.mux.HandleFunc("DELETE /apis/{id}", r.withOwner(r.handleDeleteAPI))
	r.mux.HandleFunc("POST /apis/{id}/materialize", r.withOwner(r.handleMaterialize))
	r.mux.HandleFunc("POST /apis/{id}/stop", r.withOwner(r.handleStopAPI))
	r.mux.HandleFunc("POST /apis/{id}/suspend", r.withOwner(r.handleSuspendAPI))
}

type ownerHandler func(w http.ResponseWriter, req *http.Request, ownerID string)

// withOwner extracts the authenticated user id set by the identity layer.
func (r *Router) withOwner(next ownerHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		ownerID := strings.TrimSpace(req.Header.Get("X-User-ID"))
		if ownerID == "" {
			writeError(w, http.StatusUnauthorized, "missing authenticated user")
			return
		}
		next(w, req, ownerID)
	}
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
	defer cancel()
	if err := r.dbHealth(ctx); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createProjectRequest struct {
	Name         string            `json:"name"`
	Description  string            `json:"description"`
	DBType       string            `json:"db_type"`
	InstanceKind string            `json:"instance_kind"`
	Credentials  map[string]string `json:"credentials"`
}

func (r *Router) handleCreateProject(w http.ResponseWriter, req *http.Request, ownerID string) {
	var body createProjectRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	proj, err := r.projects.Create(req.Context(), project.CreateInput{
		OwnerUserID:  ownerID,
		Name:         body.Name,
		Description:  body.Description,
		DBType:       body.DBType,
		InstanceKind: body.InstanceKind,
		Credentials:  body.Credentials,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, proj)
}

func (r *Router) handleListProjects(w http.ResponseWriter, req *http.Request, ownerID string) {
	limit, offset := pagination(req)
	projects, err := r.projects.List(req.Context(), ownerID, limit, offset)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

func (r *Router) handleGetProject(w http.ResponseWriter, req *http.Request, ownerID string) {
	proj, err := r.projects.Get(req.Context(), ownerID, req.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, proj)
}

func (r *Router) handleDeleteProject(w http.ResponseWriter, req *http.Request, ownerID string) {
	if err := r.projects.Delete(req.Context(), ownerID, req.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r *Router) handleProjectCredentials(w http.ResponseWriter, req *http.Request, ownerID string) {
	creds, err := r.projects.Credentials(req.Context(), ownerID, req.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, creds)
}

func (r *Router) handleResync(w http.ResponseWriter, req *http.Request, ownerID string) {
	count, err := r.apis.Resync(req.Context(), ownerID, req.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"synced": count})
}

type createAPIRequest struct {
	Name         string                      `json:"name"`
	HTTPMethod   string                      `json:"http_method"`
	EndpointPath string                      `json:"endpoint_path"`
	Description  string                      `json:"description"`
	BodySchema   map[string]schema.FieldSpec `json:"body_schema"`
	QuerySchema  map[string]schema.FieldSpec `json:"query_schema"`
	Filters      []string                    `json:"filters"`
}

func (r *Router) handleCreateAPI(w http.ResponseWriter, req *http.Request, ownerID string) {
	var body createAPIRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	def, err := r.apis.Create(req.Context(), apidef.CreateInput{
		ProjectID:    req.PathValue("id"),
		OwnerUserID:  ownerID,
		Name:         body.Name,
		HTTPMethod:   body.HTTPMethod,
		EndpointPath: body.EndpointPath,
		Description:  body.Description,
		BodySchema:   body.BodySchema,
		QuerySchema:  body.QuerySchema,
		Filters:      body.Filters,
	})
	if err != nil {
		// doc_sync_failed still created the authoritative row; tell the
		// caller with the body so a resync can follow.
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, def)
}

func (r *Router) handleListAPIs(w http.ResponseWriter, req *http.Request, ownerID string) {
	limit, offset := pagination(req)
	defs, err := r.apis.List(req.Context(), ownerID, req.PathValue("id"), limit, offset)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, defs)
}

func (r *Router) handleGetAPI(w http.ResponseWriter, req *http.Request, ownerID string) {
	def, err := r.apis.Get(req.Context(), ownerID, req.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, def)
}

type updateAPIRequest struct {
	Name         *string                     `json:"name"`
	HTTPMethod   *string                     `json:"http_method"`
	EndpointPath *string                     `json:"endpoint_path"`
	Description  *string                     `json:"description"`
	Status       *string                     `json:"status"`
	BodySchema   map[string]schema.FieldSpec `json:"body_schema"`
	QuerySchema  map[string]schema.FieldSpec `json:"query_schema"`
	Filters      []string                    `json:"filters"`
}

func (r *Router) handleUpdateAPI(w http.ResponseWriter, req *http.Request, ownerID string) {
	var body updateAPIRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	def, err := r.apis.Update(req.Context(), ownerID, req.PathValue("id"), apidef.UpdateInput{
		Name:         body.Name,
		HTTPMethod:   body.HTTPMethod,
		EndpointPath: body.EndpointPath,
		Description:  body.Description,
		Status:       body.Status,
		BodySchema:   body.BodySchema,
		QuerySchema:  body.QuerySchema,
		Filters:      body.Filters,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, def)
}

func (r *Router) handleDeleteAPI(w http.ResponseWriter, req *http.Request, ownerID string) {
	if err := r.apis.Delete(req.Context(), ownerID, req.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r *Router) handleMaterialize(w http.ResponseWriter, req *http.Request, ownerID string) {
	instance, err := r.materialize.Materialize(req.Context(), ownerID, req.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, instance)
}

func (r *Router) handleStopAPI(w http.ResponseWriter, req *http.Request, ownerID string) {
	if err := r.materialize.Stop(req.Context(), ownerID, req.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "inactive"})
}

func (r *Router) handleSuspendAPI(w http.ResponseWriter, req *http.Request, ownerID string) {
	if err := r.materialize.Suspend(req.Context(), ownerID, req.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "suspended"})
}

func pagination(req *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(req.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(req.URL.Query().Get("offset"))
	return limit, offset
}
