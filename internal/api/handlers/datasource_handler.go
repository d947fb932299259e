package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gorax/flowengine/internal/api/response"
	"github.com/gorax/flowengine/internal/datasource"
)

// DatasourceRepository is the seam DatasourceHandler needs, matching
// datasource.Repository's method set (interface-per-handler convention,
// same as PlanService/PlanRepository above).
type DatasourceRepository interface {
	Create(ctx context.Context, conn *datasource.Connection) (*datasource.Connection, error)
	Get(ctx context.Context, tenantID, id string) (*datasource.Connection, error)
	List(ctx context.Context, tenantID string) ([]*datasource.Connection, error)
	Delete(ctx context.Context, tenantID, id string) error
}

// DatasourceCacheInvalidator lets the handler evict a connection's pooled
// handle on delete, so a removed connection can't keep serving workflow
// steps off a stale open handle.
type DatasourceCacheInvalidator interface {
	Invalidate(connectionID string) error
}

// DatasourceHandler serves the datasource/connection CRUD surface backing
// the C14 Datasource Cache's ConnectionLoader: create, list, get, delete.
// Single-tenant in this deployment (TenantID defaults to "default"); a
// multi-tenant front end would resolve it from request auth context instead.
type DatasourceHandler struct {
	repo     DatasourceRepository
	cache    DatasourceCacheInvalidator
	tenantID string
	logger   *slog.Logger
}

const DefaultTenantID = "default"

func NewDatasourceHandler(repo DatasourceRepository, cache DatasourceCacheInvalidator, logger *slog.Logger) *DatasourceHandler {
	return &DatasourceHandler{repo: repo, cache: cache, tenantID: DefaultTenantID, logger: logger}
}

type createConnectionBody struct {
	Name           string `json:"name"`
	DatabaseType   string `json:"database_type"`
	CredentialName string `json:"credential_name"`
}

// Create handles POST /api/connections.
func (h *DatasourceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body createConnectionBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		response.DetailError(w, h.logger, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	conn := &datasource.Connection{
		TenantID:       h.tenantID,
		Name:           body.Name,
		DatabaseType:   body.DatabaseType,
		CredentialName: body.CredentialName,
		CreatedBy:      "api",
	}
	created, err := h.repo.Create(r.Context(), conn)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	response.Raw(w, h.logger, http.StatusCreated, created)
}

// List handles GET /api/connections.
func (h *DatasourceHandler) List(w http.ResponseWriter, r *http.Request) {
	conns, err := h.repo.List(r.Context(), h.tenantID)
	if err != nil {
		response.DetailError(w, h.logger, http.StatusInternalServerError, err.Error())
		return
	}
	response.Raw(w, h.logger, http.StatusOK, conns)
}

// Get handles GET /api/connections/{id}.
func (h *DatasourceHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	conn, err := h.repo.Get(r.Context(), h.tenantID, id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	response.Raw(w, h.logger, http.StatusOK, conn)
}

// Delete handles DELETE /api/connections/{id}, invalidating any pooled
// handle the datasource cache is holding open for it.
func (h *DatasourceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.repo.Delete(r.Context(), h.tenantID, id); err != nil {
		h.writeDomainError(w, err)
		return
	}
	if h.cache != nil {
		if err := h.cache.Invalidate(id); err != nil {
			h.logger.Warn("failed to invalidate cached connection handle", "connection_id", id, "error", err)
		}
	}
	response.Raw(w, h.logger, http.StatusOK, map[string]any{"deleted": id})
}

func (h *DatasourceHandler) writeDomainError(w http.ResponseWriter, err error) {
	switch err {
	case datasource.ErrNotFound:
		response.DetailError(w, h.logger, http.StatusNotFound, err.Error())
	case datasource.ErrInvalidInput:
		response.DetailError(w, h.logger, http.StatusBadRequest, err.Error())
	case datasource.ErrAlreadyExists:
		response.DetailError(w, h.logger, http.StatusConflict, err.Error())
	default:
		h.logger.Error("datasource handler error", "error", err)
		response.DetailError(w, h.logger, http.StatusInternalServerError, err.Error())
	}
}
