package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gorax/flowengine/internal/api/middleware"
	"github.com/gorax/flowengine/internal/api/response"
	"github.com/gorax/flowengine/internal/credential"
	"github.com/gorax/flowengine/internal/validation"
)

// CredentialHandler handles credential-related HTTP requests
type CredentialHandler struct {
	service credential.Service
	logger  *slog.Logger
}

// NewCredentialHandler creates a new credential handler
func NewCredentialHandler(service credential.Service, logger *slog.Logger) *CredentialHandler {
	return &CredentialHandler{
		service: service,
		logger:  logger,
	}
}

// Create creates a new credential
func (h *CredentialHandler) Create(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r)
	user := middleware.GetUser(r)

	if tenantID == "" || user == nil {
		response.InternalError(w, h.logger, "tenant or user context missing")
		return
	}

	var input credential.CreateCredentialInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, h.logger, "invalid request body")
		return
	}

	cred, err := h.service.Create(r.Context(), tenantID, user.ID, input)
	if err != nil {
		if _, ok := err.(*credential.ValidationError); ok {
			response.BadRequest(w, h.logger, err.Error())
			return
		}
		h.logger.Error("failed to create credential",
			"error", err,
			"tenant_id", tenantID,
			"user_id", user.ID)
		response.InternalError(w, h.logger, "failed to create credential")
		return
	}

	response.Created(w, h.logger, map[string]any{
		"data": cred,
	})
}

// List returns all credentials for the tenant (metadata only)
func (h *CredentialHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r)

	if tenantID == "" {
		response.InternalError(w, h.logger, "tenant context missing")
		return
	}

	// Parse query parameters
	limit, _ := validation.ParsePaginationLimit(
		r.URL.Query().Get("limit"),
		validation.DefaultPaginationLimit,
		validation.MaxPaginationLimit,
	)
	offset, _ := validation.ParsePaginationOffset(r.URL.Query().Get("offset"))

	// Parse filters
	filter := credential.CredentialListFilter{
		Type:   credential.CredentialType(r.URL.Query().Get("type")),
		Status: credential.CredentialStatus(r.URL.Query().Get("status")),
		Search: r.URL.Query().Get("search"),
	}

	credentials, err := h.service.List(r.Context(), tenantID, filter, limit, offset)
	if err != nil {
		h.logger.Error("failed to list credentials",
			"error", err,
			"tenant_id", tenantID)
		response.InternalError(w, h.logger, "failed to list credentials")
		return
	}

	response.Paginated(w, h.logger, credentials, limit, offset, 0)
}

// Get retrieves a single credential's metadata
func (h *CredentialHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r)
	credentialID := chi.URLParam(r, "credentialID")

	if tenantID == "" {
		response.InternalError(w, h.logger, "tenant context missing")
		return
	}

	cred, err := h.service.GetByID(r.Context(), tenantID, credentialID)
	if err != nil {
		if err == credential.ErrNotFound {
			response.NotFound(w, h.logger, "credential not found")
			return
		}
		h.logger.Error("failed to get credential",
			"error", err,
			"tenant_id", tenantID,
			"credential_id", credentialID)
		response.InternalError(w, h.logger, "failed to get credential")
		return
	}

	response.OK(w, h.logger, map[string]any{
		"data": cred,
	})
}

// GetValue retrieves the decrypted credential value (restricted access)
func (h *CredentialHandler) GetValue(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r)
	user := middleware.GetUser(r)
	credentialID := chi.URLParam(r, "credentialID")

	if tenantID == "" || user == nil {
		response.InternalError(w, h.logger, "tenant or user context missing")
		return
	}

	value, err := h.service.GetValue(r.Context(), tenantID, credentialID, user.ID)
	if err != nil {
		if err == credential.ErrNotFound {
			response.NotFound(w, h.logger, "credential not found")
			return
		}
		if err == credential.ErrUnauthorized {
			response.Forbidden(w, h.logger, "unauthorized access to credential value")
			return
		}
		h.logger.Error("failed to get credential value",
			"error", err,
			"tenant_id", tenantID,
			"credential_id", credentialID,
			"user_id", user.ID)
		response.InternalError(w, h.logger, "failed to get credential value")
		return
	}

	response.OK(w, h.logger, map[string]any{
		"data": value,
	})
}

// Update updates a credential's metadata
func (h *CredentialHandler) Update(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r)
	user := middleware.GetUser(r)
	credentialID := chi.URLParam(r, "credentialID")

	if tenantID == "" || user == nil {
		response.InternalError(w, h.logger, "tenant or user context missing")
		return
	}

	var input credential.UpdateCredentialInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, h.logger, "invalid request body")
		return
	}

	cred, err := h.service.Update(r.Context(), tenantID, credentialID, user.ID, input)
	if err != nil {
		if err == credential.ErrNotFound {
			response.NotFound(w, h.logger, "credential not found")
			return
		}
		if _, ok := err.(*credential.ValidationError); ok {
			response.BadRequest(w, h.logger, err.Error())
			return
		}
		h.logger.Error("failed to update credential",
			"error", err,
			"tenant_id", tenantID,
			"credential_id", credentialID,
			"user_id", user.ID)
		response.InternalError(w, h.logger, "failed to update credential")
		return
	}

	response.OK(w, h.logger, map[string]any{
		"data": cred,
	})
}

// Delete deletes a credential
func (h *CredentialHandler) Delete(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r)
	user := middleware.GetUser(r)
	credentialID := chi.URLParam(r, "credentialID")

	if tenantID == "" || user == nil {
		response.InternalError(w, h.logger, "tenant or user context missing")
		return
	}

	err := h.service.Delete(r.Context(), tenantID, credentialID, user.ID)
	if err != nil {
		if err == credential.ErrNotFound {
			response.NotFound(w, h.logger, "credential not found")
			return
		}
		h.logger.Error("failed to delete credential",
			"error", err,
			"tenant_id", tenantID,
			"credential_id", credentialID,
			"user_id", user.ID)
		response.InternalError(w, h.logger, "failed to delete credential")
		return
	}

	response.NoContent(w)
}

// Rotate creates a new version of the credential value
func (h *CredentialHandler) Rotate(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r)
	user := middleware.GetUser(r)
	credentialID := chi.URLParam(r, "credentialID")

	if tenantID == "" || user == nil {
		response.InternalError(w, h.logger, "tenant or user context missing")
		return
	}

	var input credential.RotateCredentialInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, h.logger, "invalid request body")
		return
	}

	cred, err := h.service.Rotate(r.Context(), tenantID, credentialID, user.ID, input)
	if err != nil {
		if err == credential.ErrNotFound {
			response.NotFound(w, h.logger, "credential not found")
			return
		}
		if _, ok := err.(*credential.ValidationError); ok {
			response.BadRequest(w, h.logger, err.Error())
			return
		}
		h.logger.Error("failed to rotate credential",
			"error", err,
			"tenant_id", tenantID,
			"credential_id", credentialID,
			"user_id", user.ID)
		response.InternalError(w, h.logger, "failed to rotate credential")
		return
	}

	response.OK(w, h.logger, map[string]any{
		"data": cred,
	})
}

// ListVersions returns all versions of a credential
func (h *CredentialHandler) ListVersions(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r)
	credentialID := chi.URLParam(r, "credentialID")

	if tenantID == "" {
		response.InternalError(w, h.logger, "tenant context missing")
		return
	}

	versions, err := h.service.ListVersions(r.Context(), tenantID, credentialID)
	if err != nil {
		if err == credential.ErrNotFound {
			response.NotFound(w, h.logger, "credential not found")
			return
		}
		h.logger.Error("failed to list credential versions",
			"error", err,
			"tenant_id", tenantID,
			"credential_id", credentialID)
		response.InternalError(w, h.logger, "failed to list credential versions")
		return
	}

	response.OK(w, h.logger, map[string]any{
		"data": versions,
	})
}

// GetAccessLog returns access log entries for a credential
func (h *CredentialHandler) GetAccessLog(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r)
	credentialID := chi.URLParam(r, "credentialID")

	if tenantID == "" {
		response.InternalError(w, h.logger, "tenant context missing")
		return
	}

	limit, _ := validation.ParsePaginationLimit(
		r.URL.Query().Get("limit"),
		validation.DefaultPaginationLimit,
		validation.MaxPaginationLimit,
	)
	offset, _ := validation.ParsePaginationOffset(r.URL.Query().Get("offset"))

	logs, err := h.service.GetAccessLog(r.Context(), tenantID, credentialID, limit, offset)
	if err != nil {
		if err == credential.ErrNotFound {
			response.NotFound(w, h.logger, "credential not found")
			return
		}
		h.logger.Error("failed to get access log",
			"error", err,
			"tenant_id", tenantID,
			"credential_id", credentialID)
		response.InternalError(w, h.logger, "failed to get access log")
		return
	}

	response.Paginated(w, h.logger, logs, limit, offset, 0)
}

// Test validates a credential by attempting to decrypt and verify its value
// This endpoint does NOT return the decrypted value, only confirmation of validity
func (h *CredentialHandler) Test(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r)
	user := middleware.GetUser(r)
	credentialID := chi.URLParam(r, "credentialID")

	if tenantID == "" || user == nil {
		response.InternalError(w, h.logger, "tenant or user context missing")
		return
	}

	// Attempt to get the credential value - this verifies decryption works
	_, err := h.service.GetValue(r.Context(), tenantID, credentialID, user.ID)
	if err != nil {
		if err == credential.ErrNotFound {
			response.NotFound(w, h.logger, "credential not found")
			return
		}
		h.logger.Error("credential test failed",
			"error", err,
			"tenant_id", tenantID,
			"credential_id", credentialID)
		response.OK(w, h.logger, map[string]any{
			"valid":   false,
			"message": "credential validation failed: unable to decrypt",
		})
		return
	}

	response.OK(w, h.logger, map[string]any{
		"valid":   true,
		"message": "credential is valid and decryptable",
	})
}

// GetTypes returns the list of supported credential types with their schemas
func (h *CredentialHandler) GetTypes(w http.ResponseWriter, r *http.Request) {
	schemas := credential.GetAllCredentialTypeSchemas()

	response.OK(w, h.logger, map[string]any{
		"data": schemas,
	})
}

// ValidateType validates a credential value against a specific type's schema
// This endpoint does NOT store anything, just validates the structure
func (h *CredentialHandler) ValidateType(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Type  credential.CredentialType `json:"type"`
		Value map[string]any            `json:"value"`
	}

	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, h.logger, "invalid request body")
		return
	}

	if input.Type == "" {
		response.BadRequest(w, h.logger, "type is required")
		return
	}

	if len(input.Value) == 0 {
		response.BadRequest(w, h.logger, "value is required")
		return
	}

	// Validate the value against the type's schema
	if err := credential.ValidateCredentialValue(input.Type, input.Value); err != nil {
		response.OK(w, h.logger, map[string]any{
			"valid":   false,
			"message": err.Error(),
			"schema":  credential.GetCredentialTypeSchema(input.Type),
		})
		return
	}

	response.OK(w, h.logger, map[string]any{
		"valid":   true,
		"message": "credential value is valid for type " + string(input.Type),
	})
}
