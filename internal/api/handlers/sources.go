package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/perchwatch/server/internal/api/problem"
	"github.com/perchwatch/server/internal/audit"
	"github.com/perchwatch/server/internal/domain/sources"
	"github.com/perchwatch/server/internal/sync"
	"github.com/perchwatch/server/internal/validation"
)

// SourcesHandler exposes the operator-facing trigger surface: source CRUD
// plus the manual pull endpoint.
type SourcesHandler struct {
	repo        sources.Repository
	coordinator *sync.Coordinator
	validate    *validator.Validate
	auditLog    *audit.Logger
	env         string
}

// NewSourcesHandler constructs a SourcesHandler.
func NewSourcesHandler(repo sources.Repository, coordinator *sync.Coordinator, auditLog *audit.Logger, env string) *SourcesHandler {
	return &SourcesHandler{
		repo:        repo,
		coordinator: coordinator,
		validate:    validator.New(),
		auditLog:    auditLog,
		env:         env,
	}
}

type createSourceRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=200"`
	BaseURL     string `json:"base_url" validate:"required,url"`
	Kind        string `json:"kind" validate:"omitempty,oneof=http-index s3 ftp api"`
	AuthMode    string `json:"auth_mode" validate:"omitempty,oneof=none basic bearer-header"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	HeaderValue string `json:"header_value"`
	Enabled     *bool  `json:"enabled"`
}

// sourceResponse is the API view of a source. Credential material is never
// echoed back; only whether any is stored.
type sourceResponse struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	BaseURL        string     `json:"base_url"`
	Kind           string     `json:"kind"`
	AuthMode       string     `json:"auth_mode"`
	HasCredentials bool       `json:"has_credentials"`
	Enabled        bool       `json:"enabled"`
	Cursor         *string    `json:"cursor"`
	LastPulledAt   *time.Time `json:"last_pulled_at"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func toSourceResponse(src sources.Source) sourceResponse {
	return sourceResponse{
		ID:             src.ID,
		Name:           src.Name,
		BaseURL:        src.BaseURL,
		Kind:           string(src.Kind),
		AuthMode:       string(src.AuthMode),
		HasCredentials: !src.Credentials.IsZero(),
		Enabled:        src.Enabled,
		Cursor:         src.Cursor,
		LastPulledAt:   src.LastPulledAt,
		CreatedAt:      src.CreatedAt,
		UpdatedAt:      src.UpdatedAt,
	}
}

// Create handles POST /api/v1/sources.
func (h *SourcesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		problem.Write(w, r, http.StatusBadRequest, "about:blank", "Invalid JSON", err, h.env)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		problem.Write(w, r, http.StatusUnprocessableEntity, "about:blank", "Validation failed", err, h.env,
			problem.WithErrors(validationErrors(err)))
		return
	}
	if err := validation.ValidateBaseURL(req.BaseURL, "base_url", h.env == "production"); err != nil {
		problem.Write(w, r, http.StatusUnprocessableEntity, "about:blank", "Validation failed", err, h.env,
			problem.WithErrors(map[string]interface{}{"base_url": err.Error()}))
		return
	}

	params := sources.CreateParams{
		Name:     req.Name,
		BaseURL:  req.BaseURL,
		Kind:     sources.KindHTTPIndex,
		AuthMode: sources.AuthNone,
		Credentials: sources.Credentials{
			Username:    req.Username,
			Password:    req.Password,
			HeaderValue: req.HeaderValue,
		},
		Enabled: true,
	}
	if req.Kind != "" {
		params.Kind = sources.Kind(req.Kind)
	}
	if req.AuthMode != "" {
		params.AuthMode = sources.AuthMode(req.AuthMode)
	}
	if req.Enabled != nil {
		params.Enabled = *req.Enabled
	}

	src, err := h.repo.Create(r.Context(), params)
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, "about:blank", "Create failed", err, h.env)
		return
	}

	h.auditLog.LogRequest(r, "source.create", src.ID, src.Name, "success", map[string]string{
		"kind":      string(src.Kind),
		"auth_mode": string(src.AuthMode),
	})
	writeJSON(w, http.StatusCreated, toSourceResponse(*src))
}

// List handles GET /api/v1/sources. ?enabled=true|false filters.
func (h *SourcesHandler) List(w http.ResponseWriter, r *http.Request) {
	var enabled *bool
	switch r.URL.Query().Get("enabled") {
	case "true":
		t := true
		enabled = &t
	case "false":
		f := false
		enabled = &f
	}

	srcs, err := h.repo.List(r.Context(), enabled)
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, "about:blank", "List failed", err, h.env)
		return
	}

	out := make([]sourceResponse, 0, len(srcs))
	for _, src := range srcs {
		out = append(out, toSourceResponse(src))
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": out})
}

// Get handles GET /api/v1/sources/{id}.
func (h *SourcesHandler) Get(w http.ResponseWriter, r *http.Request) {
	src, err := h.repo.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeRepoError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSourceResponse(*src))
}

type setEnabledRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// SetEnabled handles PATCH /api/v1/sources/{id}/enabled. Disabling stops
// future sweeps; an in-flight run completes.
func (h *SourcesHandler) SetEnabled(w http.ResponseWriter, r *http.Request) {
	var req setEnabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		problem.Write(w, r, http.StatusBadRequest, "about:blank", "Invalid JSON", err, h.env)
		return
	}
	if req.Enabled == nil {
		problem.Write(w, r, http.StatusUnprocessableEntity, "about:blank", "Validation failed",
			errors.New("enabled is required"), h.env)
		return
	}

	id := r.PathValue("id")
	if err := h.repo.SetEnabled(r.Context(), id, *req.Enabled); err != nil {
		h.writeRepoError(w, r, err)
		return
	}

	src, err := h.repo.Get(r.Context(), id)
	if err != nil {
		h.writeRepoError(w, r, err)
		return
	}

	action := "source.enable"
	if !src.Enabled {
		action = "source.disable"
	}
	h.auditLog.LogRequest(r, action, src.ID, src.Name, "success", nil)
	writeJSON(w, http.StatusOK, toSourceResponse(*src))
}

type pullRequest struct {
	MaxFiles int `json:"max_files" validate:"omitempty,min=1,max=1000"`
}

// Pull handles POST /api/v1/sources/{id}/pull: a synchronous manual run so
// an operator can diagnose a source immediately instead of waiting for the
// next scheduled sweep. The optional max_files override makes a cheap
// connectivity test possible (e.g. 2 files).
func (h *SourcesHandler) Pull(w http.ResponseWriter, r *http.Request) {
	var req pullRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			problem.Write(w, r, http.StatusBadRequest, "about:blank", "Invalid JSON", err, h.env)
			return
		}
		if err := h.validate.Struct(req); err != nil {
			problem.Write(w, r, http.StatusUnprocessableEntity, "about:blank", "Validation failed", err, h.env,
				problem.WithErrors(validationErrors(err)))
			return
		}
	}

	outcome, err := h.coordinator.RunOne(r.Context(), r.PathValue("id"), req.MaxFiles)
	if err != nil {
		h.writeRepoError(w, r, err)
		return
	}

	status := "success"
	if outcome.Err != nil {
		status = "failure"
	}
	h.auditLog.LogRequest(r, "source.pull", outcome.SourceID, outcome.SourceName, status, nil)
	writeJSON(w, http.StatusOK, outcome)
}

func (h *SourcesHandler) writeRepoError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, sources.ErrNotFound) {
		problem.Write(w, r, http.StatusNotFound, "about:blank", "Source not found", err, h.env)
		return
	}
	problem.Write(w, r, http.StatusInternalServerError, "about:blank", "Internal error", err, h.env)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// validationErrors flattens validator output into a field→message map.
func validationErrors(err error) map[string]interface{} {
	out := make(map[string]interface{})
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			out[fe.Field()] = fe.Tag()
		}
	}
	return out
}
