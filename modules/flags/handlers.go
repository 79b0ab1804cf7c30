package flags

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmitrymomot/flagkit/pkg/apikey"
	"github.com/dmitrymomot/flagkit/pkg/evaluation"
	"github.com/dmitrymomot/flagkit/pkg/logger"
)

// Handlers serves the evaluation and management endpoints.
type Handlers struct {
	service *Service
	envs    *EnvironmentService
	flags   FlagStore
	log     *slog.Logger
}

// NewHandlers wires the HTTP handlers.
func NewHandlers(service *Service, envs *EnvironmentService, flagStore FlagStore, log *slog.Logger) *Handlers {
	return &Handlers{
		service: service,
		envs:    envs,
		flags:   flagStore,
		log:     log,
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

type evaluateRequest struct {
	FlagKey string `json:"flagKey"`
	UserID  string `json:"userId"`
}

type evaluateResponse struct {
	FlagKey  string               `json:"flagKey"`
	UserID   string               `json:"userId"`
	Enabled  bool                 `json:"enabled"`
	Reason   evaluation.Reason    `json:"reason"`
	Metadata *evaluation.Metadata `json:"metadata,omitempty"`
}

// Evaluate handles POST /evaluate.
func (h *Handlers) Evaluate(w http.ResponseWriter, r *http.Request) {
	env := EnvironmentFromContext(r.Context())

	var req evaluateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "malformed request body")
		return
	}
	if req.FlagKey == "" || req.UserID == "" {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "flagKey and userId are required")
		return
	}

	decision, err := h.service.Evaluate(r.Context(), env, req.FlagKey, req.UserID)
	if err != nil {
		h.log.ErrorContext(r.Context(), "flag evaluation failed",
			logger.Error(err),
			logger.FlagKey(req.FlagKey),
			logger.EnvironmentID(env.ID.String()),
		)
		writeError(w, http.StatusInternalServerError, codeInternal, "evaluation failed")
		return
	}

	writeJSON(w, http.StatusOK, evaluateResponse{
		FlagKey:  req.FlagKey,
		UserID:   req.UserID,
		Enabled:  decision.Enabled,
		Reason:   decision.Reason,
		Metadata: decision.Metadata,
	})
}

type evaluateBatchRequest struct {
	FlagKeys []string `json:"flagKeys"`
	UserID   string   `json:"userId"`
}

type batchDecision struct {
	Enabled  bool                 `json:"enabled"`
	Reason   evaluation.Reason    `json:"reason"`
	Metadata *evaluation.Metadata `json:"metadata,omitempty"`
}

type evaluateBatchResponse struct {
	UserID string                   `json:"userId"`
	Flags  map[string]batchDecision `json:"flags"`
}

// EvaluateBatch handles POST /evaluate/batch.
func (h *Handlers) EvaluateBatch(w http.ResponseWriter, r *http.Request) {
	env := EnvironmentFromContext(r.Context())

	var req evaluateBatchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "malformed request body")
		return
	}
	if len(req.FlagKeys) == 0 || req.UserID == "" {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "flagKeys and userId are required")
		return
	}

	decisions, err := h.service.EvaluateBatch(r.Context(), env, req.FlagKeys, req.UserID)
	if err != nil {
		if errors.Is(err, ErrTooManyFlags) {
			writeError(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
			return
		}
		h.log.ErrorContext(r.Context(), "batch evaluation failed",
			logger.Error(err),
			logger.EnvironmentID(env.ID.String()),
		)
		writeError(w, http.StatusInternalServerError, codeInternal, "evaluation failed")
		return
	}

	flagsOut := make(map[string]batchDecision, len(decisions))
	for key, d := range decisions {
		flagsOut[key] = batchDecision{Enabled: d.Enabled, Reason: d.Reason, Metadata: d.Metadata}
	}
	writeJSON(w, http.StatusOK, evaluateBatchResponse{UserID: req.UserID, Flags: flagsOut})
}

type createFlagRequest struct {
	ProjectID   uuid.UUID `json:"projectId"`
	Key         string    `json:"key"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
}

// CreateFlag handles POST /flags on the management surface.
func (h *Handlers) CreateFlag(w http.ResponseWriter, r *http.Request) {
	var req createFlagRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "malformed request body")
		return
	}
	if req.ProjectID == uuid.Nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "projectId and name are required")
		return
	}
	if err := ValidateFlagKey(req.Key); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}

	flag := &Flag{
		ID:          uuid.New(),
		ProjectID:   req.ProjectID,
		Key:         req.Key,
		Name:        req.Name,
		Description: req.Description,
		Status:      FlagStatusActive,
	}
	if err := h.flags.CreateFlag(r.Context(), flag); err != nil {
		h.log.ErrorContext(r.Context(), "flag creation failed", logger.Error(err), logger.FlagKey(req.Key))
		writeError(w, http.StatusInternalServerError, codeInternal, "flag creation failed")
		return
	}

	writeJSON(w, http.StatusCreated, flag)
}

type updateRuleRequest struct {
	Enabled    *bool     `json:"enabled"`
	Percentage *int      `json:"percentage"`
	Whitelist  *[]string `json:"whitelist"`
	Blacklist  *[]string `json:"blacklist"`
}

// UpdateRule handles PUT /flags/{flagID}/environments/{environmentID}/rule.
func (h *Handlers) UpdateRule(w http.ResponseWriter, r *http.Request) {
	flagID, err := uuid.Parse(chi.URLParam(r, "flagID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "invalid flag id")
		return
	}
	environmentID, err := uuid.Parse(chi.URLParam(r, "environmentID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "invalid environment id")
		return
	}

	var req updateRuleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "malformed request body")
		return
	}

	update := RuleUpdate{
		Enabled:    req.Enabled,
		Percentage: req.Percentage,
		Whitelist:  req.Whitelist,
		Blacklist:  req.Blacklist,
	}
	if err := update.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}

	rule, err := h.service.UpdateRule(r.Context(), flagID, environmentID, update)
	if err != nil {
		if errors.Is(err, ErrFlagNotFound) {
			writeError(w, http.StatusNotFound, codeNotFound, "flag not found")
			return
		}
		h.log.ErrorContext(r.Context(), "rule update failed",
			logger.Error(err),
			logger.EnvironmentID(environmentID.String()),
		)
		writeError(w, http.StatusInternalServerError, codeInternal, "rule update failed")
		return
	}

	writeJSON(w, http.StatusOK, rule)
}

type createEnvironmentRequest struct {
	ProjectID uuid.UUID `json:"projectId"`
	Name      string    `json:"name"`
	Key       string    `json:"key"`
}

type createEnvironmentResponse struct {
	Environment *apikey.Environment `json:"environment"`
	APIKey      string              `json:"apiKey"`
}

// CreateEnvironment handles POST /environments. The response carries the
// plaintext API key; it is never shown again.
func (h *Handlers) CreateEnvironment(w http.ResponseWriter, r *http.Request) {
	var req createEnvironmentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "malformed request body")
		return
	}
	if req.ProjectID == uuid.Nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "projectId and name are required")
		return
	}

	env, plaintext, err := h.envs.CreateEnvironment(r.Context(), req.ProjectID, req.Name, req.Key)
	if err != nil {
		if errors.Is(err, apikey.ErrInvalidEnvironmentKey) {
			writeError(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
			return
		}
		h.log.ErrorContext(r.Context(), "environment creation failed",
			logger.Error(err),
			logger.ProjectID(req.ProjectID.String()),
		)
		writeError(w, http.StatusInternalServerError, codeInternal, "environment creation failed")
		return
	}

	writeJSON(w, http.StatusCreated, createEnvironmentResponse{Environment: env, APIKey: plaintext})
}

type rotateKeyResponse struct {
	APIKey string `json:"apiKey"`
}

// RotateKey handles POST /environments/{environmentID}/rotate-key.
func (h *Handlers) RotateKey(w http.ResponseWriter, r *http.Request) {
	environmentID, err := uuid.Parse(chi.URLParam(r, "environmentID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "invalid environment id")
		return
	}

	plaintext, err := h.envs.RotateKey(r.Context(), environmentID)
	if err != nil {
		if errors.Is(err, apikey.ErrEnvironmentNotFound) {
			writeError(w, http.StatusNotFound, codeNotFound, "environment not found")
			return
		}
		h.log.ErrorContext(r.Context(), "key rotation failed",
			logger.Error(err),
			logger.EnvironmentID(environmentID.String()),
		)
		writeError(w, http.StatusInternalServerError, codeInternal, "key rotation failed")
		return
	}

	writeJSON(w, http.StatusOK, rotateKeyResponse{APIKey: plaintext})
}

// DeleteEnvironment handles DELETE /environments/{environmentID}.
func (h *Handlers) DeleteEnvironment(w http.ResponseWriter, r *http.Request) {
	environmentID, err := uuid.Parse(chi.URLParam(r, "environmentID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "invalid environment id")
		return
	}

	if err := h.envs.DeleteEnvironment(r.Context(), environmentID); err != nil {
		h.log.ErrorContext(r.Context(), "environment deletion failed",
			logger.Error(err),
			logger.EnvironmentID(environmentID.String()),
		)
		writeError(w, http.StatusInternalServerError, codeInternal, "environment deletion failed")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
