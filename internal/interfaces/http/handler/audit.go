package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	auditapp "fleet-audit/internal/application/audit"
	"fleet-audit/internal/application/dto"
	"fleet-audit/internal/domain/audit"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// AuditHandler handles audit run requests
type AuditHandler struct {
	runAudit     *auditapp.RunAuditUseCase
	maxBodyBytes int64
	log          *zap.Logger
}

// NewAuditHandler creates a new audit handler. maxBodyBytes <= 0 disables the limit.
func NewAuditHandler(runAudit *auditapp.RunAuditUseCase, maxBodyBytes int64, log *zap.Logger) *AuditHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuditHandler{
		runAudit:     runAudit,
		maxBodyBytes: maxBodyBytes,
		log:          log,
	}
}

// RunAudit handles POST /api/v1/audits
func (h *AuditHandler) RunAudit(w http.ResponseWriter, r *http.Request) {
	if h.maxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}

	var req dto.RunAuditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	input, params, err := req.ToInput(h.runAudit.DefaultParams())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.runAudit.Execute(r.Context(), auditapp.RunAuditInput{Input: input, Params: params})
	if err != nil {
		h.writeAuditError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// GetAudit handles GET /api/v1/audits/{id}
func (h *AuditHandler) GetAudit(w http.ResponseWriter, r *http.Request) {
	idStr := r.PathValue("id")
	if idStr == "" {
		writeError(w, http.StatusBadRequest, "Run ID is required")
		return
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid run ID")
		return
	}

	result, err := h.runAudit.GetRun(r.Context(), id)
	if err != nil {
		h.writeAuditError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ListAudits handles GET /api/v1/audits
func (h *AuditHandler) ListAudits(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = min(n, maxListLimit)
	}

	results, err := h.runAudit.ListRuns(r.Context(), limit)
	if err != nil {
		h.writeAuditError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.NewRunList(results))
}

func (h *AuditHandler) writeAuditError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, audit.ErrInvalidParams):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, audit.ErrNoData):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, audit.ErrRunNotFound):
		writeError(w, http.StatusNotFound, "Audit run not found")
	case errors.Is(err, auditapp.ErrArchiveUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.log.Error("audit request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Audit failed: "+err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
