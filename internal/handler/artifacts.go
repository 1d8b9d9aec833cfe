// This file implements the reading and comparison endpoints.
//
// Routes:
//   - POST /api/readings                        -> CreateReading
//   - POST /api/comparisons                     -> CreateComparison
//   - GET  /api/artifacts/{id}                  -> GetArtifact
//   - POST /api/artifacts/{id}/interpretation   -> GenerateInterpretation
//   - POST /api/artifacts/{id}/unlocks          -> UnlockSection
//   - GET  /api/artifacts/{id}/unlocks          -> ListUnlocks
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/astraea-labs/astraea/internal/domain"
	"github.com/astraea-labs/astraea/internal/middleware"
	"github.com/astraea-labs/astraea/internal/service"
	"github.com/google/uuid"
)

// ArtifactHandler handles reading and comparison HTTP requests.
type ArtifactHandler struct {
	artifacts service.ArtifactService
	unlocks   service.UnlockService
	logger    *slog.Logger
}

// NewArtifactHandler creates a new ArtifactHandler.
func NewArtifactHandler(artifacts service.ArtifactService, unlocks service.UnlockService, logger *slog.Logger) *ArtifactHandler {
	return &ArtifactHandler{
		artifacts: artifacts,
		unlocks:   unlocks,
		logger:    logger,
	}
}

// RegisterRoutes registers artifact routes on the provided mux.
func (h *ArtifactHandler) RegisterRoutes(mux *http.ServeMux, requireAccount func(http.Handler) http.Handler) {
	mux.Handle("POST /api/readings", requireAccount(http.HandlerFunc(h.CreateReading)))
	mux.Handle("POST /api/comparisons", requireAccount(http.HandlerFunc(h.CreateComparison)))
	mux.Handle("GET /api/artifacts/{id}", requireAccount(http.HandlerFunc(h.GetArtifact)))
	mux.Handle("POST /api/artifacts/{id}/interpretation", requireAccount(http.HandlerFunc(h.GenerateInterpretation)))
	mux.Handle("POST /api/artifacts/{id}/unlocks", requireAccount(http.HandlerFunc(h.UnlockSection)))
	mux.Handle("GET /api/artifacts/{id}/unlocks", requireAccount(http.HandlerFunc(h.ListUnlocks)))
}

type birthDataRequest struct {
	Name      string `json:"name"`
	BirthDate string `json:"birth_date"`
	BirthTime string `json:"birth_time"`
	Timezone  string `json:"timezone"`
	Gender    string `json:"gender"`
}

func (b birthDataRequest) toDomain() domain.BirthData {
	return domain.BirthData{
		Name:      b.Name,
		BirthDate: b.BirthDate,
		BirthTime: b.BirthTime,
		Timezone:  b.Timezone,
		Gender:    b.Gender,
	}
}

type createReadingRequest struct {
	Action       string           `json:"action"`
	Subject      birthDataRequest `json:"subject"`
	TargetPeriod string           `json:"target_period"`
}

type createComparisonRequest struct {
	Subject      birthDataRequest `json:"subject"`
	Partner      birthDataRequest `json:"partner"`
	TargetPeriod string           `json:"target_period"`
}

type artifactResponse struct {
	ID             uuid.UUID         `json:"id"`
	Type           string            `json:"type"`
	ChargeMode     string            `json:"charge_mode"`
	CreditsCharged int               `json:"credits_charged"`
	TargetPeriod   string            `json:"target_period,omitempty"`
	ChartData      json.RawMessage   `json:"chart_data"`
	Sections       map[string]string `json:"sections,omitempty"`
	LockedSections []string          `json:"locked_sections,omitempty"`
	Provider       string            `json:"provider,omitempty"`
	Model          string            `json:"model,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// CreateReading handles POST /api/readings.
func (h *ArtifactHandler) CreateReading(w http.ResponseWriter, r *http.Request) {
	accountID, _ := middleware.AccountID(r.Context())

	var req createReadingRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	artifact, err := h.artifacts.CreateReading(r.Context(), service.CreateReadingParams{
		AccountID:    accountID,
		Action:       domain.ActionType(req.Action),
		Subject:      req.Subject.toDomain(),
		TargetPeriod: req.TargetPeriod,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, h.render(r, accountID, artifact))
}

// CreateComparison handles POST /api/comparisons.
func (h *ArtifactHandler) CreateComparison(w http.ResponseWriter, r *http.Request) {
	accountID, _ := middleware.AccountID(r.Context())

	var req createComparisonRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	artifact, err := h.artifacts.CreateComparison(r.Context(), service.CreateComparisonParams{
		AccountID:    accountID,
		Subject:      req.Subject.toDomain(),
		Partner:      req.Partner.toDomain(),
		TargetPeriod: req.TargetPeriod,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, h.render(r, accountID, artifact))
}

// GetArtifact handles GET /api/artifacts/{id}.
func (h *ArtifactHandler) GetArtifact(w http.ResponseWriter, r *http.Request) {
	accountID, _ := middleware.AccountID(r.Context())

	artifactID, err := pathUUID(r, "id")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	artifact, err := h.artifacts.GetArtifact(r.Context(), accountID, artifactID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, h.render(r, accountID, artifact))
}

// GenerateInterpretation handles POST /api/artifacts/{id}/interpretation.
func (h *ArtifactHandler) GenerateInterpretation(w http.ResponseWriter, r *http.Request) {
	accountID, _ := middleware.AccountID(r.Context())

	artifactID, err := pathUUID(r, "id")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	artifact, err := h.artifacts.GenerateInterpretation(r.Context(), accountID, artifactID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, h.render(r, accountID, artifact))
}

type unlockRequest struct {
	SectionKey string `json:"section_key"`
	Method     string `json:"method"`
}

type unlockResponse struct {
	SectionKey      string `json:"section_key"`
	Method          string `json:"method"`
	CreditsUsed     int    `json:"credits_used"`
	AlreadyUnlocked bool   `json:"already_unlocked"`
}

// UnlockSection handles POST /api/artifacts/{id}/unlocks.
func (h *ArtifactHandler) UnlockSection(w http.ResponseWriter, r *http.Request) {
	accountID, _ := middleware.AccountID(r.Context())

	artifactID, err := pathUUID(r, "id")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	var req unlockRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	res, err := h.unlocks.UnlockSection(r.Context(), accountID, artifactID, req.SectionKey, domain.UnlockMethod(req.Method))
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, unlockResponse{
		SectionKey:      res.Unlock.SectionKey,
		Method:          string(res.Unlock.Method),
		CreditsUsed:     res.CreditsUsed,
		AlreadyUnlocked: res.AlreadyUnlocked,
	})
}

// ListUnlocks handles GET /api/artifacts/{id}/unlocks.
func (h *ArtifactHandler) ListUnlocks(w http.ResponseWriter, r *http.Request) {
	accountID, _ := middleware.AccountID(r.Context())

	artifactID, err := pathUUID(r, "id")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	unlocks, err := h.unlocks.ListUnlocks(r.Context(), accountID, artifactID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	out := make([]unlockResponse, 0, len(unlocks))
	for _, u := range unlocks {
		out = append(out, unlockResponse{
			SectionKey:  u.SectionKey,
			Method:      string(u.Method),
			CreditsUsed: u.CreditsUsed,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"unlocks": out})
}

// render builds the client view of an artifact. Sections beyond the free
// overview are included only when unlocked; the rest are listed as locked
// keys so the client can offer the unlock action.
func (h *ArtifactHandler) render(r *http.Request, accountID uuid.UUID, artifact *domain.Artifact) artifactResponse {
	resp := artifactResponse{
		ID:             artifact.ID,
		Type:           string(artifact.Type),
		ChargeMode:     string(artifact.ChargeMode),
		CreditsCharged: artifact.CreditsCharged,
		TargetPeriod:   artifact.TargetPeriod,
		ChartData:      artifact.ChartData,
		CreatedAt:      artifact.CreatedAt,
	}
	if !artifact.HasInterpretation() {
		return resp
	}

	resp.Provider = artifact.Interpretation.Provider
	resp.Model = artifact.Interpretation.Model

	unlocked := make(map[string]bool)
	if active, err := h.unlocks.ListUnlocks(r.Context(), accountID, artifact.ID); err == nil {
		for _, u := range active {
			unlocked[u.SectionKey] = true
		}
	} else {
		h.logger.Warn("failed to list unlocks for rendering", "artifact_id", artifact.ID, "error", err)
	}

	resp.Sections = make(map[string]string)
	for key, text := range artifact.Interpretation.Sections {
		if !domain.KnownSection(key) || unlocked[key] {
			resp.Sections[key] = text
			continue
		}
		resp.LockedSections = append(resp.LockedSections, key)
	}
	return resp
}

// pathUUID parses a UUID path parameter.
func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, domain.Invalid("handler.path", name+" must be a valid UUID")
	}
	return id, nil
}
