package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"particle-universe/application/commands"
	"particle-universe/application/commands/bus"
	"particle-universe/application/queries"
	querybus "particle-universe/application/queries/bus"
	"particle-universe/domain/core/entities"
	"particle-universe/domain/core/valueobjects"
	"particle-universe/pkg/common"
	pkgerrors "particle-universe/pkg/errors"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// maxBodyBytes bounds request bodies; the largest payload is a trait vector
const maxBodyBytes = 16 << 10

// ParticleHandler handles particle-related HTTP requests
type ParticleHandler struct {
	commandBus *bus.CommandBus
	queryBus   *querybus.QueryBus
	errors     *pkgerrors.ErrorHandler
	logger     *zap.Logger
}

// NewParticleHandler creates a new particle handler
func NewParticleHandler(
	commandBus *bus.CommandBus,
	queryBus *querybus.QueryBus,
	errorHandler *pkgerrors.ErrorHandler,
	logger *zap.Logger,
) *ParticleHandler {
	return &ParticleHandler{
		commandBus: commandBus,
		queryBus:   queryBus,
		errors:     errorHandler,
		logger:     logger,
	}
}

// SpawnParticleRequest is the body of POST /particles. Both fields are
// optional.
type SpawnParticleRequest struct {
	Position *valueobjects.Vector2     `json:"position,omitempty"`
	Traits   *valueobjects.TraitVector `json:"traits,omitempty"`
}

// UpdateStateRequest is the body of PATCH /particles/{particleID}/state
type UpdateStateRequest struct {
	EnergyBoost *float64              `json:"energyBoost,omitempty"`
	Velocity    *valueobjects.Vector2 `json:"velocity,omitempty"`
}

// Spawn handles POST /particles
func (h *ParticleHandler) Spawn(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.GetUserID(r.Context())
	if !ok {
		h.errors.HandleStatus(w, r, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req SpawnParticleRequest
	if r.ContentLength != 0 {
		if err := common.ParseJSONBody(w, r, &req, maxBodyBytes); err != nil {
			h.errors.Handle(w, r, pkgerrors.NewValidationError("Invalid request body: "+err.Error()))
			return
		}
	}

	result, err := h.commandBus.Send(r.Context(), commands.SpawnParticleCommand{
		UserID:   userID,
		Position: req.Position,
		Traits:   req.Traits,
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	particle, ok := result.(*entities.Particle)
	if !ok {
		h.errors.Handle(w, r, pkgerrors.NewInternalError(fmt.Sprintf("unexpected spawn result %T", result)))
		return
	}

	h.logger.Info("Particle spawned",
		zap.String("particleID", particle.ID().String()),
		zap.String("userID", userID),
	)
	common.RespondJSON(w, http.StatusCreated, queries.NewParticleView(particle))
}

// List handles GET /particles
func (h *ParticleHandler) List(w http.ResponseWriter, r *http.Request) {
	params := common.ExtractCursorParams(r)

	result, err := h.queryBus.Ask(r.Context(), queries.ListActiveParticlesQuery{
		Limit:  params.Limit,
		Cursor: params.Cursor,
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	page := result.(*queries.ListActiveParticlesResult)
	requestID, _ := common.GetRequestID(r.Context())
	common.RespondWithMeta(w, http.StatusOK, page.Particles, &common.MetaInfo{
		RequestID: requestID,
		Pagination: &common.CursorInfo{
			Limit:      params.Limit,
			NextCursor: page.NextCursor,
			HasMore:    page.HasMore,
		},
	})
}

// GetMine handles GET /me/particle
func (h *ParticleHandler) GetMine(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.GetUserID(r.Context())
	if !ok {
		h.errors.HandleStatus(w, r, http.StatusUnauthorized, "User not authenticated")
		return
	}
	h.respondByUser(w, r, userID)
}

// GetByUser handles GET /users/{userID}/particle
func (h *ParticleHandler) GetByUser(w http.ResponseWriter, r *http.Request) {
	h.respondByUser(w, r, chi.URLParam(r, "userID"))
}

func (h *ParticleHandler) respondByUser(w http.ResponseWriter, r *http.Request, userID string) {
	result, err := h.queryBus.Ask(r.Context(), queries.GetParticleByUserQuery{UserID: userID})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, result)
}

// Get handles GET /particles/{particleID}
func (h *ParticleHandler) Get(w http.ResponseWriter, r *http.Request) {
	result, err := h.queryBus.Ask(r.Context(), queries.GetParticleQuery{
		ParticleID: chi.URLParam(r, "particleID"),
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, result)
}

// UpdateState handles PATCH /particles/{particleID}/state
func (h *ParticleHandler) UpdateState(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.GetUserID(r.Context())
	if !ok {
		h.errors.HandleStatus(w, r, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req UpdateStateRequest
	if r.ContentLength != 0 {
		if err := common.ParseJSONBody(w, r, &req, maxBodyBytes); err != nil {
			h.errors.Handle(w, r, pkgerrors.NewValidationError("Invalid request body: "+err.Error()))
			return
		}
	}

	result, err := h.commandBus.Send(r.Context(), commands.UpdateParticleStateCommand{
		ParticleID:  chi.URLParam(r, "particleID"),
		UserID:      userID,
		EnergyBoost: req.EnergyBoost,
		Velocity:    req.Velocity,
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	particle := result.(*entities.Particle)
	common.RespondJSON(w, http.StatusOK, queries.NewParticleView(particle))
}

// Neighbors handles GET /particles/{particleID}/neighbors?radius=
func (h *ParticleHandler) Neighbors(w http.ResponseWriter, r *http.Request) {
	query := queries.GetNeighborsQuery{ParticleID: chi.URLParam(r, "particleID")}

	// Zero radius means the configured interaction radius
	if raw := r.URL.Query().Get("radius"); raw != "" {
		radius, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			h.errors.Handle(w, r, pkgerrors.NewValidationError("radius must be a number"))
			return
		}
		query.Radius = radius
	}

	result, err := h.queryBus.Ask(r.Context(), query)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, result)
}
