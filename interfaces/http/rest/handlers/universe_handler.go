package handlers

import (
	"net/http"

	"particle-universe/application/commands"
	"particle-universe/application/commands/bus"
	"particle-universe/application/queries"
	querybus "particle-universe/application/queries/bus"
	"particle-universe/application/services"
	"particle-universe/pkg/common"
	pkgerrors "particle-universe/pkg/errors"

	"go.uber.org/zap"
)

// UniverseHandler serves universe-wide reads and the manual tick trigger
type UniverseHandler struct {
	commandBus *bus.CommandBus
	queryBus   *querybus.QueryBus
	errors     *pkgerrors.ErrorHandler
	logger     *zap.Logger
}

// NewUniverseHandler creates a new universe handler
func NewUniverseHandler(
	commandBus *bus.CommandBus,
	queryBus *querybus.QueryBus,
	errorHandler *pkgerrors.ErrorHandler,
	logger *zap.Logger,
) *UniverseHandler {
	return &UniverseHandler{
		commandBus: commandBus,
		queryBus:   queryBus,
		errors:     errorHandler,
		logger:     logger,
	}
}

// GetState handles GET /universe
func (h *UniverseHandler) GetState(w http.ResponseWriter, r *http.Request) {
	result, err := h.queryBus.Ask(r.Context(), queries.GetUniverseStateQuery{})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, result)
}

// TriggerTick handles POST /universe/ticks
func (h *UniverseHandler) TriggerTick(w http.ResponseWriter, r *http.Request) {
	userID, _ := common.GetUserID(r.Context())

	result, err := h.commandBus.Send(r.Context(), commands.TriggerTickCommand{RequestedBy: userID})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	report := result.(*services.TickReport)
	h.logger.Info("Tick triggered over HTTP",
		zap.String("requestedBy", userID),
		zap.Int64("tickNumber", report.TickNumber),
	)
	common.RespondJSON(w, http.StatusOK, report)
}

// PreviewInteraction handles GET /interactions/preview?a=&b=
func (h *UniverseHandler) PreviewInteraction(w http.ResponseWriter, r *http.Request) {
	result, err := h.queryBus.Ask(r.Context(), queries.EvaluateInteractionQuery{
		ParticleA: r.URL.Query().Get("a"),
		ParticleB: r.URL.Query().Get("b"),
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, result)
}

// Compatibility handles GET /compatibility?a=&b=
func (h *UniverseHandler) Compatibility(w http.ResponseWriter, r *http.Request) {
	result, err := h.queryBus.Ask(r.Context(), queries.GetCompatibilityQuery{
		ParticleA: r.URL.Query().Get("a"),
		ParticleB: r.URL.Query().Get("b"),
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, result)
}
