package httpapi

import (
	"errors"
	"net/http"

	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/billing"
	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/orchestrator"
	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/providers"
	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/storage"
	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/utils"
)

// respondWithMappedError is the single place service errors become HTTP
// statuses. Lower layers return typed errors and never pick codes.
func respondWithMappedError(w http.ResponseWriter, logger *utils.Logger, err error) {
	switch {
	case errors.Is(err, storage.ErrAgentNotFound):
		utils.RespondWithError(w, http.StatusNotFound, "Agent not found")
	case errors.Is(err, billing.ErrUnknownPack):
		utils.RespondWithError(w, http.StatusBadRequest, "Unknown credit pack")
	case errors.Is(err, billing.ErrUnknownEventType):
		utils.RespondWithError(w, http.StatusBadRequest, "Unknown billing event type")
	default:
		if provErr, ok := providers.AsError(err); ok {
			status, message := providerErrorStatus(provErr)
			utils.RespondWithError(w, status, message)
			return
		}
		logger.Error("unhandled service error", "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func providerErrorStatus(err *providers.Error) (int, string) {
	switch err.Kind {
	case providers.KindValidation:
		return http.StatusBadRequest, err.Detail
	case providers.KindRateLimit:
		return http.StatusTooManyRequests, "Provider rate limit reached, try again shortly"
	default:
		return http.StatusBadGateway, "Upstream provider failure"
	}
}

// statusForState maps terminal turn states onto response codes. The
// fallback state is a successful HTTP exchange carrying an apology, not
// a transport failure.
func statusForState(state orchestrator.TurnState) int {
	switch state {
	case orchestrator.StatePaywall:
		return http.StatusPaymentRequired
	case orchestrator.StateCreditError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusOK
	}
}
