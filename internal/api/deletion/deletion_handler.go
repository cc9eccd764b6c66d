package deletion

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	appMiddleware "github.com/FACorreiaa/go-identity-service/app/middleware"
	"github.com/FACorreiaa/go-identity-service/internal/api"
	"github.com/FACorreiaa/go-identity-service/internal/types"
)

type HandlerImpl struct {
	deletionService DeletionService
	logger          *slog.Logger
}

func NewHandlerImpl(deletionService DeletionService, logger *slog.Logger) *HandlerImpl {
	return &HandlerImpl{
		deletionService: deletionService,
		logger:          logger,
	}
}

// outcomeStatus maps a saga outcome to an HTTP status.
func outcomeStatus(o types.DeletionOutcome) int {
	switch o.Kind {
	case types.OutcomeSuccess:
		return http.StatusOK
	case types.OutcomeValidationFailed:
		if errors.Is(o.Cause, types.ErrNotFound) {
			return http.StatusNotFound
		}
		return http.StatusBadRequest
	case types.OutcomeCleanupFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// DeleteUser godoc
// @Summary      Delete User
// @Description  Removes the user's dependencies from the task, project and organization services, revokes their sessions and deletes the account.
// @Tags         User
// @Produce      json
// @Param        userID path string true "User ID"
// @Success      200 {object} types.Response "User deleted"
// @Failure      400 {object} types.Response "Deletion refused"
// @Failure      404 {object} types.Response "User not found"
// @Failure      502 {object} types.Response "Dependency cleanup failed"
// @Failure      500 {object} types.Response "Internal error"
// @Security     BearerAuth
// @Router       /users/{userID} [delete]
func (h *HandlerImpl) DeleteUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := h.logger.With(slog.String("HandlerImpl", "DeleteUser"))

	requesterStr, ok := appMiddleware.GetUserIDFromContext(ctx)
	if !ok {
		api.ErrorResponse(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}
	requesterID, err := uuid.Parse(requesterStr)
	if err != nil {
		l.WarnContext(ctx, "Invalid requester ID in context", slog.String("requesterID", requesterStr))
		api.ErrorResponse(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	targetID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, "Invalid user ID")
		return
	}

	outcome := h.deletionService.DeleteUserWithDependencies(ctx, targetID, requesterID)
	status := outcomeStatus(outcome)
	if !outcome.Succeeded() {
		l.InfoContext(ctx, "User deletion did not complete",
			slog.String("outcome", string(outcome.Kind)),
			slog.String("step", string(outcome.Step)),
			slog.Int("status", status))
		api.ErrorResponse(w, r, status, outcome.Message)
		return
	}

	api.SuccessResponse(w, r, status, outcome.Message, types.DeletedUserData{UserID: outcome.UserID})
}
