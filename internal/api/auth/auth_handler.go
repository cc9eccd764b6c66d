package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	appMiddleware "github.com/FACorreiaa/go-identity-service/app/middleware"
	"github.com/FACorreiaa/go-identity-service/internal/api"
	"github.com/FACorreiaa/go-identity-service/internal/types"
)

type AuthHandler struct {
	authService AuthService
	logger      *slog.Logger
}

func NewAuthHandler(authService AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		logger:      logger,
		authService: authService,
	}
}

// writeAuthError maps token and credential failures to 401 without leaking which check failed.
func writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, types.ErrTokenRevoked), errors.Is(err, types.ErrTokenExpired):
		api.ErrorResponse(w, r, http.StatusUnauthorized, "Invalid or expired refresh token")
	case errors.Is(err, types.ErrUnauthenticated):
		api.ErrorResponse(w, r, http.StatusUnauthorized, "Invalid credentials")
	default:
		api.ErrorResponse(w, r, http.StatusInternalServerError, "Internal server error")
	}
}

// Login godoc
// @Summary      User Login
// @Description  Authenticates a user and returns an access token and a refresh token.
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        credentials body types.LoginRequest true "User Credentials"
// @Success      200 {object} types.TokenPair
// @Failure      400 {object} types.Response "Invalid Input"
// @Failure      401 {object} types.Response "Authentication Failed"
// @Router       /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := h.logger.With(slog.String("handler", "Login"))

	var req types.LoginRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		api.ErrorResponse(w, r, http.StatusBadRequest, "Email and password are required")
		return
	}

	pair, err := h.authService.Login(ctx, req.Email, req.Password)
	if err != nil {
		l.InfoContext(ctx, "Login failed", slog.Any("error", err))
		writeAuthError(w, r, err)
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, pair)
}

// Refresh godoc
// @Summary      Rotate Refresh Token
// @Description  Exchanges an active refresh token for a new token pair. The presented token is revoked.
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body body types.RefreshTokenRequest true "Refresh Token"
// @Success      200 {object} types.TokenPair
// @Failure      400 {object} types.Response "Invalid Input"
// @Failure      401 {object} types.Response "Invalid or Expired Token"
// @Router       /auth/refresh [post]
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := h.logger.With(slog.String("handler", "Refresh"))

	var req types.RefreshTokenRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.RefreshToken == "" {
		api.ErrorResponse(w, r, http.StatusBadRequest, "Refresh token is required")
		return
	}

	pair, err := h.authService.Refresh(ctx, req.RefreshToken)
	if err != nil {
		l.InfoContext(ctx, "Refresh failed", slog.Any("error", err))
		writeAuthError(w, r, err)
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, pair)
}

// Logout godoc
// @Summary      User Logout
// @Description  Revokes the given refresh token. Always succeeds.
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body body types.RefreshTokenRequest true "Refresh Token"
// @Success      200 {object} types.Response
// @Router       /auth/logout [post]
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := h.logger.With(slog.String("handler", "Logout"))

	var req types.RefreshTokenRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if req.RefreshToken != "" {
		if err := h.authService.Logout(ctx, req.RefreshToken); err != nil {
			l.WarnContext(ctx, "Logout could not revoke refresh token", slog.Any("error", err))
		}
	}
	api.SuccessResponse(w, r, http.StatusOK, "Logged out successfully.", nil)
}

// LogoutAll godoc
// @Summary      Logout Everywhere
// @Description  Revokes every refresh token of the authenticated user.
// @Tags         Auth
// @Produce      json
// @Success      200 {object} types.Response
// @Failure      401 {object} types.Response "Unauthorized"
// @Security     BearerAuth
// @Router       /auth/logout-all [post]
func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := h.logger.With(slog.String("handler", "LogoutAll"))

	userIDStr, ok := appMiddleware.GetUserIDFromContext(ctx)
	if !ok {
		api.ErrorResponse(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		api.ErrorResponse(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	n, err := h.authService.LogoutAll(ctx, userID)
	if err != nil {
		l.ErrorContext(ctx, "Failed to revoke refresh tokens", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusInternalServerError, "Failed to log out")
		return
	}
	api.SuccessResponse(w, r, http.StatusOK, "Logged out of all sessions.", map[string]int64{"revoked": n})
}

// ListRefreshTokens godoc
// @Summary      Refresh Token Audit
// @Description  Lists a user's refresh tokens newest first, including rotation links.
// @Tags         Auth
// @Produce      json
// @Param        userID path string true "User ID"
// @Success      200 {object} types.Response
// @Failure      400 {object} types.Response "Invalid User ID"
// @Security     BearerAuth
// @Router       /users/{userID}/refresh-tokens [get]
func (h *AuthHandler) ListRefreshTokens(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := h.logger.With(slog.String("handler", "ListRefreshTokens"))

	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, "Invalid user ID")
		return
	}

	tokens, err := h.authService.ListRefreshTokens(ctx, userID)
	if err != nil {
		l.ErrorContext(ctx, "Failed to list refresh tokens", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusInternalServerError, "Failed to list refresh tokens")
		return
	}
	api.SuccessResponse(w, r, http.StatusOK, "", tokens)
}
