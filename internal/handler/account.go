package handler

import (
	"log/slog"
	"net/http"

	"github.com/smartdiet/smartdiet/internal/auth"
	"github.com/smartdiet/smartdiet/internal/handler/dto"
	"github.com/smartdiet/smartdiet/internal/middleware"
	"github.com/smartdiet/smartdiet/internal/service"
)

// AccountHandler handles signup, login and logout.
type AccountHandler struct {
	svc    *service.AccountService
	logger *slog.Logger
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(svc *service.AccountService, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		svc:    svc,
		logger: logger.With("handler", "account"),
	}
}

func sessionMeta(r *http.Request) service.SessionMeta {
	return service.SessionMeta{
		UserAgent: r.UserAgent(),
		ClientIP:  middleware.ClientIP(r),
	}
}

func toAuthResponse(res *service.AuthResult) dto.AuthResponse {
	return dto.AuthResponse{
		User:      res.User,
		Token:     res.Token,
		TokenType: "Bearer",
		ExpiresAt: res.ExpiresAt,
		Dashboard: res.Dashboard,
	}
}

// Signup handles POST /api/v1/auth/signup.
func (h *AccountHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req dto.SignupRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.svc.Signup(r.Context(), service.SignupInput{
		Role:            req.Role,
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
		Name:            req.Name,
		Phone:           req.Phone,
		MedicalID:       req.MedicalID,
		Specialization:  req.Specialization,
		Age:             req.Age,
		Gender:          req.Gender,
		HeightCM:        req.HeightCM,
		WeightKG:        req.WeightKG,
		FitnessGoal:     req.FitnessGoal,
	}, sessionMeta(r))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	h.logger.Info("account_created", "user_id", res.User.ID, "role", res.User.Role)
	writeJSON(w, http.StatusCreated, toAuthResponse(res))
}

// Login handles POST /api/v1/auth/login.
func (h *AccountHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.svc.Login(r.Context(), service.LoginInput{
		Role:       req.Role,
		Identifier: req.LoginIdentifier(),
		Password:   req.Password,
	}, sessionMeta(r))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuthResponse(res))
}

// Logout handles POST /api/v1/auth/logout.
func (h *AccountHandler) Logout(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.MustAuthFromContext(r.Context())
	if err := h.svc.Logout(r.Context(), authCtx.SessionID, middleware.BearerToken(r)); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	noContent(w)
}

// LogoutAll handles POST /api/v1/auth/logout-all.
func (h *AccountHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.MustAuthFromContext(r.Context())
	n, err := h.svc.LogoutAll(r.Context(), authCtx.UserID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	h.logger.Info("sessions_revoked", "user_id", authCtx.UserID, "count", n)
	writeJSON(w, http.StatusOK, dto.LogoutAllResponse{Revoked: n})
}
