package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"maze-rewards/internal/auth"
	"maze-rewards/internal/model"
	"maze-rewards/internal/service"
)

// AdminAuthenticator logs admins in and validates their session tokens.
type AdminAuthenticator interface {
	Login(password string) (string, time.Time, error)
	ValidateToken(token string) (*auth.AdminClaims, error)
}

// AdminService is the reporting and admin mutation surface.
type AdminService interface {
	Stats(ctx context.Context) (*model.Stats, error)
	SearchAccounts(ctx context.Context, query string, limit, offset int) ([]*model.Account, int, error)
	FindAccount(ctx context.Context, key string) (*model.Account, error)
	AdjustCoins(ctx context.Context, uid string, delta int64) (*model.Account, error)
	PurgeAccount(ctx context.Context, uid string) error
	Online(ctx context.Context, limit int) ([]*model.Account, error)
	Charts(ctx context.Context, days int) ([]model.DailyPoint, error)
	Top(ctx context.Context, limit int) ([]*model.Account, error)
	Earners(ctx context.Context, period string, limit int) ([]model.EarnerRank, error)
	CloseMonth(ctx context.Context, month string) (*service.CloseSummary, error)
	Payouts(ctx context.Context, month string) ([]*model.MonthlyPayout, error)
}

type loginRequest struct {
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type adjustRequest struct {
	Delta int64 `json:"delta"`
}

type closeMonthRequest struct {
	Month string `json:"month"`
}

// UserPage is one page of the admin user listing.
type UserPage struct {
	Users  []*model.Account `json:"users"`
	Total  int              `json:"total"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

// AdminHandler serves the admin endpoints.
type AdminHandler struct {
	admin  AdminService
	tokens AdminAuthenticator
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(admin AdminService, tokens AdminAuthenticator) *AdminHandler {
	return &AdminHandler{admin: admin, tokens: tokens}
}

// Login handles POST /api/admin/login {password}.
func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body", CodeInvalidJSON)
		return
	}

	token, expires, err := h.tokens.Login(req.Password)
	switch {
	case errors.Is(err, auth.ErrAdminDisabled):
		WriteError(w, http.StatusForbidden, "Admin access is disabled", CodeAdminDisabled)
		return
	case errors.Is(err, auth.ErrInvalidCredentials):
		log.Warn().Str("remote", r.RemoteAddr).Msg("Failed admin login")
		WriteError(w, http.StatusUnauthorized, "Invalid credentials", CodeInvalidCredentials)
		return
	case err != nil:
		writeServiceError(w, r, err)
		return
	}

	log.Info().Str("remote", r.RemoteAddr).Msg("Admin logged in")
	WriteJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: expires})
}

// Stats handles GET /api/admin/stats.
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.admin.Stats(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}

// Users handles GET /api/admin/users?q=&limit=&offset=.
func (h *AdminHandler) Users(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 20)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error(), CodeValidation)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error(), CodeValidation)
		return
	}

	users, total, err := h.admin.SearchAccounts(r.Context(), r.URL.Query().Get("q"), limit, offset)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, UserPage{Users: users, Total: total, Limit: limit, Offset: offset})
}

// User handles GET /api/admin/users/{uid}.
func (h *AdminHandler) User(w http.ResponseWriter, r *http.Request) {
	acc, err := h.admin.FindAccount(r.Context(), chi.URLParam(r, "uid"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, acc)
}

// AdjustCoins handles POST /api/admin/users/{uid}/coins {delta}.
func (h *AdminHandler) AdjustCoins(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body", CodeInvalidJSON)
		return
	}

	acc, err := h.admin.AdjustCoins(r.Context(), chi.URLParam(r, "uid"), req.Delta)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, acc)
}

// Purge handles DELETE /api/admin/users/{uid}.
func (h *AdminHandler) Purge(w http.ResponseWriter, r *http.Request) {
	if err := h.admin.PurgeAccount(r.Context(), chi.URLParam(r, "uid")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Online handles GET /api/admin/online?limit=.
func (h *AdminHandler) Online(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 100)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error(), CodeValidation)
		return
	}
	users, err := h.admin.Online(r.Context(), limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"users": users, "count": len(users)})
}

// Charts handles GET /api/admin/charts?days=.
func (h *AdminHandler) Charts(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r, "days", 7)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error(), CodeValidation)
		return
	}
	points, err := h.admin.Charts(r.Context(), days)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"days": points})
}

// Top handles GET /api/admin/top?limit=.
func (h *AdminHandler) Top(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 10)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error(), CodeValidation)
		return
	}
	users, err := h.admin.Top(r.Context(), limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"users": users})
}

// Earners handles GET /api/admin/earners?period=&limit=.
func (h *AdminHandler) Earners(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 10)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error(), CodeValidation)
		return
	}
	ranks, err := h.admin.Earners(r.Context(), r.URL.Query().Get("period"), limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"earners": ranks})
}

// CloseMonth handles POST /api/admin/month/close {month?}.
func (h *AdminHandler) CloseMonth(w http.ResponseWriter, r *http.Request) {
	var req closeMonthRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body", CodeInvalidJSON)
		return
	}

	summary, err := h.admin.CloseMonth(r.Context(), req.Month)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, summary)
}

// Payouts handles GET /api/admin/payouts?month=.
func (h *AdminHandler) Payouts(w http.ResponseWriter, r *http.Request) {
	month := r.URL.Query().Get("month")
	payouts, err := h.admin.Payouts(r.Context(), month)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"month": month, "payouts": payouts})
}
