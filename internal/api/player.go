package api

import (
	"context"
	"net/http"

	"maze-rewards/internal/auth"
	"maze-rewards/internal/model"
	"maze-rewards/internal/service"
)

// IdentityVerifier resolves player bearer tokens.
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (auth.Identity, error)
}

// AccountService is the account surface the API needs.
type AccountService interface {
	EnsureAccount(ctx context.Context, uid, username string) (*model.Account, error)
	Transactions(ctx context.Context, uid string, limit, offset int) ([]*model.Transaction, error)
	Levels(ctx context.Context, uid string) ([]model.LevelReward, error)
}

// RewardService is the reward engine surface the API needs.
type RewardService interface {
	ClaimDailyLogin(ctx context.Context, uid string) (*service.ClaimResult, error)
	ClaimLevelComplete(ctx context.Context, uid string, level int) (*service.ClaimResult, error)
	ClaimAdReward(ctx context.Context, uid, clientNonce string) (*service.ClaimResult, error)
	RecordInvite(ctx context.Context, inviterUID, inviteeUID string) (*service.ClaimResult, error)
	Consume(ctx context.Context, uid string, kind model.ConsumableKind, mode model.ConsumeMode, nonce string) (*service.ConsumeResult, error)
}

// ClaimResponse is returned by every reward endpoint. Already is true when
// the event had been paid before and nothing changed.
type ClaimResponse struct {
	Already bool           `json:"already"`
	Amount  int64          `json:"amount"`
	User    *model.Account `json:"user"`
}

// InviteResponse is returned to the invitee; the inviter's account stays private.
type InviteResponse struct {
	Already    bool   `json:"already"`
	InviterUID string `json:"inviterUid"`
}

type levelRequest struct {
	Level *int `json:"level"`
}

type adRequest struct {
	Nonce string `json:"nonce"`
}

type inviteRequest struct {
	InviterUID string `json:"inviterUid"`
}

type consumeRequest struct {
	Kind  model.ConsumableKind `json:"kind"`
	Mode  model.ConsumeMode    `json:"mode"`
	Nonce string               `json:"nonce,omitempty"`
}

// PlayerHandler serves the authenticated player endpoints.
type PlayerHandler struct {
	accounts AccountService
	rewards  RewardService
}

// NewPlayerHandler creates a new PlayerHandler.
func NewPlayerHandler(accounts AccountService, rewards RewardService) *PlayerHandler {
	return &PlayerHandler{accounts: accounts, rewards: rewards}
}

func currentAccount(w http.ResponseWriter, r *http.Request) (*model.Account, bool) {
	acc, ok := AccountFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "Authentication required", CodeAuthRequired)
	}
	return acc, ok
}

func writeClaim(w http.ResponseWriter, res *service.ClaimResult) {
	WriteJSON(w, http.StatusOK, ClaimResponse{
		Already: !res.Applied,
		Amount:  res.Amount,
		User:    res.Account,
	})
}

// Me handles GET /api/me.
func (h *PlayerHandler) Me(w http.ResponseWriter, r *http.Request) {
	acc, ok := currentAccount(w, r)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, acc)
}

// Transactions handles GET /api/me/transactions?limit=&offset=.
func (h *PlayerHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	acc, ok := currentAccount(w, r)
	if !ok {
		return
	}
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

	txs, err := h.accounts.Transactions(r.Context(), acc.UID, limit, offset)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"transactions": txs})
}

// Levels handles GET /api/me/levels.
func (h *PlayerHandler) Levels(w http.ResponseWriter, r *http.Request) {
	acc, ok := currentAccount(w, r)
	if !ok {
		return
	}
	levels, err := h.accounts.Levels(r.Context(), acc.UID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"levels": levels})
}

// ClaimDaily handles POST /api/rewards/daily.
func (h *PlayerHandler) ClaimDaily(w http.ResponseWriter, r *http.Request) {
	acc, ok := currentAccount(w, r)
	if !ok {
		return
	}
	res, err := h.rewards.ClaimDailyLogin(r.Context(), acc.UID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeClaim(w, res)
}

// ClaimLevel handles POST /api/rewards/level {level}.
func (h *PlayerHandler) ClaimLevel(w http.ResponseWriter, r *http.Request) {
	acc, ok := currentAccount(w, r)
	if !ok {
		return
	}
	var req levelRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body", CodeInvalidJSON)
		return
	}
	if req.Level == nil {
		WriteError(w, http.StatusBadRequest, "level is required", CodeValidation)
		return
	}

	res, err := h.rewards.ClaimLevelComplete(r.Context(), acc.UID, *req.Level)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeClaim(w, res)
}

// ClaimAd handles POST /api/rewards/ad {nonce}.
func (h *PlayerHandler) ClaimAd(w http.ResponseWriter, r *http.Request) {
	acc, ok := currentAccount(w, r)
	if !ok {
		return
	}
	var req adRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body", CodeInvalidJSON)
		return
	}

	res, err := h.rewards.ClaimAdReward(r.Context(), acc.UID, req.Nonce)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeClaim(w, res)
}

// Invite handles POST /api/rewards/invite {inviterUid}. The caller is the
// invitee; the inviter is credited.
func (h *PlayerHandler) Invite(w http.ResponseWriter, r *http.Request) {
	acc, ok := currentAccount(w, r)
	if !ok {
		return
	}
	var req inviteRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body", CodeInvalidJSON)
		return
	}

	res, err := h.rewards.RecordInvite(r.Context(), req.InviterUID, acc.UID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, InviteResponse{Already: !res.Applied, InviterUID: req.InviterUID})
}

// Consume handles POST /api/consume {kind, mode, nonce?}.
func (h *PlayerHandler) Consume(w http.ResponseWriter, r *http.Request) {
	acc, ok := currentAccount(w, r)
	if !ok {
		return
	}
	var req consumeRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body", CodeInvalidJSON)
		return
	}

	res, err := h.rewards.Consume(r.Context(), acc.UID, req.Kind, req.Mode, req.Nonce)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, res)
}
