package handlers

import (
	"errors"
	"net/http"

	"github.com/Jujubee-LLM/signature-ai/internal/domain"
	"github.com/Jujubee-LLM/signature-ai/internal/middleware"
	"github.com/Jujubee-LLM/signature-ai/internal/redeem"
)

type redeemReq struct {
	Code string `json:"code"`
}

// PostRedeem applies a redeem code to the caller's balance.
func (a *App) PostRedeem(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())

	var req redeemReq
	if !a.decode(w, r, &req) {
		return
	}

	res, err := a.Redeem.Apply(r.Context(), userID, req.Code)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			a.json(w, http.StatusBadRequest, redeem.Result{Message: "code is required"})
			return
		}
		a.Log.Error().Err(err).Str("user_id", userID).Msg("redeem failed")
		a.error(w, http.StatusServiceUnavailable, "store_unavailable", "redeem unavailable, try again")
		return
	}

	status := http.StatusOK
	if !res.OK {
		status = http.StatusConflict
	}
	a.json(w, status, res)
}
