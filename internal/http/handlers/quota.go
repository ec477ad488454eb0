package handlers

import (
	"errors"
	"net/http"

	"github.com/Jujubee-LLM/signature-ai/internal/domain"
	"github.com/Jujubee-LLM/signature-ai/internal/middleware"
)

// GetQuota returns the caller's remaining balance. Reads degrade instead of
// failing: with the store down the user sees an all-zero snapshot flagged
// unavailable rather than an error page. Writes never get this treatment.
func (a *App) GetQuota(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())

	snap, err := a.Quota.Snapshot(r.Context(), userID)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			a.error(w, http.StatusBadRequest, "bad_request", "invalid user id")
			return
		}
		a.Log.Warn().Err(err).Str("user_id", userID).Msg("quota read degraded")
		snap = domain.QuotaSnapshot{Unavailable: true}
	}
	a.json(w, http.StatusOK, map[string]any{"quota": snap})
}

// ConsumeQuota atomically debits one generation. The generation layer calls
// this before the provider call and refunds on provider failure.
func (a *App) ConsumeQuota(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())

	res, err := a.Quota.Consume(r.Context(), userID)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			a.error(w, http.StatusBadRequest, "bad_request", "invalid user id")
			return
		}
		a.Log.Error().Err(err).Str("user_id", userID).Msg("quota consume failed")
		a.error(w, http.StatusServiceUnavailable, "store_unavailable", "quota check unavailable, try again")
		return
	}
	a.json(w, http.StatusOK, res)
}

type refundReq struct {
	ConsumedFrom string `json:"consumed_from"`
}

// RefundQuota reverses one unit from the bucket a prior consume debited.
func (a *App) RefundQuota(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())

	var req refundReq
	if !a.decode(w, r, &req) {
		return
	}

	snap, err := a.Quota.Refund(r.Context(), userID, domain.Bucket(req.ConsumedFrom))
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			a.error(w, http.StatusBadRequest, "bad_request", "consumed_from must be \"free\" or \"paid\"")
			return
		}
		a.Log.Error().Err(err).Str("user_id", userID).Msg("quota refund failed")
		a.error(w, http.StatusServiceUnavailable, "store_unavailable", "refund unavailable, try again")
		return
	}
	a.json(w, http.StatusOK, map[string]any{"quota": snap})
}
