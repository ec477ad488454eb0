package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Jujubee-LLM/signature-ai/internal/codes"
	"github.com/Jujubee-LLM/signature-ai/internal/domain"
)

type createCodeReq struct {
	Code    string `json:"code"`
	Credits int    `json:"credits"`
	MaxUses int    `json:"max_uses"`
	Active  *bool  `json:"active"`
}

func (a *App) CreateCode(w http.ResponseWriter, r *http.Request) {
	var req createCodeReq
	if !a.decode(w, r, &req) {
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	rec, err := a.Codes.Create(r.Context(), codes.CreateParams{
		Code:    req.Code,
		Credits: req.Credits,
		MaxUses: req.MaxUses,
		Active:  active,
	})
	if err != nil {
		if errors.Is(err, domain.ErrCodeExists) {
			a.error(w, http.StatusConflict, "conflict", "code already exists")
			return
		}
		a.Log.Error().Err(err).Msg("code create failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to create code")
		return
	}
	a.json(w, http.StatusCreated, rec)
}

type batchCodeReq struct {
	Count   int    `json:"count"`
	Credits int    `json:"credits"`
	MaxUses int    `json:"max_uses"`
	Prefix  string `json:"prefix"`
}

func (a *App) CreateCodeBatch(w http.ResponseWriter, r *http.Request) {
	var req batchCodeReq
	if !a.decode(w, r, &req) {
		return
	}

	recs, err := a.Codes.CreateBatch(r.Context(), req.Count, req.Credits, req.MaxUses, req.Prefix)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			a.error(w, http.StatusBadRequest, "bad_request", "count must be at least 1")
			return
		}
		a.Log.Error().Err(err).Msg("code batch failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to create codes")
		return
	}
	a.json(w, http.StatusCreated, map[string]any{"items": recs})
}

func (a *App) ListCodes(w http.ResponseWriter, r *http.Request) {
	cursor := r.URL.Query().Get("cursor")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit == 0 {
		limit = 50
	}

	page, err := a.Codes.List(r.Context(), cursor, limit)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			a.error(w, http.StatusBadRequest, "bad_request", "invalid cursor")
			return
		}
		a.Log.Error().Err(err).Msg("code list failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to list codes")
		return
	}
	a.json(w, http.StatusOK, page)
}

func (a *App) GetCode(w http.ResponseWriter, r *http.Request) {
	rec, err := a.Codes.Get(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			a.error(w, http.StatusNotFound, "not_found", "code not found")
		case errors.Is(err, domain.ErrInvalidInput):
			a.error(w, http.StatusBadRequest, "bad_request", "code is required")
		default:
			a.Log.Error().Err(err).Msg("code get failed")
			a.error(w, http.StatusInternalServerError, "internal", "failed to load code")
		}
		return
	}
	a.json(w, http.StatusOK, rec)
}

type setActiveReq struct {
	Active bool `json:"active"`
}

func (a *App) SetCodeActive(w http.ResponseWriter, r *http.Request) {
	var req setActiveReq
	if !a.decode(w, r, &req) {
		return
	}

	rec, err := a.Codes.SetActive(r.Context(), chi.URLParam(r, "code"), req.Active)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			a.error(w, http.StatusNotFound, "not_found", "code not found")
		case errors.Is(err, domain.ErrInvalidInput):
			a.error(w, http.StatusBadRequest, "bad_request", "code is required")
		default:
			a.Log.Error().Err(err).Msg("code update failed")
			a.error(w, http.StatusInternalServerError, "internal", "failed to update code")
		}
		return
	}
	a.json(w, http.StatusOK, rec)
}

type grantReq struct {
	Credits int `json:"credits"`
}

func (a *App) GrantCredits(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")

	var req grantReq
	if !a.decode(w, r, &req) {
		return
	}

	snap, err := a.Quota.Grant(r.Context(), userID, req.Credits)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			a.error(w, http.StatusBadRequest, "bad_request", "valid user id and positive credits required")
			return
		}
		a.Log.Error().Err(err).Str("user_id", userID).Msg("credit grant failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to grant credits")
		return
	}
	a.json(w, http.StatusOK, map[string]any{"quota": snap})
}

func (a *App) AdminStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.Codes.ComputeStats(r.Context())
	if err != nil {
		a.Log.Error().Err(err).Msg("stats failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load stats")
		return
	}
	a.json(w, http.StatusOK, stats)
}
