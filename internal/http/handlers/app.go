package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/Jujubee-LLM/signature-ai/internal/codes"
	"github.com/Jujubee-LLM/signature-ai/internal/quota"
	"github.com/Jujubee-LLM/signature-ai/internal/redeem"
)

// App bundles the engines behind the HTTP surface. The engines hold no
// mutable state, so one App serves all requests.
type App struct {
	Log    zerolog.Logger
	Quota  *quota.Engine
	Redeem *redeem.Engine
	Codes  *codes.Admin
}

// NewApp wires the handler container.
func NewApp(log zerolog.Logger, q *quota.Engine, r *redeem.Engine, c *codes.Admin) *App {
	return &App{Log: log, Quota: q, Redeem: r, Codes: c}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, msg string) {
	a.json(w, status, map[string]string{"error": code, "message": msg})
}

func (a *App) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "malformed json body")
		return false
	}
	return true
}
