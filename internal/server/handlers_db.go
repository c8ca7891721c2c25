package server

import (
	"context"
	"net/http"
	"time"

	"github.com/koustreak/relicmart/internal/connmgr"
	"github.com/koustreak/relicmart/internal/database"
	"github.com/koustreak/relicmart/internal/errs"
	"github.com/koustreak/relicmart/internal/item"
	"github.com/koustreak/relicmart/internal/logger"
	"github.com/koustreak/relicmart/internal/schema"
)

type successBody struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Status  *connmgr.Status `json:"status,omitempty"`
}

func (s *Server) handleTest(w http.ResponseWriter, r *http.Request) {
	var cfg database.DbConfig
	if err := decodeJSON(r, &cfg); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.mgr.Test(r.Context(), cfg); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successBody{Success: true, Message: "Connection successful"})
}

func (s *Server) handleConfigure(w http.ResponseWriter, r *http.Request) {
	var cfg database.DbConfig
	if err := decodeJSON(r, &cfg); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.mgr.Reconfigure(r.Context(), cfg); err != nil {
		writeError(w, r, err)
		return
	}
	st := s.mgr.Status()
	writeJSON(w, http.StatusOK, successBody{
		Success: true,
		Message: "Database configured successfully",
		Status:  &st,
	})
}

// handleStatus never fails while disconnected; ?verbose=1 adds the live
// column set of the active table.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("verbose") == "" {
		writeJSON(w, http.StatusOK, s.mgr.Status())
		return
	}
	st, err := s.mgr.Inspect(r.Context(), schema.Missing)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// imagePingTimeout bounds the object store check in /healthz.
const imagePingTimeout = 2 * time.Second

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":   "ok",
		"database": s.mgr.Active() != nil,
	}
	if s.images != nil {
		ctx, cancel := context.WithTimeout(r.Context(), imagePingTimeout)
		defer cancel()
		err := s.images.Ping(ctx)
		if err != nil {
			logger.FromContext(r.Context()).WarnWith("image store unreachable", err, nil)
		}
		body["images"] = err == nil
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleRarities(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, item.Rarities)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.auth.Enabled() {
		writeError(w, r, errs.New(errs.ErrKindNotFound, "authentication is disabled"))
		return
	}
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	token, exp, err := s.auth.Login(req.Username, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: exp.UTC()})
}
