package handler

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/backstab/internal/auth"
	"github.com/freeeve/backstab/internal/server"
)

// AuthHandler issues the connection-level JWT used on the WebSocket
// upgrade. Channel tokens remain opaque and come from sign_in frames.
type AuthHandler struct {
	srv    *server.Server
	jwtMgr *auth.JWTManager
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(srv *server.Server, jwtMgr *auth.JWTManager) *AuthHandler {
	return &AuthHandler{srv: srv, jwtMgr: jwtMgr}
}

// Login handles POST /auth/login: verifies credentials (registering the
// account on first use) and returns a connection JWT.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	defer r.Body.Close()

	if err := h.srv.Users().Register(req.Username, req.Password); err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	token, err := h.jwtMgr.GenerateToken(req.Username)
	if err != nil {
		log.Error().Err(err).Msg("Failed to sign connection token")
		writeError(w, http.StatusInternalServerError, "token generation failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}
