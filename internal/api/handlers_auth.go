package api

import (
	"net/http"

	"reposcope/internal/auth"
	"reposcope/internal/errors"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var creds auth.Credentials
	if err := decodeJSON(r, &creds); err != nil {
		s.writeRequestError(w, r, err)
		return
	}

	sess, err := s.auth.Register(r.Context(), creds)
	if err != nil {
		s.writeRequestError(w, r, err)
		return
	}

	auth.SetSessionCookie(w, sess.Token, sess.ExpiresAt, s.config.CookieSecure)
	WriteJSON(w, sess, http.StatusCreated)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds auth.Credentials
	if err := decodeJSON(r, &creds); err != nil {
		s.writeRequestError(w, r, err)
		return
	}

	sess, err := s.auth.Login(r.Context(), creds)
	if err != nil {
		s.writeRequestError(w, r, err)
		return
	}

	auth.SetSessionCookie(w, sess.Token, sess.ExpiresAt, s.config.CookieSecure)
	WriteJSON(w, sess, http.StatusOK)
}

// handleLogout clears the cookie. Tokens are stateless, so a copied bearer
// token stays valid until it expires.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	auth.ClearSessionCookie(w, s.config.CookieSecure)
	WriteJSON(w, map[string]string{"status": "logged out"}, http.StatusOK)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		s.writeRequestError(w, r, errors.New(errors.Unauthorized, "authentication required", nil))
		return
	}
	WriteJSON(w, map[string]interface{}{"user": user}, http.StatusOK)
}
