package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"inkwell.dev/internal/audit"
	"inkwell.dev/internal/identity"
	"inkwell.dev/internal/mail"
	"inkwell.dev/internal/obs"
)

const (
	magicLinkTTL     = 15 * time.Minute
	passwordResetTTL = 30 * time.Minute
)

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Session identity.Session `json:"session"`
	User    *identity.User   `json:"user,omitempty"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	hash, err := identity.HashPassword(req.Password)
	if err != nil {
		handleIdentityError(w, r, err)
		return
	}
	user := &identity.User{Email: req.Email, Name: strings.TrimSpace(req.Name), PasswordHash: hash}
	if err := a.users.Create(r.Context(), user); err != nil {
		handleIdentityError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "identity.user.register", map[string]any{
		"user_id": user.ID,
	})
	writeJSON(w, http.StatusCreated, user)
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.users.FindByEmail(r.Context(), req.Email)
	if err != nil {
		obs.CountLogin("password", "denied")
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err := identity.VerifyPassword(user.PasswordHash, req.Password); err != nil {
		obs.CountLogin("password", "denied")
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		return
	}
	session, err := a.sessions.Issue(r.Context(), user.ID, nil)
	if err != nil {
		handleIdentityError(w, r, err)
		return
	}
	obs.CountLogin("password", "ok")
	obs.CountSessionIssued()
	_ = audit.LogEvent(r.Context(), "identity.session.issue", map[string]any{
		"user_id":    user.ID,
		"session_id": session.ID,
		"method":     "password",
	})
	writeJSON(w, http.StatusOK, sessionResponse{Session: session, User: user})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	gate := a.sessionGate(r, "", "")
	if err := gate.Check(); err != nil {
		handleIdentityError(w, r, err)
		return
	}
	session := gate.Session()
	if err := a.sessions.Revoke(r.Context(), session.ID, session.UserID); err != nil {
		handleIdentityError(w, r, err)
		return
	}
	obs.CountSessionsRevoked(1)
	_ = audit.LogEvent(r.Context(), "identity.session.revoke", map[string]any{
		"session_id": session.ID,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	gate := a.sessionGate(r, "", "")
	if err := gate.Check(); err != nil {
		handleIdentityError(w, r, err)
		return
	}
	n, err := a.sessions.RevokeAll(r.Context(), gate.User().ID)
	if err != nil {
		handleIdentityError(w, r, err)
		return
	}
	obs.CountSessionsRevoked(n)
	_ = audit.LogEvent(r.Context(), "identity.session.revoke_all", map[string]any{
		"user_id": gate.User().ID,
		"count":   n,
	})
	writeJSON(w, http.StatusOK, map[string]any{"revoked": n})
}

func (a *API) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	gate := a.sessionGate(r, "", "")
	if err := gate.Check(); err != nil {
		handleIdentityError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Session: *gate.Session(), User: gate.User()})
}

type emailRequest struct {
	Email string `json:"email"`
}

func (a *API) handleMagicLinkRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req emailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" {
		writeError(w, r, http.StatusBadRequest, "email is required")
		return
	}

	// Respond 202 regardless so the endpoint cannot enumerate accounts.
	user, err := a.users.FindByEmail(r.Context(), email)
	if err == nil {
		token, err := a.actions.Create(r.Context(), identity.ActionMagicLogin, map[string]any{
			"user_id": user.ID,
			"email":   user.Email,
		}, magicLinkTTL)
		if err == nil {
			obs.CountActionToken(identity.ActionMagicLogin, "issued")
			_ = a.sender.Send(r.Context(), mail.Message{
				To:       user.Email,
				Subject:  "Your login link",
				TextBody: fmt.Sprintf("Sign in: %s/v1/auth/magic-link/consume?token=%s", a.baseURL, token),
			})
		}
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "sent"})
}

type tokenRequest struct {
	Token string `json:"token"`
}

func (a *API) handleMagicLinkConsume(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	tok, err := a.actions.Verify(r.Context(), identity.ActionMagicLogin, req.Token)
	if err != nil {
		obs.CountActionToken(identity.ActionMagicLogin, "rejected")
		handleIdentityError(w, r, err)
		return
	}
	userID, _ := tok.Claims["user_id"].(string)
	user, err := a.users.Find(r.Context(), userID)
	if err != nil {
		handleIdentityError(w, r, err)
		return
	}
	// Single use: consume before the session exists.
	if err := a.actions.Invalidate(r.Context(), tok.ID); err != nil {
		handleIdentityError(w, r, err)
		return
	}
	obs.CountActionToken(identity.ActionMagicLogin, "verified")

	session, err := a.sessions.Issue(r.Context(), user.ID, nil)
	if err != nil {
		handleIdentityError(w, r, err)
		return
	}
	obs.CountLogin("magic-link", "ok")
	obs.CountSessionIssued()
	_ = audit.LogEvent(r.Context(), "identity.session.issue", map[string]any{
		"user_id":    user.ID,
		"session_id": session.ID,
		"method":     "magic-link",
	})
	writeJSON(w, http.StatusOK, sessionResponse{Session: session, User: user})
}

func (a *API) handlePasswordResetRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req emailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" {
		writeError(w, r, http.StatusBadRequest, "email is required")
		return
	}

	user, err := a.users.FindByEmail(r.Context(), email)
	if err == nil {
		token, err := a.actions.Create(r.Context(), identity.ActionPasswordReset, map[string]any{
			"user_id": user.ID,
		}, passwordResetTTL)
		if err == nil {
			obs.CountActionToken(identity.ActionPasswordReset, "issued")
			_ = a.sender.Send(r.Context(), mail.Message{
				To:       user.Email,
				Subject:  "Password reset",
				TextBody: fmt.Sprintf("Reset your password: %s/reset?token=%s", a.baseURL, token),
			})
		}
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "sent"})
}

type passwordResetConfirmRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (a *API) handlePasswordResetConfirm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req passwordResetConfirmRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	tok, err := a.actions.Verify(r.Context(), identity.ActionPasswordReset, req.Token)
	if err != nil {
		obs.CountActionToken(identity.ActionPasswordReset, "rejected")
		handleIdentityError(w, r, err)
		return
	}
	userID, _ := tok.Claims["user_id"].(string)
	hash, err := identity.HashPassword(req.Password)
	if err != nil {
		handleIdentityError(w, r, err)
		return
	}
	if err := a.actions.Invalidate(r.Context(), tok.ID); err != nil {
		handleIdentityError(w, r, err)
		return
	}
	obs.CountActionToken(identity.ActionPasswordReset, "verified")
	if err := a.users.UpdatePassword(r.Context(), userID, hash); err != nil {
		handleIdentityError(w, r, err)
		return
	}
	// A reset invalidates every open session for the account.
	if n, err := a.sessions.RevokeAll(r.Context(), userID); err == nil {
		obs.CountSessionsRevoked(n)
	}
	_ = audit.LogEvent(r.Context(), "identity.password.reset", map[string]any{
		"user_id": userID,
	})
	w.WriteHeader(http.StatusNoContent)
}
