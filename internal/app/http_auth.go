package app

import (
	"errors"
	"net/http"

	"quill/api/internal/authpw"
)

func (s *HTTPServer) routeAuth(w http.ResponseWriter, r *http.Request, rest []string) {
	if len(rest) == 1 {
		switch rest[0] {
		case "signup":
			if r.Method == http.MethodPost {
				s.handleSignUp(w, r)
				return
			}
		case "signin":
			if r.Method == http.MethodPost {
				s.handleSignIn(w, r)
				return
			}
		case "signout":
			if r.Method == http.MethodPost {
				s.handleSignOut(w, r)
				return
			}
		case "refresh":
			if r.Method == http.MethodPost {
				s.handleRefresh(w, r)
				return
			}
		case "verify-email":
			if r.Method == http.MethodPost {
				s.handleVerifyEmail(w, r)
				return
			}
		case "reset-password":
			if r.Method == http.MethodPost {
				s.handleResetPassword(w, r)
				return
			}
		case "session":
			if r.Method == http.MethodGet {
				s.handleSessionInfo(w, r)
				return
			}
		}
	}
	if len(rest) == 2 && rest[0] == "reset-password" && rest[1] == "request" && r.Method == http.MethodPost {
		s.handleRequestReset(w, r)
		return
	}
	writeError(w, http.StatusNotFound, "Not found")
}

func (s *HTTPServer) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"displayName"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := s.service.Passwords().SignUp(r.Context(), authpw.SignUpRequest{
		Email:       body.Email,
		Password:    body.Password,
		DisplayName: body.DisplayName,
	})
	if err != nil {
		switch {
		case errors.Is(err, authpw.ErrEmailTaken):
			writeError(w, http.StatusConflict, "Email already registered")
		case errors.Is(err, authpw.ErrWeakPassword):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	data := map[string]any{
		"userId":  resp.User.ID,
		"message": "Check your email to verify your account",
	}
	if s.service.SMTPConfigured() {
		s.service.SendVerificationMail(resp.User, resp.VerificationToken)
	} else {
		// Dev bypass: surface the token when no mailer is wired up.
		data["devVerificationToken"] = resp.VerificationToken
	}
	writeData(w, http.StatusCreated, data)
}

func (s *HTTPServer) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := s.service.Passwords().SignIn(r.Context(), body.Email, body.Password)
	if err != nil {
		if errors.Is(err, authpw.ErrEmailNotVerified) {
			writeError(w, http.StatusForbidden, "Verify your email before signing in")
			return
		}
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	session, err := s.service.CreateSession(r.Context(), user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create session")
		return
	}

	setSessionCookie(w, session.Token, session.ExpiresAt)
	writeData(w, http.StatusOK, map[string]any{
		"accessToken":  session.Token,
		"refreshToken": session.RefreshToken,
		"userId":       session.UserID,
		"userName":     session.UserName,
		"expiresAt":    session.ExpiresAt.Unix(),
	})
}

func (s *HTTPServer) handleSignOut(w http.ResponseWriter, r *http.Request) {
	session := Session{}
	if token := sessionToken(r); token != "" {
		if parsed, err := s.service.SessionFromToken(r.Context(), token); err == nil {
			session = parsed
		}
	}
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = decodeBody(r, &body)
	_ = s.service.Logout(r.Context(), session, body.RefreshToken)
	clearSessionCookie(w)
	writeData(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "refreshToken is required")
		return
	}

	session, err := s.service.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Refresh token invalid")
		return
	}

	setSessionCookie(w, session.Token, session.ExpiresAt)
	writeData(w, http.StatusOK, map[string]any{
		"accessToken":  session.Token,
		"refreshToken": session.RefreshToken,
		"expiresAt":    session.ExpiresAt.Unix(),
	})
}

func (s *HTTPServer) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.service.Passwords().VerifyEmail(r.Context(), body.Token); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid or expired verification token")
		return
	}
	writeData(w, http.StatusOK, map[string]any{"message": "Email verified"})
}

func (s *HTTPServer) handleRequestReset(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, token, err := s.service.Passwords().RequestPasswordReset(r.Context(), body.Email)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}

	// Identical response whether or not the address exists.
	data := map[string]any{"message": "If an account exists, a reset email has been sent"}
	if token != "" {
		if s.service.SMTPConfigured() {
			s.service.SendPasswordResetMail(user, token)
		} else {
			data["devResetToken"] = token
		}
	}
	writeData(w, http.StatusOK, data)
}

func (s *HTTPServer) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token       string `json:"token"`
		NewPassword string `json:"newPassword"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.service.Passwords().ResetPassword(r.Context(), body.Token, body.NewPassword); err != nil {
		if errors.Is(err, authpw.ErrWeakPassword) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid or expired reset token")
		return
	}
	writeData(w, http.StatusOK, map[string]any{"message": "Password reset"})
}

func (s *HTTPServer) handleSessionInfo(w http.ResponseWriter, r *http.Request) {
	token := sessionToken(r)
	if token == "" {
		writeData(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		writeData(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"userId":        session.UserID,
		"userName":      session.UserName,
		"expiresAt":     session.ExpiresAt.Unix(),
	})
}
