package app

import (
	"context"
	"fmt"
	"strings"

	"quill/api/internal/store"
)

// Outbound account mail runs through the task runner so SMTP hiccups
// never slow down or fail the request.

func (s *Service) SendVerificationMail(user store.User, token string) {
	if !s.SMTPConfigured() {
		return
	}
	url := fmt.Sprintf("%s/verify-email?token=%s", strings.TrimRight(s.cfg.PublicBaseURL, "/"), token)
	s.runner.Go("verification.email", func(context.Context) error {
		return s.mailer.SendVerificationEmail(user.Email, user.DisplayName, url)
	})
}

func (s *Service) SendPasswordResetMail(user store.User, token string) {
	if !s.SMTPConfigured() {
		return
	}
	url := fmt.Sprintf("%s/reset-password?token=%s", strings.TrimRight(s.cfg.PublicBaseURL, "/"), token)
	s.runner.Go("reset.email", func(context.Context) error {
		return s.mailer.SendPasswordResetEmail(user.Email, user.DisplayName, url)
	})
}
