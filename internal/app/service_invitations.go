package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"quill/api/internal/rbac"
	"quill/api/internal/store"
)

// CreateInvitation invites an email address into a workspace. Multiple
// pending invitations per address may coexist; acceptance is keyed by
// token, not email.
func (s *Service) CreateInvitation(ctx context.Context, session Session, workspaceID, emailAddr, rawRole string) (map[string]any, error) {
	if _, err := s.requireMember(ctx, session.UserID, workspaceID, rbac.RoleAdmin); err != nil {
		return nil, err
	}

	emailAddr = strings.ToLower(strings.TrimSpace(emailAddr))
	if emailAddr == "" || !strings.Contains(emailAddr, "@") {
		return nil, errValidation("a valid email is required")
	}
	role, ok := rbac.Parse(rawRole)
	if !ok || !invitable(role) {
		return nil, errValidation("role must be member or admin")
	}

	token, err := newInvitationToken()
	if err != nil {
		return nil, err
	}

	invitation, err := s.store.InsertInvitation(ctx, store.Invitation{
		WorkspaceID: workspaceID,
		Email:       emailAddr,
		Role:        string(role),
		Token:       token,
		Status:      store.InvitationPending,
		InviterName: session.UserName,
		ExpiresAt:   time.Now().Add(s.cfg.InvitationTTL),
	})
	if err != nil {
		return nil, err
	}

	s.sendInvitationEmail(ctx, invitation)
	s.recordActivity(workspaceID, "invitation.created", session.UserID, "invitation", invitation.ID, map[string]any{"email": emailAddr, "role": string(role)})

	return map[string]any{
		"id":          invitation.ID,
		"workspaceId": invitation.WorkspaceID,
		"email":       invitation.Email,
		"role":        invitation.Role,
		"status":      invitation.Status,
		"inviterName": invitation.InviterName,
		"expiresAt":   invitation.ExpiresAt,
		"token":       invitation.Token,
	}, nil
}

// GetInvitationByToken is the public lookup behind the invitation
// link. The invitee email is masked so tokens cannot be used to
// harvest addresses.
func (s *Service) GetInvitationByToken(ctx context.Context, token string) (map[string]any, error) {
	invitation, err := s.store.GetInvitationByToken(ctx, token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errNotFound("invitation not found")
		}
		return nil, err
	}

	workspaceName := ""
	if workspace, err := s.store.GetWorkspace(ctx, invitation.WorkspaceID); err == nil {
		workspaceName = workspace.Name
	}

	return map[string]any{
		"email":         maskEmail(invitation.Email),
		"role":          invitation.Role,
		"status":        invitation.Status,
		"inviterName":   invitation.InviterName,
		"workspaceName": workspaceName,
		"expiresAt":     invitation.ExpiresAt,
	}, nil
}

// AcceptInvitation joins the calling user to the invitation's
// workspace. Only pending, unexpired invitations can be accepted; the
// transition is a conditional update so concurrent accepts cannot both
// succeed.
func (s *Service) AcceptInvitation(ctx context.Context, session Session, token string) (map[string]any, error) {
	current, err := s.store.GetInvitationByToken(ctx, token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errNotFound("invitation not found")
		}
		return nil, err
	}
	if current.Status != store.InvitationPending {
		return nil, errConflict(fmt.Sprintf("invitation is %s", current.Status))
	}

	invitation, err := s.store.AcceptInvitation(ctx, token, session.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Lost the race to another accept, or expired between reads.
			return nil, errConflict("invitation is no longer pending")
		}
		return nil, err
	}

	s.recordActivity(invitation.WorkspaceID, "invitation.accepted", session.UserID, "invitation", invitation.ID, nil)

	workspace, err := s.store.GetWorkspace(ctx, invitation.WorkspaceID)
	if err != nil {
		return nil, err
	}
	return workspacePayload(workspace, invitation.Role), nil
}

// CancelInvitation cancels a pending invitation. Terminal invitations
// stay as they are; cancelling one is a conflict.
func (s *Service) CancelInvitation(ctx context.Context, session Session, workspaceID, invitationID string) error {
	if _, err := s.requireMember(ctx, session.UserID, workspaceID, rbac.RoleAdmin); err != nil {
		return err
	}

	if _, err := s.store.GetInvitation(ctx, workspaceID, invitationID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errNotFound("invitation not found")
		}
		return err
	}

	cancelled, err := s.store.CancelInvitation(ctx, workspaceID, invitationID)
	if err != nil {
		return err
	}
	if !cancelled {
		return errConflict("invitation is no longer pending")
	}

	s.recordActivity(workspaceID, "invitation.cancelled", session.UserID, "invitation", invitationID, nil)
	return nil
}

func (s *Service) sendInvitationEmail(ctx context.Context, invitation store.Invitation) {
	if s.mailer == nil || !s.mailer.IsConfigured() {
		return
	}
	workspaceName := invitation.WorkspaceID
	if workspace, err := s.store.GetWorkspace(ctx, invitation.WorkspaceID); err == nil {
		workspaceName = workspace.Name
	}
	url := fmt.Sprintf("%s/invitations/%s", strings.TrimRight(s.cfg.PublicBaseURL, "/"), invitation.Token)
	days := int(time.Until(invitation.ExpiresAt).Hours() / 24)

	s.runner.Go("invitation.email", func(context.Context) error {
		return s.mailer.SendInvitationEmail(invitation.Email, workspaceName, invitation.InviterName, invitation.Role, url, days)
	})
}

// maskEmail keeps the first and last character of the local part plus
// the domain: "dana@example.com" becomes "d**a@example.com".
func maskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "***"
	}
	local, domain := email[:at], email[at+1:]
	if len(local) <= 2 {
		return string(local[0]) + "***@" + domain
	}
	return string(local[0]) + strings.Repeat("*", len(local)-2) + string(local[len(local)-1]) + "@" + domain
}

func invitable(role rbac.Role) bool {
	for _, candidate := range rbac.InvitableRoles() {
		if role == candidate {
			return true
		}
	}
	return false
}

// newInvitationToken returns a 256-bit hex token.
func newInvitationToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
