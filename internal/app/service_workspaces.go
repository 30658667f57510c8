package app

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"quill/api/internal/rbac"
	"quill/api/internal/store"
)

// requireMember resolves the caller's membership in a workspace and
// enforces a minimum role. Unknown workspaces and non-members get the
// same Forbidden so membership probing cannot enumerate workspaces.
func (s *Service) requireMember(ctx context.Context, userID, workspaceID string, min rbac.Role) (store.Membership, error) {
	membership, err := s.store.GetMembership(ctx, workspaceID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Membership{}, errForbidden()
		}
		return store.Membership{}, err
	}
	role, ok := rbac.Parse(membership.Role)
	if !ok || !role.Meets(min) {
		return store.Membership{}, errForbidden()
	}
	return membership, nil
}

func (s *Service) CreateWorkspace(ctx context.Context, session Session, name string) (map[string]any, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errValidation("name is required")
	}

	workspace, err := s.store.InsertWorkspace(ctx, store.Workspace{
		Name:      name,
		CreatedBy: session.UserID,
	})
	if err != nil {
		return nil, err
	}

	s.recordActivity(workspace.ID, "workspace.created", session.UserID, "workspace", workspace.ID, map[string]any{"name": name})
	return workspacePayload(workspace, string(rbac.RoleOwner)), nil
}

func (s *Service) ListWorkspaces(ctx context.Context, session Session) ([]map[string]any, error) {
	workspaces, err := s.store.ListWorkspacesForUser(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(workspaces))
	for _, workspace := range workspaces {
		membership, err := s.store.GetMembership(ctx, workspace.ID, session.UserID)
		if err != nil {
			return nil, err
		}
		items = append(items, workspacePayload(workspace, membership.Role))
	}
	return items, nil
}

func (s *Service) GetWorkspace(ctx context.Context, session Session, workspaceID string) (map[string]any, error) {
	membership, err := s.requireMember(ctx, session.UserID, workspaceID, rbac.RoleMember)
	if err != nil {
		return nil, err
	}
	workspace, err := s.store.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	return workspacePayload(workspace, membership.Role), nil
}

func (s *Service) UpdateWorkspace(ctx context.Context, session Session, workspaceID, name string) (map[string]any, error) {
	membership, err := s.requireMember(ctx, session.UserID, workspaceID, rbac.RoleAdmin)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errValidation("name is required")
	}

	workspace, err := s.store.UpdateWorkspaceName(ctx, workspaceID, name)
	if err != nil {
		return nil, err
	}
	s.recordActivity(workspaceID, "workspace.updated", session.UserID, "workspace", workspaceID, map[string]any{"name": name})
	return workspacePayload(workspace, membership.Role), nil
}

func (s *Service) DeleteWorkspace(ctx context.Context, session Session, workspaceID string) error {
	if _, err := s.requireMember(ctx, session.UserID, workspaceID, rbac.RoleOwner); err != nil {
		return err
	}
	return s.store.DeleteWorkspace(ctx, workspaceID)
}

// ListWorkspaceMembers returns members plus pending invitations, the
// way the workspace settings page consumes them.
func (s *Service) ListWorkspaceMembers(ctx context.Context, session Session, workspaceID string) (map[string]any, error) {
	if _, err := s.requireMember(ctx, session.UserID, workspaceID, rbac.RoleMember); err != nil {
		return nil, err
	}

	members, err := s.store.ListMembers(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	invitations, err := s.store.ListPendingInvitations(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	memberItems := make([]map[string]any, 0, len(members))
	for _, member := range members {
		memberItems = append(memberItems, map[string]any{
			"userId":   member.UserID,
			"name":     member.UserName,
			"email":    member.Email,
			"role":     member.Role,
			"joinedAt": member.JoinedAt,
		})
	}
	invitationItems := make([]map[string]any, 0, len(invitations))
	for _, invitation := range invitations {
		invitationItems = append(invitationItems, map[string]any{
			"id":          invitation.ID,
			"email":       invitation.Email,
			"role":        invitation.Role,
			"status":      invitation.Status,
			"inviterName": invitation.InviterName,
			"expiresAt":   invitation.ExpiresAt,
			"createdAt":   invitation.CreatedAt,
		})
	}

	return map[string]any{
		"members":     memberItems,
		"invitations": invitationItems,
	}, nil
}

// RemoveMember removes a member from a workspace. Self-removal is
// always forbidden, and the last owner can never be removed.
func (s *Service) RemoveMember(ctx context.Context, session Session, workspaceID, userID string) error {
	if _, err := s.requireMember(ctx, session.UserID, workspaceID, rbac.RoleAdmin); err != nil {
		return err
	}
	if userID == session.UserID {
		return errForbidden()
	}

	target, err := s.store.GetMembership(ctx, workspaceID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errNotFound("member not found")
		}
		return err
	}

	if target.Role == string(rbac.RoleOwner) {
		owners, err := s.store.CountOwners(ctx, workspaceID)
		if err != nil {
			return err
		}
		if owners <= 1 {
			return errConflict("workspace must keep at least one owner")
		}
	}

	removed, err := s.store.DeleteMembership(ctx, workspaceID, userID)
	if err != nil {
		return err
	}
	if !removed {
		return errNotFound("member not found")
	}

	s.recordActivity(workspaceID, "member.removed", session.UserID, "member", userID, nil)
	return nil
}

// ChangeMemberRole updates a member's role. Demoting the last owner
// is rejected.
func (s *Service) ChangeMemberRole(ctx context.Context, session Session, workspaceID, userID, rawRole string) error {
	if _, err := s.requireMember(ctx, session.UserID, workspaceID, rbac.RoleAdmin); err != nil {
		return err
	}
	role, ok := rbac.Parse(rawRole)
	if !ok {
		return errValidation("invalid role")
	}

	target, err := s.store.GetMembership(ctx, workspaceID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errNotFound("member not found")
		}
		return err
	}
	if target.Role == string(role) {
		return nil
	}

	if target.Role == string(rbac.RoleOwner) {
		owners, err := s.store.CountOwners(ctx, workspaceID)
		if err != nil {
			return err
		}
		if owners <= 1 {
			return errConflict("workspace must keep at least one owner")
		}
	}

	updated, err := s.store.UpdateMembershipRole(ctx, workspaceID, userID, string(role))
	if err != nil {
		return err
	}
	if !updated {
		return errNotFound("member not found")
	}

	s.recordActivity(workspaceID, "member.role_changed", session.UserID, "member", userID, map[string]any{"role": string(role)})
	return nil
}

func workspacePayload(workspace store.Workspace, role string) map[string]any {
	return map[string]any{
		"id":        workspace.ID,
		"name":      workspace.Name,
		"createdBy": workspace.CreatedBy,
		"createdAt": workspace.CreatedAt,
		"updatedAt": workspace.UpdatedAt,
		"role":      role,
	}
}
