package store

import (
	"context"
	"fmt"
)

func (s *PostgresStore) InsertWorkspace(ctx context.Context, workspace Workspace) (Workspace, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Workspace{}, fmt.Errorf("begin workspace tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var inserted Workspace
	err = tx.QueryRowContext(ctx, `
		INSERT INTO workspaces (name, created_by)
		VALUES ($1, $2)
		RETURNING id, name, created_by, created_at, updated_at
	`, workspace.Name, workspace.CreatedBy).
		Scan(&inserted.ID, &inserted.Name, &inserted.CreatedBy, &inserted.CreatedAt, &inserted.UpdatedAt)
	if err != nil {
		return Workspace{}, fmt.Errorf("insert workspace: %w", err)
	}

	// The creator becomes the owner in the same transaction.
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO memberships (workspace_id, user_id, role)
		VALUES ($1, $2, 'owner')
	`, inserted.ID, workspace.CreatedBy); err != nil {
		return Workspace{}, fmt.Errorf("insert owner membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Workspace{}, fmt.Errorf("commit workspace tx: %w", err)
	}
	return inserted, nil
}

func (s *PostgresStore) GetWorkspace(ctx context.Context, workspaceID string) (Workspace, error) {
	var workspace Workspace
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, created_by, created_at, updated_at
		FROM workspaces WHERE id=$1
	`, workspaceID).Scan(&workspace.ID, &workspace.Name, &workspace.CreatedBy, &workspace.CreatedAt, &workspace.UpdatedAt)
	if err != nil {
		return Workspace{}, err
	}
	return workspace, nil
}

func (s *PostgresStore) ListWorkspacesForUser(ctx context.Context, userID string) ([]Workspace, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT w.id, w.name, w.created_by, w.created_at, w.updated_at
		FROM workspaces w
		JOIN memberships m ON m.workspace_id = w.id
		WHERE m.user_id=$1
		ORDER BY w.created_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}
	defer rows.Close()

	var workspaces []Workspace
	for rows.Next() {
		var workspace Workspace
		if err := rows.Scan(&workspace.ID, &workspace.Name, &workspace.CreatedBy, &workspace.CreatedAt, &workspace.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan workspace: %w", err)
		}
		workspaces = append(workspaces, workspace)
	}
	return workspaces, rows.Err()
}

func (s *PostgresStore) UpdateWorkspaceName(ctx context.Context, workspaceID, name string) (Workspace, error) {
	var workspace Workspace
	err := s.db.QueryRowContext(ctx, `
		UPDATE workspaces SET name=$2, updated_at=NOW()
		WHERE id=$1
		RETURNING id, name, created_by, created_at, updated_at
	`, workspaceID, name).Scan(&workspace.ID, &workspace.Name, &workspace.CreatedBy, &workspace.CreatedAt, &workspace.UpdatedAt)
	if err != nil {
		return Workspace{}, err
	}
	return workspace, nil
}

func (s *PostgresStore) DeleteWorkspace(ctx context.Context, workspaceID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM workspaces WHERE id=$1`, workspaceID); err != nil {
		return fmt.Errorf("delete workspace: %w", err)
	}
	return nil
}

// Memberships

func (s *PostgresStore) GetMembership(ctx context.Context, workspaceID, userID string) (Membership, error) {
	var membership Membership
	err := s.db.QueryRowContext(ctx, `
		SELECT workspace_id, user_id, role, joined_at
		FROM memberships WHERE workspace_id=$1 AND user_id=$2
	`, workspaceID, userID).Scan(&membership.WorkspaceID, &membership.UserID, &membership.Role, &membership.JoinedAt)
	if err != nil {
		return Membership{}, err
	}
	return membership, nil
}

func (s *PostgresStore) ListMembers(ctx context.Context, workspaceID string) ([]Membership, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.workspace_id, m.user_id, m.role, m.joined_at, u.display_name, u.email
		FROM memberships m
		JOIN users u ON u.id = m.user_id
		WHERE m.workspace_id=$1
		ORDER BY m.joined_at
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []Membership
	for rows.Next() {
		var member Membership
		if err := rows.Scan(&member.WorkspaceID, &member.UserID, &member.Role, &member.JoinedAt, &member.UserName, &member.Email); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, member)
	}
	return members, rows.Err()
}

func (s *PostgresStore) DeleteMembership(ctx context.Context, workspaceID, userID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM memberships WHERE workspace_id=$1 AND user_id=$2
	`, workspaceID, userID)
	if err != nil {
		return false, fmt.Errorf("delete membership: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete membership result: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) UpdateMembershipRole(ctx context.Context, workspaceID, userID, role string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE memberships SET role=$3 WHERE workspace_id=$1 AND user_id=$2
	`, workspaceID, userID, role)
	if err != nil {
		return false, fmt.Errorf("update membership role: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update membership role result: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) CountOwners(ctx context.Context, workspaceID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM memberships WHERE workspace_id=$1 AND role='owner'
	`, workspaceID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count owners: %w", err)
	}
	return count, nil
}
