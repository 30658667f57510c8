package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

func (s *PostgresStore) InsertInvitation(ctx context.Context, invitation Invitation) (Invitation, error) {
	const query = `
		INSERT INTO invitations (workspace_id, email, role, token, status, inviter_name, expires_at)
		VALUES ($1, $2, $3, $4, 'pending', $5, $6)
		RETURNING id, workspace_id, email, role, token, status, inviter_name, expires_at, created_at
	`
	var inserted Invitation
	err := s.db.QueryRowContext(ctx, query,
		invitation.WorkspaceID, invitation.Email, invitation.Role,
		invitation.Token, invitation.InviterName, invitation.ExpiresAt,
	).Scan(
		&inserted.ID, &inserted.WorkspaceID, &inserted.Email, &inserted.Role,
		&inserted.Token, &inserted.Status, &inserted.InviterName, &inserted.ExpiresAt, &inserted.CreatedAt,
	)
	if err != nil {
		return Invitation{}, fmt.Errorf("insert invitation: %w", err)
	}
	return inserted, nil
}

// GetInvitationByToken expires an overdue pending invitation before
// reading it. The conditional UPDATE makes lazy expiry race-safe under
// concurrent reads: at most one statement transitions the row.
func (s *PostgresStore) GetInvitationByToken(ctx context.Context, token string) (Invitation, error) {
	if _, err := s.db.ExecContext(ctx, `
		UPDATE invitations SET status='expired'
		WHERE token=$1 AND status='pending' AND expires_at <= NOW()
	`, token); err != nil {
		return Invitation{}, fmt.Errorf("expire invitation: %w", err)
	}

	var invitation Invitation
	err := s.db.QueryRowContext(ctx, `
		SELECT id, workspace_id, email, role, token, status, inviter_name, expires_at, created_at
		FROM invitations WHERE token=$1
	`, token).Scan(
		&invitation.ID, &invitation.WorkspaceID, &invitation.Email, &invitation.Role,
		&invitation.Token, &invitation.Status, &invitation.InviterName, &invitation.ExpiresAt, &invitation.CreatedAt,
	)
	if err != nil {
		return Invitation{}, err
	}
	return invitation, nil
}

func (s *PostgresStore) ListPendingInvitations(ctx context.Context, workspaceID string) ([]Invitation, error) {
	if _, err := s.db.ExecContext(ctx, `
		UPDATE invitations SET status='expired'
		WHERE workspace_id=$1 AND status='pending' AND expires_at <= NOW()
	`, workspaceID); err != nil {
		return nil, fmt.Errorf("expire invitations: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workspace_id, email, role, token, status, inviter_name, expires_at, created_at
		FROM invitations
		WHERE workspace_id=$1 AND status='pending'
		ORDER BY created_at
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	defer rows.Close()

	var invitations []Invitation
	for rows.Next() {
		var invitation Invitation
		if err := rows.Scan(
			&invitation.ID, &invitation.WorkspaceID, &invitation.Email, &invitation.Role,
			&invitation.Token, &invitation.Status, &invitation.InviterName, &invitation.ExpiresAt, &invitation.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan invitation: %w", err)
		}
		invitations = append(invitations, invitation)
	}
	return invitations, rows.Err()
}

// AcceptInvitation transitions pending → accepted and inserts the
// membership in one transaction. The conditional UPDATE guarantees a
// token is consumed exactly once even under concurrent accepts; zero
// rows means the invitation was not pending (or already expired).
func (s *PostgresStore) AcceptInvitation(ctx context.Context, token, userID string) (Invitation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Invitation{}, fmt.Errorf("begin accept tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var invitation Invitation
	err = tx.QueryRowContext(ctx, `
		UPDATE invitations SET status='accepted'
		WHERE token=$1 AND status='pending' AND expires_at > NOW()
		RETURNING id, workspace_id, email, role, token, status, inviter_name, expires_at, created_at
	`, token).Scan(
		&invitation.ID, &invitation.WorkspaceID, &invitation.Email, &invitation.Role,
		&invitation.Token, &invitation.Status, &invitation.InviterName, &invitation.ExpiresAt, &invitation.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Invitation{}, err
	}
	if err != nil {
		return Invitation{}, fmt.Errorf("accept invitation: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO memberships (workspace_id, user_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (workspace_id, user_id) DO NOTHING
	`, invitation.WorkspaceID, userID, invitation.Role); err != nil {
		return Invitation{}, fmt.Errorf("insert invited membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Invitation{}, fmt.Errorf("commit accept tx: %w", err)
	}
	return invitation, nil
}

func (s *PostgresStore) GetInvitation(ctx context.Context, workspaceID, invitationID string) (Invitation, error) {
	var invitation Invitation
	err := s.db.QueryRowContext(ctx, `
		SELECT id, workspace_id, email, role, token, status, inviter_name, expires_at, created_at
		FROM invitations WHERE id=$1 AND workspace_id=$2
	`, invitationID, workspaceID).Scan(
		&invitation.ID, &invitation.WorkspaceID, &invitation.Email, &invitation.Role,
		&invitation.Token, &invitation.Status, &invitation.InviterName, &invitation.ExpiresAt, &invitation.CreatedAt,
	)
	if err != nil {
		return Invitation{}, err
	}
	return invitation, nil
}

// CancelInvitation only succeeds while the invitation is pending.
func (s *PostgresStore) CancelInvitation(ctx context.Context, workspaceID, invitationID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE invitations SET status='cancelled'
		WHERE id=$1 AND workspace_id=$2 AND status='pending'
	`, invitationID, workspaceID)
	if err != nil {
		return false, fmt.Errorf("cancel invitation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("cancel invitation result: %w", err)
	}
	return affected > 0, nil
}
