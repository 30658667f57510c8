package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

func (s *PostgresStore) InsertComment(ctx context.Context, comment Comment) (Comment, error) {
	const query = `
		INSERT INTO comments (workspace_id, target_type, target_id, author_id, body)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`
	inserted := comment
	err := s.db.QueryRowContext(ctx, query,
		comment.WorkspaceID, comment.TargetType, comment.TargetID, comment.AuthorID, comment.Body,
	).Scan(&inserted.ID, &inserted.CreatedAt, &inserted.UpdatedAt)
	if err != nil {
		return Comment{}, fmt.Errorf("insert comment: %w", err)
	}
	return inserted, nil
}

func (s *PostgresStore) GetComment(ctx context.Context, commentID string) (Comment, error) {
	var comment Comment
	err := s.db.QueryRowContext(ctx, `
		SELECT c.id, c.workspace_id, c.target_type, c.target_id, c.author_id, c.body,
		       c.resolved, c.created_at, c.updated_at, u.display_name
		FROM comments c
		JOIN users u ON u.id = c.author_id
		WHERE c.id=$1
	`, commentID).Scan(
		&comment.ID, &comment.WorkspaceID, &comment.TargetType, &comment.TargetID,
		&comment.AuthorID, &comment.Body, &comment.Resolved,
		&comment.CreatedAt, &comment.UpdatedAt, &comment.AuthorName,
	)
	if err != nil {
		return Comment{}, err
	}
	return comment, nil
}

func (s *PostgresStore) ListComments(ctx context.Context, workspaceID, targetType, targetID string, limit, offset int) ([]Comment, int, error) {
	conditions := []string{"c.workspace_id=$1"}
	args := []any{workspaceID}
	if targetType != "" {
		args = append(args, targetType)
		conditions = append(conditions, "c.target_type=$"+strconv.Itoa(len(args)))
	}
	if targetID != "" {
		args = append(args, targetID)
		conditions = append(conditions, "c.target_id=$"+strconv.Itoa(len(args)))
	}
	where := strings.Join(conditions, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM comments c WHERE "+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count comments: %w", err)
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(`
		SELECT c.id, c.workspace_id, c.target_type, c.target_id, c.author_id, c.body,
		       c.resolved, c.created_at, c.updated_at, u.display_name
		FROM comments c
		JOIN users u ON u.id = c.author_id
		WHERE %s
		ORDER BY c.created_at DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	var comments []Comment
	for rows.Next() {
		var comment Comment
		if err := rows.Scan(
			&comment.ID, &comment.WorkspaceID, &comment.TargetType, &comment.TargetID,
			&comment.AuthorID, &comment.Body, &comment.Resolved,
			&comment.CreatedAt, &comment.UpdatedAt, &comment.AuthorName,
		); err != nil {
			return nil, 0, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, comment)
	}
	return comments, total, rows.Err()
}

func (s *PostgresStore) UpdateCommentBody(ctx context.Context, commentID, body string) (Comment, error) {
	var comment Comment
	err := s.db.QueryRowContext(ctx, `
		UPDATE comments SET body=$2, updated_at=NOW()
		WHERE id=$1
		RETURNING id, workspace_id, target_type, target_id, author_id, body, resolved, created_at, updated_at
	`, commentID, body).Scan(
		&comment.ID, &comment.WorkspaceID, &comment.TargetType, &comment.TargetID,
		&comment.AuthorID, &comment.Body, &comment.Resolved, &comment.CreatedAt, &comment.UpdatedAt,
	)
	if err != nil {
		return Comment{}, err
	}
	return comment, nil
}

func (s *PostgresStore) DeleteComment(ctx context.Context, commentID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM comments WHERE id=$1`, commentID); err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	return nil
}

// ResolveComment flips resolved one way. Zero rows affected means the
// comment was already resolved; concurrent resolvers get exactly one
// success between them.
func (s *PostgresStore) ResolveComment(ctx context.Context, commentID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE comments SET resolved=TRUE, updated_at=NOW()
		WHERE id=$1 AND resolved=FALSE
	`, commentID)
	if err != nil {
		return false, fmt.Errorf("resolve comment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("resolve comment result: %w", err)
	}
	return affected > 0, nil
}

// Activity log. Append-only; rows are never updated or deleted.

func (s *PostgresStore) InsertActivity(ctx context.Context, activity Activity) error {
	const query = `
		INSERT INTO activities (workspace_id, action, actor_id, target_type, target_id, detail)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	detail := []byte(activity.Detail)
	if len(detail) == 0 {
		detail = []byte("{}")
	}
	if _, err := s.db.ExecContext(ctx, query,
		activity.WorkspaceID, activity.Action, activity.ActorID,
		activity.TargetType, activity.TargetID, detail,
	); err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListActivities(ctx context.Context, workspaceID, action, actorID string, limit, offset int) ([]Activity, int, error) {
	conditions := []string{"a.workspace_id=$1"}
	args := []any{workspaceID}
	if action != "" {
		args = append(args, action)
		conditions = append(conditions, "a.action=$"+strconv.Itoa(len(args)))
	}
	if actorID != "" {
		args = append(args, actorID)
		conditions = append(conditions, "a.actor_id=$"+strconv.Itoa(len(args)))
	}
	where := strings.Join(conditions, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM activities a WHERE "+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count activities: %w", err)
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(`
		SELECT a.id, a.workspace_id, a.action, a.actor_id, a.target_type, a.target_id,
		       a.detail, a.created_at, u.display_name
		FROM activities a
		JOIN users u ON u.id = a.actor_id
		WHERE %s
		ORDER BY a.created_at DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()

	var activities []Activity
	for rows.Next() {
		var activity Activity
		var detail []byte
		if err := rows.Scan(
			&activity.ID, &activity.WorkspaceID, &activity.Action, &activity.ActorID,
			&activity.TargetType, &activity.TargetID, &detail, &activity.CreatedAt, &activity.ActorName,
		); err != nil {
			return nil, 0, fmt.Errorf("scan activity: %w", err)
		}
		activity.Detail = detail
		activities = append(activities, activity)
	}
	return activities, total, rows.Err()
}
