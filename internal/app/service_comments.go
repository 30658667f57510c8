package app

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"quill/api/internal/rbac"
	"quill/api/internal/store"
	"quill/api/internal/webhook"
)

func (s *Service) CreateComment(ctx context.Context, session Session, workspaceID, targetType, targetID, body string) (map[string]any, error) {
	if _, err := s.requireMember(ctx, session.UserID, workspaceID, rbac.RoleMember); err != nil {
		return nil, err
	}
	targetType = strings.TrimSpace(targetType)
	targetID = strings.TrimSpace(targetID)
	body = strings.TrimSpace(body)
	if targetType == "" || targetID == "" {
		return nil, errValidation("targetType and targetId are required")
	}
	if body == "" {
		return nil, errValidation("body is required")
	}

	comment, err := s.store.InsertComment(ctx, store.Comment{
		WorkspaceID: workspaceID,
		TargetType:  targetType,
		TargetID:    targetID,
		AuthorID:    session.UserID,
		Body:        body,
	})
	if err != nil {
		return nil, err
	}
	comment.AuthorName = session.UserName

	s.emit(workspaceID, webhook.EventCommentCreated, map[string]any{
		"commentId":   comment.ID,
		"workspaceId": workspaceID,
		"targetType":  targetType,
		"targetId":    targetID,
		"authorId":    session.UserID,
	})
	s.recordActivity(workspaceID, "comment.created", session.UserID, targetType, targetID, map[string]any{"commentId": comment.ID})

	return commentPayload(comment), nil
}

func (s *Service) ListComments(ctx context.Context, session Session, workspaceID, targetType, targetID string, limit, offset int) ([]map[string]any, int, error) {
	if _, err := s.requireMember(ctx, session.UserID, workspaceID, rbac.RoleMember); err != nil {
		return nil, 0, err
	}
	comments, total, err := s.store.ListComments(ctx, workspaceID, targetType, targetID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items := make([]map[string]any, 0, len(comments))
	for _, comment := range comments {
		items = append(items, commentPayload(comment))
	}
	return items, total, nil
}

// UpdateComment edits a comment's body. Only the author may edit.
func (s *Service) UpdateComment(ctx context.Context, session Session, workspaceID, commentID, body string) (map[string]any, error) {
	comment, err := s.loadWorkspaceComment(ctx, session, workspaceID, commentID)
	if err != nil {
		return nil, err
	}
	if comment.AuthorID != session.UserID {
		return nil, errForbidden()
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, errValidation("body is required")
	}

	updated, err := s.store.UpdateCommentBody(ctx, commentID, body)
	if err != nil {
		return nil, err
	}
	updated.AuthorName = comment.AuthorName
	return commentPayload(updated), nil
}

// DeleteComment removes a comment. The author may always delete their
// own; admins and owners may delete anyone's.
func (s *Service) DeleteComment(ctx context.Context, session Session, workspaceID, commentID string) error {
	comment, err := s.loadWorkspaceComment(ctx, session, workspaceID, commentID)
	if err != nil {
		return err
	}
	if comment.AuthorID != session.UserID {
		if _, err := s.requireMember(ctx, session.UserID, workspaceID, rbac.RoleAdmin); err != nil {
			return err
		}
	}
	if err := s.store.DeleteComment(ctx, commentID); err != nil {
		return err
	}
	s.recordActivity(workspaceID, "comment.deleted", session.UserID, comment.TargetType, comment.TargetID, map[string]any{"commentId": commentID})
	return nil
}

// ResolveComment is a one-way transition. Resolving an already
// resolved comment is a conflict; under concurrent resolution exactly
// one caller wins.
func (s *Service) ResolveComment(ctx context.Context, session Session, workspaceID, commentID string) (map[string]any, error) {
	comment, err := s.loadWorkspaceComment(ctx, session, workspaceID, commentID)
	if err != nil {
		return nil, err
	}

	resolved, err := s.store.ResolveComment(ctx, commentID)
	if err != nil {
		return nil, err
	}
	if !resolved {
		return nil, errConflict("comment is already resolved")
	}

	comment.Resolved = true
	s.recordActivity(workspaceID, "comment.resolved", session.UserID, comment.TargetType, comment.TargetID, map[string]any{"commentId": commentID})
	return commentPayload(comment), nil
}

func (s *Service) ListActivities(ctx context.Context, session Session, workspaceID, action, actorID string, limit, offset int) ([]map[string]any, int, error) {
	if _, err := s.requireMember(ctx, session.UserID, workspaceID, rbac.RoleMember); err != nil {
		return nil, 0, err
	}
	activities, total, err := s.store.ListActivities(ctx, workspaceID, action, actorID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items := make([]map[string]any, 0, len(activities))
	for _, activity := range activities {
		items = append(items, map[string]any{
			"id":         activity.ID,
			"action":     activity.Action,
			"actorId":    activity.ActorID,
			"actorName":  activity.ActorName,
			"targetType": activity.TargetType,
			"targetId":   activity.TargetID,
			"detail":     activity.Detail,
			"createdAt":  activity.CreatedAt,
		})
	}
	return items, total, nil
}

// loadWorkspaceComment gates on membership and verifies the comment
// belongs to the workspace; a comment from another workspace looks
// like a missing one.
func (s *Service) loadWorkspaceComment(ctx context.Context, session Session, workspaceID, commentID string) (store.Comment, error) {
	if _, err := s.requireMember(ctx, session.UserID, workspaceID, rbac.RoleMember); err != nil {
		return store.Comment{}, err
	}
	comment, err := s.store.GetComment(ctx, commentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Comment{}, errNotFound("comment not found")
		}
		return store.Comment{}, err
	}
	if comment.WorkspaceID != workspaceID {
		return store.Comment{}, errNotFound("comment not found")
	}
	return comment, nil
}

func commentPayload(comment store.Comment) map[string]any {
	return map[string]any{
		"id":          comment.ID,
		"workspaceId": comment.WorkspaceID,
		"targetType":  comment.TargetType,
		"targetId":    comment.TargetID,
		"authorId":    comment.AuthorID,
		"authorName":  comment.AuthorName,
		"body":        comment.Body,
		"resolved":    comment.Resolved,
		"createdAt":   comment.CreatedAt,
		"updatedAt":   comment.UpdatedAt,
	}
}
