package app

import (
	"context"
	"net/http"
	"testing"

	"quill/api/internal/store"
	"quill/api/internal/webhook"
)

func TestCreateCommentEmitsEvent(t *testing.T) {
	fs := newFakeStore()
	fs.getMembership = memberOf(map[string]string{"ws1/u1": "member"})
	h := newHarness(t, fs)
	member := h.signIn("u1", "Dana")

	resp, env := h.do(http.MethodPost, "/api/v1/comments", map[string]any{
		"workspaceId": "ws1",
		"targetType":  "document",
		"targetId":    "doc1",
		"body":        "Looks good to me",
	}, &member)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d (%s)", resp.StatusCode, env.Message)
	}
	data := h.dataMap(env)
	if data["body"] != "Looks good to me" || data["authorId"] != "u1" || data["resolved"] != false {
		t.Errorf("payload = %v", data)
	}

	events := h.sink.all()
	if len(events) != 1 {
		t.Fatalf("events = %d", len(events))
	}
	event := events[0]
	if event.Type != webhook.EventCommentCreated || event.WorkspaceID != "ws1" {
		t.Errorf("event = %+v", event)
	}
	if event.Payload["targetId"] != "doc1" || event.Payload["authorId"] != "u1" {
		t.Errorf("event payload = %v", event.Payload)
	}

	h.svc.runner.Wait()
	activities := fs.activities()
	if len(activities) != 1 || activities[0].Action != "comment.created" {
		t.Errorf("activities = %+v", activities)
	}
}

func TestCreateCommentValidation(t *testing.T) {
	fs := newFakeStore()
	fs.getMembership = memberOf(map[string]string{"ws1/u1": "member"})
	h := newHarness(t, fs)
	member := h.signIn("u1", "Dana")

	cases := []struct {
		name    string
		body    map[string]any
		status  int
		message string
	}{
		{"missing workspace", map[string]any{"targetType": "document", "targetId": "doc1", "body": "hi"}, http.StatusBadRequest, "workspaceId is required"},
		{"missing target", map[string]any{"workspaceId": "ws1", "body": "hi"}, http.StatusBadRequest, "targetType and targetId are required"},
		{"blank body", map[string]any{"workspaceId": "ws1", "targetType": "document", "targetId": "doc1", "body": "   "}, http.StatusBadRequest, "body is required"},
		{"non-member", map[string]any{"workspaceId": "ws2", "targetType": "document", "targetId": "doc1", "body": "hi"}, http.StatusForbidden, "Forbidden"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, env := h.do(http.MethodPost, "/api/v1/comments", tc.body, &member)
			if resp.StatusCode != tc.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tc.status)
			}
			if env.Message != tc.message {
				t.Errorf("message = %q, want %q", env.Message, tc.message)
			}
		})
	}
}

func TestUpdateCommentAuthorOnly(t *testing.T) {
	fs := newFakeStore()
	fs.getMembership = memberOf(map[string]string{
		"ws1/u1": "member",
		"ws1/u2": "admin",
	})
	fs.getComment = func(ctx context.Context, commentID string) (store.Comment, error) {
		return store.Comment{ID: commentID, WorkspaceID: "ws1", AuthorID: "u1", Body: "original"}, nil
	}
	h := newHarness(t, fs)
	author := h.signIn("u1", "Dana")
	admin := h.signIn("u2", "Ana")

	// Even an admin cannot edit someone else's words.
	resp, _ := h.do(http.MethodPatch, "/api/v1/comments/cmt1", map[string]any{"workspaceId": "ws1", "body": "rewritten"}, &admin)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("admin edit status = %d", resp.StatusCode)
	}

	resp, env := h.do(http.MethodPatch, "/api/v1/comments/cmt1", map[string]any{"workspaceId": "ws1", "body": "edited"}, &author)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("author edit status = %d (%s)", resp.StatusCode, env.Message)
	}
	if h.dataMap(env)["body"] != "edited" {
		t.Errorf("body = %v", h.dataMap(env)["body"])
	}
}

func TestDeleteCommentAdminOverride(t *testing.T) {
	fs := newFakeStore()
	fs.getMembership = memberOf(map[string]string{
		"ws1/u1": "member",
		"ws1/u2": "admin",
		"ws1/u3": "member",
	})
	fs.getComment = func(ctx context.Context, commentID string) (store.Comment, error) {
		return store.Comment{ID: commentID, WorkspaceID: "ws1", AuthorID: "u1"}, nil
	}
	h := newHarness(t, fs)
	admin := h.signIn("u2", "Ana")
	otherMember := h.signIn("u3", "Sam")

	// A plain member cannot delete someone else's comment.
	resp, _ := h.do(http.MethodDelete, "/api/v1/comments/cmt1?workspaceId=ws1", nil, &otherMember)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("member delete status = %d", resp.StatusCode)
	}

	// Admins may moderate.
	resp, _ = h.do(http.MethodDelete, "/api/v1/comments/cmt1?workspaceId=ws1", nil, &admin)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin delete status = %d", resp.StatusCode)
	}
}

func TestResolveCommentConflict(t *testing.T) {
	fs := newFakeStore()
	fs.getMembership = memberOf(map[string]string{"ws1/u1": "member"})
	fs.getComment = func(ctx context.Context, commentID string) (store.Comment, error) {
		return store.Comment{ID: commentID, WorkspaceID: "ws1", AuthorID: "u1"}, nil
	}
	resolved := false
	fs.resolveComment = func(ctx context.Context, commentID string) (bool, error) {
		if resolved {
			return false, nil
		}
		resolved = true
		return true, nil
	}
	h := newHarness(t, fs)
	member := h.signIn("u1", "Dana")

	resp, env := h.do(http.MethodPost, "/api/v1/comments/cmt1/resolve", map[string]any{"workspaceId": "ws1"}, &member)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("resolve status = %d (%s)", resp.StatusCode, env.Message)
	}
	if h.dataMap(env)["resolved"] != true {
		t.Error("payload should reflect the resolved state")
	}

	resp, env = h.do(http.MethodPost, "/api/v1/comments/cmt1/resolve", map[string]any{"workspaceId": "ws1"}, &member)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("second resolve status = %d", resp.StatusCode)
	}
	if env.Message != "comment is already resolved" {
		t.Errorf("message = %q", env.Message)
	}
}

func TestCommentCrossWorkspaceLooksMissing(t *testing.T) {
	fs := newFakeStore()
	fs.getMembership = memberOf(map[string]string{"ws1/u1": "member"})
	fs.getComment = func(ctx context.Context, commentID string) (store.Comment, error) {
		// The comment exists, but in another workspace.
		return store.Comment{ID: commentID, WorkspaceID: "ws2", AuthorID: "u1"}, nil
	}
	h := newHarness(t, fs)
	member := h.signIn("u1", "Dana")

	resp, env := h.do(http.MethodPatch, "/api/v1/comments/cmt1", map[string]any{"workspaceId": "ws1", "body": "x"}, &member)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if env.Message != "comment not found" {
		t.Errorf("message = %q", env.Message)
	}
}

func TestListCommentsRequiresWorkspaceFilter(t *testing.T) {
	fs := newFakeStore()
	fs.getMembership = memberOf(map[string]string{"ws1/u1": "member"})
	fs.listComments = func(ctx context.Context, workspaceID, targetType, targetID string, limit, offset int) ([]store.Comment, int, error) {
		return []store.Comment{{ID: "cmt1", WorkspaceID: workspaceID, AuthorID: "u1", Body: "hi"}}, 1, nil
	}
	h := newHarness(t, fs)
	member := h.signIn("u1", "Dana")

	resp, env := h.do(http.MethodGet, "/api/v1/comments", nil, &member)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if env.Message != "workspaceId is required" {
		t.Errorf("message = %q", env.Message)
	}

	resp, env = h.do(http.MethodGet, "/api/v1/comments?workspaceId=ws1&targetType=document&targetId=doc1", nil, &member)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d (%s)", resp.StatusCode, env.Message)
	}
	if env.Pagination == nil || env.Pagination.Total != 1 {
		t.Errorf("pagination = %+v", env.Pagination)
	}
}
