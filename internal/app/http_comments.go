package app

import (
	"net/http"
	"strings"
)

// routeComments dispatches /api/v1/comments. The workspace travels in
// the body on writes and in the query string on reads, matching how
// the comment UI calls it from any page.
func (s *HTTPServer) routeComments(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			s.handleListComments(w, r, session)
		case http.MethodPost:
			s.handleCreateComment(w, r, session)
		default:
			writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
		return
	}

	commentID := rest[0]

	if len(rest) == 1 {
		switch r.Method {
		case http.MethodPatch:
			s.handleUpdateComment(w, r, session, commentID)
		case http.MethodDelete:
			s.handleDeleteComment(w, r, session, commentID)
		default:
			writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
		return
	}

	if len(rest) == 2 && rest[1] == "resolve" && r.Method == http.MethodPost {
		s.handleResolveComment(w, r, session, commentID)
		return
	}

	writeError(w, http.StatusNotFound, "Not found")
}

func (s *HTTPServer) handleListComments(w http.ResponseWriter, r *http.Request, session Session) {
	workspaceID := strings.TrimSpace(r.URL.Query().Get("workspaceId"))
	if workspaceID == "" {
		writeError(w, http.StatusBadRequest, "workspaceId is required")
		return
	}
	limit, offset := parsePage(r)
	items, total, err := s.service.ListComments(
		r.Context(), session, workspaceID,
		strings.TrimSpace(r.URL.Query().Get("targetType")),
		strings.TrimSpace(r.URL.Query().Get("targetId")),
		limit, offset,
	)
	if err != nil {
		status, message := mapError(err)
		writeError(w, status, message)
		return
	}
	writePage(w, items, total, limit, offset)
}

func (s *HTTPServer) handleCreateComment(w http.ResponseWriter, r *http.Request, session Session) {
	var body struct {
		WorkspaceID string `json:"workspaceId"`
		TargetType  string `json:"targetType"`
		TargetID    string `json:"targetId"`
		Body        string `json:"body"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.WorkspaceID == "" {
		writeError(w, http.StatusBadRequest, "workspaceId is required")
		return
	}
	payload, err := s.service.CreateComment(r.Context(), session, body.WorkspaceID, body.TargetType, body.TargetID, body.Body)
	if err != nil {
		status, message := mapError(err)
		writeError(w, status, message)
		return
	}
	writeData(w, http.StatusCreated, payload)
}

func (s *HTTPServer) handleUpdateComment(w http.ResponseWriter, r *http.Request, session Session, commentID string) {
	var body struct {
		WorkspaceID string `json:"workspaceId"`
		Body        string `json:"body"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.WorkspaceID == "" {
		writeError(w, http.StatusBadRequest, "workspaceId is required")
		return
	}
	payload, err := s.service.UpdateComment(r.Context(), session, body.WorkspaceID, commentID, body.Body)
	if err != nil {
		status, message := mapError(err)
		writeError(w, status, message)
		return
	}
	writeData(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleDeleteComment(w http.ResponseWriter, r *http.Request, session Session, commentID string) {
	workspaceID := strings.TrimSpace(r.URL.Query().Get("workspaceId"))
	if workspaceID == "" {
		writeError(w, http.StatusBadRequest, "workspaceId is required")
		return
	}
	if err := s.service.DeleteComment(r.Context(), session, workspaceID, commentID); err != nil {
		status, message := mapError(err)
		writeError(w, status, message)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleResolveComment(w http.ResponseWriter, r *http.Request, session Session, commentID string) {
	var body struct {
		WorkspaceID string `json:"workspaceId"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	workspaceID := body.WorkspaceID
	if workspaceID == "" {
		workspaceID = strings.TrimSpace(r.URL.Query().Get("workspaceId"))
	}
	if workspaceID == "" {
		writeError(w, http.StatusBadRequest, "workspaceId is required")
		return
	}
	payload, err := s.service.ResolveComment(r.Context(), session, workspaceID, commentID)
	if err != nil {
		status, message := mapError(err)
		writeError(w, status, message)
		return
	}
	writeData(w, http.StatusOK, payload)
}
