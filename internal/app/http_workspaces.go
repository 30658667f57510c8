package app

import (
	"net/http"
	"strings"
)

// routeWorkspaces dispatches everything under /api/v1/workspaces.
func (s *HTTPServer) routeWorkspaces(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	// /workspaces
	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			items, err := s.service.ListWorkspaces(r.Context(), session)
			if err != nil {
				status, message := mapError(err)
				writeError(w, status, message)
				return
			}
			writeData(w, http.StatusOK, items)
		case http.MethodPost:
			var body struct {
				Name string `json:"name"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			payload, err := s.service.CreateWorkspace(r.Context(), session, body.Name)
			if err != nil {
				status, message := mapError(err)
				writeError(w, status, message)
				return
			}
			writeData(w, http.StatusCreated, payload)
		default:
			writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
		return
	}

	workspaceID := rest[0]
	rest = rest[1:]

	// /workspaces/:id
	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			payload, err := s.service.GetWorkspace(r.Context(), session, workspaceID)
			if err != nil {
				status, message := mapError(err)
				writeError(w, status, message)
				return
			}
			writeData(w, http.StatusOK, payload)
		case http.MethodPatch:
			var body struct {
				Name string `json:"name"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			payload, err := s.service.UpdateWorkspace(r.Context(), session, workspaceID, body.Name)
			if err != nil {
				status, message := mapError(err)
				writeError(w, status, message)
				return
			}
			writeData(w, http.StatusOK, payload)
		case http.MethodDelete:
			if err := s.service.DeleteWorkspace(r.Context(), session, workspaceID); err != nil {
				status, message := mapError(err)
				writeError(w, status, message)
				return
			}
			writeData(w, http.StatusOK, map[string]any{"ok": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
		return
	}

	switch rest[0] {
	case "members":
		s.routeMembers(w, r, session, workspaceID, rest[1:])
	case "webhooks":
		s.routeWebhooks(w, r, session, workspaceID, rest[1:])
	case "activities":
		if len(rest) == 1 && r.Method == http.MethodGet {
			limit, offset := parsePage(r)
			action := strings.TrimSpace(r.URL.Query().Get("action"))
			actorID := strings.TrimSpace(r.URL.Query().Get("userId"))
			items, total, err := s.service.ListActivities(r.Context(), session, workspaceID, action, actorID, limit, offset)
			if err != nil {
				status, message := mapError(err)
				writeError(w, status, message)
				return
			}
			writePage(w, items, total, limit, offset)
			return
		}
		writeError(w, http.StatusNotFound, "Not found")
	case "documents":
		s.routeDocuments(w, r, session, workspaceID, rest[1:])
	case "search":
		if len(rest) == 1 && r.Method == http.MethodGet {
			limit, offset := parsePage(r)
			response, err := s.service.SearchDocuments(r.Context(), session, workspaceID, r.URL.Query().Get("q"), limit, offset)
			if err != nil {
				status, message := mapError(err)
				writeError(w, status, message)
				return
			}
			writeData(w, http.StatusOK, response)
			return
		}
		writeError(w, http.StatusNotFound, "Not found")
	case "settings":
		if len(rest) == 2 && rest[1] == "ai" {
			s.handleAISettings(w, r, session, workspaceID)
			return
		}
		writeError(w, http.StatusNotFound, "Not found")
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

func (s *HTTPServer) routeMembers(w http.ResponseWriter, r *http.Request, session Session, workspaceID string, rest []string) {
	// /workspaces/:id/members
	if len(rest) == 0 {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		payload, err := s.service.ListWorkspaceMembers(r.Context(), session, workspaceID)
		if err != nil {
			status, message := mapError(err)
			writeError(w, status, message)
			return
		}
		writeData(w, http.StatusOK, payload)
		return
	}

	// /workspaces/:id/members/invitations
	if rest[0] == "invitations" {
		if len(rest) == 1 && r.Method == http.MethodPost {
			var body struct {
				Email string `json:"email"`
				Role  string `json:"role"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			payload, err := s.service.CreateInvitation(r.Context(), session, workspaceID, body.Email, body.Role)
			if err != nil {
				status, message := mapError(err)
				writeError(w, status, message)
				return
			}
			writeData(w, http.StatusCreated, payload)
			return
		}
		if len(rest) == 2 && r.Method == http.MethodDelete {
			if err := s.service.CancelInvitation(r.Context(), session, workspaceID, rest[1]); err != nil {
				status, message := mapError(err)
				writeError(w, status, message)
				return
			}
			writeData(w, http.StatusOK, map[string]any{"ok": true})
			return
		}
		writeError(w, http.StatusNotFound, "Not found")
		return
	}

	// /workspaces/:id/members/:userId
	if len(rest) == 1 {
		switch r.Method {
		case http.MethodDelete:
			if err := s.service.RemoveMember(r.Context(), session, workspaceID, rest[0]); err != nil {
				status, message := mapError(err)
				writeError(w, status, message)
				return
			}
			writeData(w, http.StatusOK, map[string]any{"ok": true})
		case http.MethodPatch:
			var body struct {
				Role string `json:"role"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			if err := s.service.ChangeMemberRole(r.Context(), session, workspaceID, rest[0], body.Role); err != nil {
				status, message := mapError(err)
				writeError(w, status, message)
				return
			}
			writeData(w, http.StatusOK, map[string]any{"ok": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
		return
	}

	writeError(w, http.StatusNotFound, "Not found")
}

func (s *HTTPServer) routeWebhooks(w http.ResponseWriter, r *http.Request, session Session, workspaceID string, rest []string) {
	// /workspaces/:id/webhooks
	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			items, err := s.service.ListWebhooks(r.Context(), session, workspaceID)
			if err != nil {
				status, message := mapError(err)
				writeError(w, status, message)
				return
			}
			writeData(w, http.StatusOK, items)
		case http.MethodPost:
			var body WebhookInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			payload, err := s.service.CreateWebhook(r.Context(), session, workspaceID, body)
			if err != nil {
				status, message := mapError(err)
				writeError(w, status, message)
				return
			}
			writeData(w, http.StatusCreated, payload)
		default:
			writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
		return
	}

	webhookID := rest[0]
	rest = rest[1:]

	// /workspaces/:id/webhooks/:wid
	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			payload, err := s.service.GetWebhook(r.Context(), session, workspaceID, webhookID)
			if err != nil {
				status, message := mapError(err)
				writeError(w, status, message)
				return
			}
			writeData(w, http.StatusOK, payload)
		case http.MethodPatch:
			var body WebhookInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			payload, err := s.service.UpdateWebhook(r.Context(), session, workspaceID, webhookID, body)
			if err != nil {
				status, message := mapError(err)
				writeError(w, status, message)
				return
			}
			writeData(w, http.StatusOK, payload)
		case http.MethodDelete:
			if err := s.service.DeleteWebhook(r.Context(), session, workspaceID, webhookID); err != nil {
				status, message := mapError(err)
				writeError(w, status, message)
				return
			}
			writeData(w, http.StatusOK, map[string]any{"ok": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
		return
	}

	// /workspaces/:id/webhooks/:wid/deliveries
	if len(rest) == 1 && rest[0] == "deliveries" && r.Method == http.MethodGet {
		limit, offset := parsePage(r)
		items, total, err := s.service.ListWebhookDeliveries(r.Context(), session, workspaceID, webhookID, limit, offset)
		if err != nil {
			status, message := mapError(err)
			writeError(w, status, message)
			return
		}
		writePage(w, items, total, limit, offset)
		return
	}

	writeError(w, http.StatusNotFound, "Not found")
}

func (s *HTTPServer) handleAISettings(w http.ResponseWriter, r *http.Request, session Session, workspaceID string) {
	switch r.Method {
	case http.MethodGet:
		payload, err := s.service.GetAISettings(r.Context(), session, workspaceID)
		if err != nil {
			status, message := mapError(err)
			writeError(w, status, message)
			return
		}
		writeData(w, http.StatusOK, payload)
	case http.MethodPut:
		var body struct {
			Provider string `json:"provider"`
			Model    string `json:"model"`
			APIKey   string `json:"apiKey"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		payload, err := s.service.UpdateAISettings(r.Context(), session, workspaceID, body.Provider, body.Model, body.APIKey)
		if err != nil {
			status, message := mapError(err)
			writeError(w, status, message)
			return
		}
		writeData(w, http.StatusOK, payload)
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}
