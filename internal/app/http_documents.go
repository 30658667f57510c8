package app

import (
	"fmt"
	"net/http"
)

const maxUploadBytes = 32 << 20

// routeDocuments dispatches /api/v1/workspaces/:id/documents.
func (s *HTTPServer) routeDocuments(w http.ResponseWriter, r *http.Request, session Session, workspaceID string, rest []string) {
	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			limit, offset := parsePage(r)
			items, total, err := s.service.ListDocuments(r.Context(), session, workspaceID, limit, offset)
			if err != nil {
				status, message := mapError(err)
				writeError(w, status, message)
				return
			}
			writePage(w, items, total, limit, offset)
		case http.MethodPost:
			var body struct {
				Title   string `json:"title"`
				Summary string `json:"summary"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			payload, err := s.service.CreateDocument(r.Context(), session, workspaceID, body.Title, body.Summary)
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

	documentID := rest[0]
	rest = rest[1:]

	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			payload, err := s.service.GetDocument(r.Context(), session, workspaceID, documentID)
			if err != nil {
				status, message := mapError(err)
				writeError(w, status, message)
				return
			}
			writeData(w, http.StatusOK, payload)
		case http.MethodPatch:
			var body struct {
				Title   string `json:"title"`
				Summary string `json:"summary"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			payload, err := s.service.UpdateDocument(r.Context(), session, workspaceID, documentID, body.Title, body.Summary)
			if err != nil {
				status, message := mapError(err)
				writeError(w, status, message)
				return
			}
			writeData(w, http.StatusOK, payload)
		case http.MethodDelete:
			if err := s.service.DeleteDocument(r.Context(), session, workspaceID, documentID); err != nil {
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

	if len(rest) != 1 {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}

	switch rest[0] {
	case "upload":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		s.handleDocumentUpload(w, r, session, workspaceID, documentID)
	case "prd":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		payload, err := s.service.GeneratePRD(r.Context(), session, workspaceID, documentID)
		if err != nil {
			status, message := mapError(err)
			writeError(w, status, message)
			return
		}
		writeData(w, http.StatusOK, payload)
	case "history":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		limit, _ := parsePage(r)
		items, err := s.service.DocumentHistory(r.Context(), session, workspaceID, documentID, limit)
		if err != nil {
			status, message := mapError(err)
			writeError(w, status, message)
			return
		}
		writeData(w, http.StatusOK, items)
	case "content":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		payload, err := s.service.DocumentContent(r.Context(), session, workspaceID, documentID, r.URL.Query().Get("version"))
		if err != nil {
			status, message := mapError(err)
			writeError(w, status, message)
			return
		}
		writeData(w, http.StatusOK, payload)
	case "export":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		s.handleDocumentExport(w, r, session, workspaceID, documentID)
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

func (s *HTTPServer) handleDocumentUpload(w http.ResponseWriter, r *http.Request, session Session, workspaceID, documentID string) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "multipart form with a file field is required")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	payload, err := s.service.UploadDocumentSource(
		r.Context(), session, workspaceID, documentID,
		header.Filename, header.Header.Get("Content-Type"), file, header.Size,
	)
	if err != nil {
		status, message := mapError(err)
		writeError(w, status, message)
		return
	}
	writeData(w, http.StatusAccepted, payload)
}

func (s *HTTPServer) handleDocumentExport(w http.ResponseWriter, r *http.Request, session Session, workspaceID, documentID string) {
	var body struct {
		Format string `json:"format"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.service.ExportDocument(r.Context(), session, workspaceID, documentID, body.Format)
	if err != nil {
		status, message := mapError(err)
		writeError(w, status, message)
		return
	}

	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(result.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}
