package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"quill/api/internal/export"
	"quill/api/internal/gitrepo"
	"quill/api/internal/prdgen"
	"quill/api/internal/rbac"
	"quill/api/internal/search"
	"quill/api/internal/store"
	"quill/api/internal/webhook"
)

// sourceTextLimit bounds how much of an uploaded source file is fed to
// the PRD generator.
const sourceTextLimit = 64 * 1024

func (s *Service) CreateDocument(ctx context.Context, session Session, workspaceID, title, summary string) (map[string]any, error) {
	if _, err := s.requireMember(ctx, session.UserID, workspaceID, rbac.RoleMember); err != nil {
		return nil, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, errValidation("title is required")
	}

	document, err := s.store.InsertDocument(ctx, store.Document{
		WorkspaceID: workspaceID,
		Title:       title,
		Summary:     strings.TrimSpace(summary),
		CreatedBy:   session.UserID,
	})
	if err != nil {
		return nil, err
	}

	if err := s.git.EnsureDocumentRepo(document.ID, gitrepo.Content{
		Title:   document.Title,
		Summary: document.Summary,
	}, session.UserName); err != nil {
		return nil, fmt.Errorf("init document repo: %w", err)
	}

	s.indexDocument(document)
	s.recordActivity(workspaceID, "document.created", session.UserID, "document", document.ID, map[string]any{"title": title})
	return documentPayload(document), nil
}

func (s *Service) ListDocuments(ctx context.Context, session Session, workspaceID string, limit, offset int) ([]map[string]any, int, error) {
	if _, err := s.requireMember(ctx, session.UserID, workspaceID, rbac.RoleMember); err != nil {
		return nil, 0, err
	}
	documents, total, err := s.store.ListDocuments(ctx, workspaceID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items := make([]map[string]any, 0, len(documents))
	for _, document := range documents {
		items = append(items, documentPayload(document))
	}
	return items, total, nil
}

func (s *Service) GetDocument(ctx context.Context, session Session, workspaceID, documentID string) (map[string]any, error) {
	document, err := s.loadDocument(ctx, session, workspaceID, documentID)
	if err != nil {
		return nil, err
	}
	return documentPayload(document), nil
}

func (s *Service) UpdateDocument(ctx context.Context, session Session, workspaceID, documentID, title, summary string) (map[string]any, error) {
	current, err := s.loadDocument(ctx, session, workspaceID, documentID)
	if err != nil {
		return nil, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = current.Title
	}
	document, err := s.store.UpdateDocument(ctx, workspaceID, documentID, title, strings.TrimSpace(summary))
	if err != nil {
		return nil, err
	}

	s.indexDocument(document)
	s.recordActivity(workspaceID, "document.updated", session.UserID, "document", documentID, nil)
	return documentPayload(document), nil
}

func (s *Service) DeleteDocument(ctx context.Context, session Session, workspaceID, documentID string) error {
	if _, err := s.requireMember(ctx, session.UserID, workspaceID, rbac.RoleAdmin); err != nil {
		return err
	}
	document, err := s.store.GetDocument(ctx, workspaceID, documentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errNotFound("document not found")
		}
		return err
	}

	deleted, err := s.store.DeleteDocument(ctx, workspaceID, documentID)
	if err != nil {
		return err
	}
	if !deleted {
		return errNotFound("document not found")
	}

	// Cleanup outside the transaction boundary is best-effort.
	_ = s.git.Remove(documentID)
	if s.blobs != nil && document.SourceKey != "" {
		_ = s.blobs.Remove(ctx, document.SourceKey)
	}
	if s.search != nil {
		s.search.DeleteDocument(documentID)
	}

	s.recordActivity(workspaceID, "document.deleted", session.UserID, "document", documentID, nil)
	return nil
}

// UploadDocumentSource stores the raw source file, marks the document
// processing, and kicks off asynchronous processing. document.uploaded
// is emitted exactly once per upload, from the request path.
func (s *Service) UploadDocumentSource(ctx context.Context, session Session, workspaceID, documentID, filename, contentType string, reader io.Reader, size int64) (map[string]any, error) {
	document, err := s.loadDocument(ctx, session, workspaceID, documentID)
	if err != nil {
		return nil, err
	}
	if s.blobs == nil {
		return nil, domainError(http.StatusServiceUnavailable, "file storage is not configured")
	}
	if filename == "" {
		filename = "source"
	}

	key := path.Join(workspaceID, documentID, path.Base(filename))
	if err := s.blobs.Put(ctx, key, reader, size, contentType); err != nil {
		return nil, fmt.Errorf("store source file: %w", err)
	}
	if err := s.store.SetDocumentSource(ctx, documentID, key, store.DocumentProcessing); err != nil {
		return nil, err
	}
	document.SourceKey = key
	document.Status = store.DocumentProcessing

	s.emit(workspaceID, webhook.EventDocumentUploaded, map[string]any{
		"documentId":  documentID,
		"workspaceId": workspaceID,
		"sourceKey":   key,
	})
	s.recordActivity(workspaceID, "document.uploaded", session.UserID, "document", documentID, map[string]any{"sourceKey": key})

	s.runner.Go("document.process", func(taskCtx context.Context) error {
		return s.processDocument(taskCtx, workspaceID, documentID, key)
	})

	return documentPayload(document), nil
}

// processDocument runs off the request path: it verifies the stored
// source is readable and moves the document to ready or failed,
// emitting the matching event.
func (s *Service) processDocument(ctx context.Context, workspaceID, documentID, sourceKey string) error {
	fail := func(cause error) error {
		_ = s.store.UpdateDocumentStatus(ctx, documentID, store.DocumentFailed)
		s.emit(workspaceID, webhook.EventDocumentFailed, map[string]any{
			"documentId":  documentID,
			"workspaceId": workspaceID,
			"error":       cause.Error(),
		})
		return cause
	}

	object, err := s.blobs.Get(ctx, sourceKey)
	if err != nil {
		return fail(fmt.Errorf("read source: %w", err))
	}
	_, copyErr := io.Copy(io.Discard, object)
	_ = object.Close()
	if copyErr != nil {
		return fail(fmt.Errorf("read source: %w", copyErr))
	}

	if err := s.store.UpdateDocumentStatus(ctx, documentID, store.DocumentReady); err != nil {
		return fail(err)
	}
	if document, err := s.store.GetDocument(ctx, workspaceID, documentID); err == nil {
		s.indexDocument(document)
	}

	s.emit(workspaceID, webhook.EventDocumentCompleted, map[string]any{
		"documentId":  documentID,
		"workspaceId": workspaceID,
	})
	return nil
}

// GeneratePRD invokes the configured provider, commits the generated
// content as a new revision, and emits prd.generated.
func (s *Service) GeneratePRD(ctx context.Context, session Session, workspaceID, documentID string) (map[string]any, error) {
	document, err := s.loadDocument(ctx, session, workspaceID, documentID)
	if err != nil {
		return nil, err
	}

	settings, err := s.store.GetAISettings(ctx, workspaceID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	result, err := s.provider.Generate(ctx, prdgen.Request{
		Provider:        settings.Provider,
		Model:           settings.Model,
		APIKey:          settings.APIKey,
		DocumentTitle:   document.Title,
		DocumentSummary: document.Summary,
		SourceText:      s.readSourceText(ctx, document.SourceKey),
	})
	if err != nil {
		return nil, fmt.Errorf("generate prd: %w", err)
	}

	content := gitrepo.Content{
		Title:   document.Title,
		Summary: result.Summary,
	}
	for _, section := range result.Sections {
		content.Sections = append(content.Sections, gitrepo.Section{
			Heading: section.Heading,
			Body:    section.Body,
		})
	}

	commit, err := s.git.CommitContent(documentID, content, session.UserName, "Generate PRD")
	if err != nil {
		return nil, fmt.Errorf("commit prd: %w", err)
	}

	updated, err := s.store.UpdateDocument(ctx, workspaceID, documentID, document.Title, result.Summary)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateDocumentStatus(ctx, documentID, store.DocumentReady); err != nil {
		return nil, err
	}
	updated.Status = store.DocumentReady
	s.indexDocument(updated)

	s.emit(workspaceID, webhook.EventPRDGenerated, map[string]any{
		"documentId":  documentID,
		"workspaceId": workspaceID,
		"commit":      commit.Hash,
	})
	s.recordActivity(workspaceID, "prd.generated", session.UserID, "document", documentID, map[string]any{"commit": commit.ShortHash})

	return map[string]any{
		"document": documentPayload(updated),
		"content":  content,
		"commit":   commitPayload(commit),
	}, nil
}

func (s *Service) DocumentHistory(ctx context.Context, session Session, workspaceID, documentID string, limit int) ([]map[string]any, error) {
	if _, err := s.loadDocument(ctx, session, workspaceID, documentID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	commits, err := s.git.History(documentID, limit)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(commits))
	for _, commit := range commits {
		items = append(items, commitPayload(commit))
	}
	return items, nil
}

// DocumentContent returns the head revision, or a specific one when
// version carries a commit hash.
func (s *Service) DocumentContent(ctx context.Context, session Session, workspaceID, documentID, version string) (map[string]any, error) {
	if _, err := s.loadDocument(ctx, session, workspaceID, documentID); err != nil {
		return nil, err
	}

	var (
		content gitrepo.Content
		commit  store.CommitInfo
		err     error
	)
	if version == "" {
		content, commit, err = s.git.GetHeadContent(documentID)
	} else {
		content, commit, err = s.git.GetContentByHash(documentID, version)
	}
	if err != nil {
		return nil, errNotFound("revision not found")
	}

	return map[string]any{
		"content": content,
		"commit":  commitPayload(commit),
	}, nil
}

// ExportDocument renders the document's head revision to the requested
// format and returns the file for download.
func (s *Service) ExportDocument(ctx context.Context, session Session, workspaceID, documentID, rawFormat string) (*export.Result, error) {
	document, err := s.loadDocument(ctx, session, workspaceID, documentID)
	if err != nil {
		return nil, err
	}
	format, ok := export.ParseFormat(rawFormat)
	if !ok {
		return nil, errValidation("format must be pdf or docx")
	}

	content, _, err := s.git.GetHeadContent(documentID)
	if err != nil {
		return nil, fmt.Errorf("load content: %w", err)
	}
	workspaceName := ""
	if workspace, err := s.store.GetWorkspace(ctx, workspaceID); err == nil {
		workspaceName = workspace.Name
	}

	doc := export.Document{
		Title:         content.Title,
		Summary:       content.Summary,
		Author:        session.UserName,
		WorkspaceName: workspaceName,
		UpdatedAt:     document.UpdatedAt,
	}
	for _, section := range content.Sections {
		doc.Sections = append(doc.Sections, export.Section{
			Heading: section.Heading,
			Body:    section.Body,
		})
	}

	result, err := s.exporter.Export(ctx, doc, format)
	if err != nil {
		if errors.Is(err, export.ErrPDFDependencyMissing) || errors.Is(err, export.ErrDOCXDependencyMissing) {
			return nil, domainError(http.StatusServiceUnavailable, "export backend unavailable")
		}
		return nil, err
	}
	return result, nil
}

// SearchDocuments runs a workspace-scoped full-text search.
func (s *Service) SearchDocuments(ctx context.Context, session Session, workspaceID, query string, limit, offset int) (search.Response, error) {
	if _, err := s.requireMember(ctx, session.UserID, workspaceID, rbac.RoleMember); err != nil {
		return search.Response{}, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return search.Response{Results: []search.Result{}, Query: query}, nil
	}
	if s.search == nil {
		return search.Response{}, domainError(http.StatusServiceUnavailable, "search is not configured")
	}
	return s.search.Search(search.Query{
		Text:        query,
		WorkspaceID: workspaceID,
		Limit:       limit,
		Offset:      offset,
	}), nil
}

// GetAISettings never returns the stored API key, only whether one is
// set.
func (s *Service) GetAISettings(ctx context.Context, session Session, workspaceID string) (map[string]any, error) {
	if _, err := s.requireMember(ctx, session.UserID, workspaceID, rbac.RoleAdmin); err != nil {
		return nil, err
	}
	settings, err := s.store.GetAISettings(ctx, workspaceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return aiSettingsPayload(store.AISettings{WorkspaceID: workspaceID}), nil
		}
		return nil, err
	}
	return aiSettingsPayload(settings), nil
}

// UpdateAISettings upserts per-workspace provider settings. A blank
// apiKey leaves any previously stored key untouched.
func (s *Service) UpdateAISettings(ctx context.Context, session Session, workspaceID, provider, model, apiKey string) (map[string]any, error) {
	if _, err := s.requireMember(ctx, session.UserID, workspaceID, rbac.RoleAdmin); err != nil {
		return nil, err
	}
	provider = strings.TrimSpace(provider)
	if provider == "" {
		return nil, errValidation("provider is required")
	}

	settings, err := s.store.UpsertAISettings(ctx, store.AISettings{
		WorkspaceID: workspaceID,
		Provider:    provider,
		Model:       strings.TrimSpace(model),
		APIKey:      strings.TrimSpace(apiKey),
	})
	if err != nil {
		return nil, err
	}

	s.recordActivity(workspaceID, "ai_settings.updated", session.UserID, "workspace", workspaceID, map[string]any{"provider": provider})
	return aiSettingsPayload(settings), nil
}

func (s *Service) loadDocument(ctx context.Context, session Session, workspaceID, documentID string) (store.Document, error) {
	if _, err := s.requireMember(ctx, session.UserID, workspaceID, rbac.RoleMember); err != nil {
		return store.Document{}, err
	}
	document, err := s.store.GetDocument(ctx, workspaceID, documentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Document{}, errNotFound("document not found")
		}
		return store.Document{}, err
	}
	return document, nil
}

func (s *Service) readSourceText(ctx context.Context, sourceKey string) string {
	if s.blobs == nil || sourceKey == "" {
		return ""
	}
	object, err := s.blobs.Get(ctx, sourceKey)
	if err != nil {
		return ""
	}
	defer object.Close()
	data, err := io.ReadAll(io.LimitReader(object, sourceTextLimit))
	if err != nil {
		return ""
	}
	return string(data)
}

func (s *Service) indexDocument(document store.Document) {
	if s.search == nil {
		return
	}
	s.search.IndexDocument(search.DocumentRecord{
		ID:          document.ID,
		WorkspaceID: document.WorkspaceID,
		Title:       document.Title,
		Summary:     document.Summary,
		Status:      document.Status,
	})
}

func documentPayload(document store.Document) map[string]any {
	return map[string]any{
		"id":          document.ID,
		"workspaceId": document.WorkspaceID,
		"title":       document.Title,
		"summary":     document.Summary,
		"status":      document.Status,
		"sourceKey":   document.SourceKey,
		"createdBy":   document.CreatedBy,
		"createdAt":   document.CreatedAt,
		"updatedAt":   document.UpdatedAt,
	}
}

func commitPayload(commit store.CommitInfo) map[string]any {
	return map[string]any{
		"hash":      commit.Hash,
		"shortHash": commit.ShortHash,
		"message":   commit.Message,
		"author":    commit.Author,
		"timestamp": commit.Timestamp,
	}
}

func aiSettingsPayload(settings store.AISettings) map[string]any {
	return map[string]any{
		"workspaceId": settings.WorkspaceID,
		"provider":    settings.Provider,
		"model":       settings.Model,
		"apiKeySet":   settings.APIKey != "",
		"updatedAt":   settings.UpdatedAt,
	}
}
