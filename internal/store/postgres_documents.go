package store

import (
	"context"
	"fmt"
)

func (s *PostgresStore) InsertDocument(ctx context.Context, document Document) (Document, error) {
	const query = `
		INSERT INTO documents (workspace_id, title, summary, status, created_by)
		VALUES ($1, $2, $3, 'draft', $4)
		RETURNING id, workspace_id, title, summary, status, source_key, created_by, created_at, updated_at
	`
	var inserted Document
	err := s.db.QueryRowContext(ctx, query,
		document.WorkspaceID, document.Title, document.Summary, document.CreatedBy,
	).Scan(
		&inserted.ID, &inserted.WorkspaceID, &inserted.Title, &inserted.Summary,
		&inserted.Status, &inserted.SourceKey, &inserted.CreatedBy, &inserted.CreatedAt, &inserted.UpdatedAt,
	)
	if err != nil {
		return Document{}, fmt.Errorf("insert document: %w", err)
	}
	return inserted, nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, workspaceID, documentID string) (Document, error) {
	var document Document
	err := s.db.QueryRowContext(ctx, `
		SELECT id, workspace_id, title, summary, status, source_key, created_by, created_at, updated_at
		FROM documents WHERE id=$1 AND workspace_id=$2
	`, documentID, workspaceID).Scan(
		&document.ID, &document.WorkspaceID, &document.Title, &document.Summary,
		&document.Status, &document.SourceKey, &document.CreatedBy, &document.CreatedAt, &document.UpdatedAt,
	)
	if err != nil {
		return Document{}, err
	}
	return document, nil
}

func (s *PostgresStore) ListDocuments(ctx context.Context, workspaceID string, limit, offset int) ([]Document, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM documents WHERE workspace_id=$1
	`, workspaceID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count documents: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workspace_id, title, summary, status, source_key, created_by, created_at, updated_at
		FROM documents
		WHERE workspace_id=$1
		ORDER BY updated_at DESC
		LIMIT $2 OFFSET $3
	`, workspaceID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var documents []Document
	for rows.Next() {
		var document Document
		if err := rows.Scan(
			&document.ID, &document.WorkspaceID, &document.Title, &document.Summary,
			&document.Status, &document.SourceKey, &document.CreatedBy, &document.CreatedAt, &document.UpdatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan document: %w", err)
		}
		documents = append(documents, document)
	}
	return documents, total, rows.Err()
}

func (s *PostgresStore) UpdateDocument(ctx context.Context, workspaceID, documentID, title, summary string) (Document, error) {
	var document Document
	err := s.db.QueryRowContext(ctx, `
		UPDATE documents SET title=$3, summary=$4, updated_at=NOW()
		WHERE id=$1 AND workspace_id=$2
		RETURNING id, workspace_id, title, summary, status, source_key, created_by, created_at, updated_at
	`, documentID, workspaceID, title, summary).Scan(
		&document.ID, &document.WorkspaceID, &document.Title, &document.Summary,
		&document.Status, &document.SourceKey, &document.CreatedBy, &document.CreatedAt, &document.UpdatedAt,
	)
	if err != nil {
		return Document{}, err
	}
	return document, nil
}

func (s *PostgresStore) UpdateDocumentStatus(ctx context.Context, documentID, status string) error {
	if _, err := s.db.ExecContext(ctx, `
		UPDATE documents SET status=$2, updated_at=NOW() WHERE id=$1
	`, documentID, status); err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetDocumentSource(ctx context.Context, documentID, sourceKey, status string) error {
	if _, err := s.db.ExecContext(ctx, `
		UPDATE documents SET source_key=$2, status=$3, updated_at=NOW() WHERE id=$1
	`, documentID, sourceKey, status); err != nil {
		return fmt.Errorf("set document source: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteDocument(ctx context.Context, workspaceID, documentID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM documents WHERE id=$1 AND workspace_id=$2
	`, documentID, workspaceID)
	if err != nil {
		return false, fmt.Errorf("delete document: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete document result: %w", err)
	}
	return affected > 0, nil
}

// AI provider settings, one row per workspace.

func (s *PostgresStore) GetAISettings(ctx context.Context, workspaceID string) (AISettings, error) {
	var settings AISettings
	err := s.db.QueryRowContext(ctx, `
		SELECT workspace_id, provider, model, api_key, updated_at
		FROM ai_settings WHERE workspace_id=$1
	`, workspaceID).Scan(&settings.WorkspaceID, &settings.Provider, &settings.Model, &settings.APIKey, &settings.UpdatedAt)
	if err != nil {
		return AISettings{}, err
	}
	return settings, nil
}

func (s *PostgresStore) UpsertAISettings(ctx context.Context, settings AISettings) (AISettings, error) {
	const query = `
		INSERT INTO ai_settings (workspace_id, provider, model, api_key)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (workspace_id) DO UPDATE
		SET provider=EXCLUDED.provider, model=EXCLUDED.model,
		    api_key=CASE WHEN EXCLUDED.api_key <> '' THEN EXCLUDED.api_key ELSE ai_settings.api_key END,
		    updated_at=NOW()
		RETURNING workspace_id, provider, model, api_key, updated_at
	`
	var saved AISettings
	err := s.db.QueryRowContext(ctx, query,
		settings.WorkspaceID, settings.Provider, settings.Model, settings.APIKey,
	).Scan(&saved.WorkspaceID, &saved.Provider, &saved.Model, &saved.APIKey, &saved.UpdatedAt)
	if err != nil {
		return AISettings{}, fmt.Errorf("upsert ai settings: %w", err)
	}
	return saved, nil
}
