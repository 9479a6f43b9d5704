package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"consentis/pkg/platform/sentinel"
)

// PostgresStore persists policies in the policies table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed policy store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, doc *Document) error {
	if doc == nil || doc.PolicyHash == "" {
		return fmt.Errorf("policy document with hash is required")
	}
	query := `
		INSERT INTO policies (policy_hash, policy_json, template_hash, template_version, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (policy_hash) DO NOTHING
		RETURNING policy_hash
	`
	var stored string
	err := s.db.QueryRowContext(ctx, query,
		doc.PolicyHash,
		string(doc.PolicyJSON),
		nullString(doc.TemplateHash),
		nullString(doc.TemplateVersion),
		doc.CreatedAt,
	).Scan(&stored)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("save policy: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetByHash(ctx context.Context, policyHash string) (*Document, error) {
	query := `
		SELECT policy_hash, policy_json, template_hash, template_version, created_at
		FROM policies
		WHERE policy_hash = $1
	`
	var (
		doc             Document
		policyJSON      string
		templateHash    sql.NullString
		templateVersion sql.NullString
	)
	err := s.db.QueryRowContext(ctx, query, policyHash).Scan(
		&doc.PolicyHash, &policyJSON, &templateHash, &templateVersion, &doc.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find policy: %w", err)
	}
	doc.PolicyJSON = []byte(policyJSON)
	doc.TemplateHash = templateHash.String
	doc.TemplateVersion = templateVersion.String
	doc.CreatedAt = doc.CreatedAt.UTC()
	return &doc, nil
}

func (s *PostgresStore) Delete(ctx context.Context, policyHash string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM policies WHERE policy_hash = $1`, policyHash)
	if err != nil {
		return fmt.Errorf("delete policy: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete policy: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
