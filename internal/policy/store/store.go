// Package store persists canonical policy documents off-ledger, keyed by
// their policy hash.
package store

import (
	"context"
	"encoding/json"
	"time"
)

// Error Contract:
// - GetByHash and Delete return sentinel.ErrNotFound when no document has the hash
// - Save returns sentinel.ErrConflict when a document with the hash already exists
// - Infrastructure failures are wrapped with context

// Document is a stored policy. PolicyJSON holds the canonical bytes whose
// SHA-256 is PolicyHash.
type Document struct {
	PolicyHash      string          `json:"policyHash"`
	PolicyJSON      json.RawMessage `json:"policyJson"`
	TemplateHash    string          `json:"templateHash,omitempty"`
	TemplateVersion string          `json:"templateVersion,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
}

type Store interface {
	Save(ctx context.Context, doc *Document) error
	GetByHash(ctx context.Context, policyHash string) (*Document, error)
	Delete(ctx context.Context, policyHash string) error
}

func clone(doc *Document) *Document {
	c := *doc
	c.PolicyJSON = append(json.RawMessage(nil), doc.PolicyJSON...)
	return &c
}
