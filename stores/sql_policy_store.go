package stores

import (
	"context"
	"fmt"
	"time"

	"github.com/oarkflow/squealx"

	"github.com/oarkflow/xacml"
)

// SQLPolicyStore persists serialized policy documents in SQL (squealx),
// versioned by (id, version). It backs the dynamic policy provider.
type SQLPolicyStore struct {
	db *squealx.DB
}

func NewSQLPolicyStore(db *squealx.DB) *SQLPolicyStore {
	return &SQLPolicyStore{db: db}
}

func (s *SQLPolicyStore) Put(ctx context.Context, doc *xacml.PolicyDocument) error {
	if doc.ID == "" || doc.Version == "" {
		return fmt.Errorf("policy document requires id and version")
	}
	updated := doc.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	q := `INSERT INTO policy_documents(id, version, body, updated_at) VALUES(:id, :version, :body, :updated_at)
	      ON CONFLICT(id, version) DO UPDATE SET body=:body, updated_at=:updated_at`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":         doc.ID,
		"version":    doc.Version,
		"body":       doc.Body,
		"updated_at": timeOrNil(updated),
	})
	return err
}

func (s *SQLPolicyStore) Get(ctx context.Context, id, version string) (*xacml.PolicyDocument, error) {
	q := `SELECT id, version, body, updated_at FROM policy_documents WHERE id = :id AND version = :version`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"id": id, "version": version})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return nil, fmt.Errorf("policy document not found: %s version %s", id, version)
	}
	return scanPolicyDocument(r)
}

func (s *SQLPolicyStore) Latest(ctx context.Context, id string) (*xacml.PolicyDocument, error) {
	q := `SELECT id, version, body, updated_at FROM policy_documents WHERE id = :id ORDER BY version DESC LIMIT 1`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return nil, fmt.Errorf("policy document not found: %s", id)
	}
	return scanPolicyDocument(r)
}

func (s *SQLPolicyStore) List(ctx context.Context) ([]*xacml.PolicyDocument, error) {
	q := `SELECT id, version, body, updated_at FROM policy_documents ORDER BY id, version`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*xacml.PolicyDocument, 0)
	for r.Next() {
		doc, serr := scanPolicyDocument(r)
		if serr != nil {
			return nil, serr
		}
		out = append(out, doc)
	}
	return out, nil
}

func (s *SQLPolicyStore) Delete(ctx context.Context, id, version string) error {
	q := `DELETE FROM policy_documents WHERE id = :id AND version = :version`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"id": id, "version": version})
	return err
}

func (s *SQLPolicyStore) Close() error { return s.db.Close() }

func scanPolicyDocument(r *squealx.Rows) (*xacml.PolicyDocument, error) {
	var doc xacml.PolicyDocument
	var updatedRaw interface{}
	if err := r.Scan(&doc.ID, &doc.Version, &doc.Body, &updatedRaw); err != nil {
		return nil, err
	}
	switch v := updatedRaw.(type) {
	case time.Time:
		doc.UpdatedAt = v
	case string:
		if t, err := parseFlexibleTime(v); err == nil {
			doc.UpdatedAt = t
		}
	case []byte:
		if t, err := parseFlexibleTime(string(v)); err == nil {
			doc.UpdatedAt = t
		}
	}
	return &doc, nil
}
