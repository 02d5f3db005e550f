// Package docs is the document repository behind the assistant's Q&A
// answers. Search is a keyword index; what a user can actually retrieve is
// decided by the relationship-based authorization gate, never by the index.
package docs

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/streamward/assistant/internal/authz"
	"github.com/streamward/assistant/pkg/logging"

	"github.com/google/uuid"
)

// Document is one stored document.
type Document struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	Owner      string    `json:"owner"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Searcher indexes documents and answers keyword queries. Results are
// unfiltered; authorization happens in the Repository.
type Searcher interface {
	Index(doc Document)
	Search(query string) []Document
	Get(id string) (Document, bool)
	Remove(id string)
}

// AccessGate is the authorization surface the repository needs. Satisfied by
// *authz.Gate.
type AccessGate interface {
	CanAccess(ctx context.Context, userEmail, documentID, relation string) bool
	FilterAccessible(ctx context.Context, userEmail, relation string, documentIDs []string) []string
	AddRelation(ctx context.Context, userEmail, documentID, relation string) error
	DeleteRelation(ctx context.Context, userEmail, documentID, relation string) error
}

// Repository couples the search index with the authorization gate.
type Repository struct {
	searcher Searcher
	gate     AccessGate
}

// NewRepository creates a repository.
func NewRepository(searcher Searcher, gate AccessGate) *Repository {
	return &Repository{searcher: searcher, gate: gate}
}

// Upload stores a document and grants the uploader the owner and viewer
// relations. If the owner tuple cannot be written the document is removed
// again: an unowned document would be unreachable and undeletable.
func (r *Repository) Upload(ctx context.Context, userEmail, title, content string) (Document, error) {
	if strings.TrimSpace(title) == "" {
		return Document{}, fmt.Errorf("document title is required")
	}

	doc := Document{
		ID:         "doc-" + uuid.NewString()[:8],
		Title:      title,
		Content:    content,
		Owner:      userEmail,
		UploadedAt: time.Now().UTC(),
	}
	r.searcher.Index(doc)

	if err := r.gate.AddRelation(ctx, userEmail, doc.ID, authz.RelationOwner); err != nil {
		r.searcher.Remove(doc.ID)
		return Document{}, fmt.Errorf("failed to record ownership: %w", err)
	}
	if err := r.gate.AddRelation(ctx, userEmail, doc.ID, authz.RelationViewer); err != nil {
		logging.Warn("Docs", "Owner recorded but viewer grant failed for %s: %v", doc.ID, err)
	}

	logging.Info("Docs", "Uploaded %s (%q) owned by %s", doc.ID, title, userEmail)
	return doc, nil
}

// Query searches the index and returns only the documents the user can view.
func (r *Repository) Query(ctx context.Context, userEmail, query string) []Document {
	hits := r.searcher.Search(query)
	if len(hits) == 0 {
		return nil
	}

	ids := make([]string, len(hits))
	byID := make(map[string]Document, len(hits))
	for i, doc := range hits {
		ids[i] = doc.ID
		byID[doc.ID] = doc
	}

	accessible := r.gate.FilterAccessible(ctx, userEmail, authz.RelationViewer, ids)
	results := make([]Document, 0, len(accessible))
	for _, id := range accessible {
		results = append(results, byID[id])
	}

	logging.Debug("Docs", "Query %q by %s: %d hits, %d accessible", query, userEmail, len(hits), len(results))
	return results
}

// Grant shares a document with another user as viewer. Only an owner can
// share.
func (r *Repository) Grant(ctx context.Context, ownerEmail, granteeEmail, documentID string) error {
	if !r.gate.CanAccess(ctx, ownerEmail, documentID, authz.RelationOwner) {
		return fmt.Errorf("%s does not own %s", ownerEmail, documentID)
	}
	return r.gate.AddRelation(ctx, granteeEmail, documentID, authz.RelationViewer)
}

// Delete removes a document and its uploader tuples. Only an owner can
// delete. Tuple cleanup failures on the owner relation are tolerated by the
// gate; the document itself is always gone afterwards.
func (r *Repository) Delete(ctx context.Context, userEmail, documentID string) error {
	doc, ok := r.searcher.Get(documentID)
	if !ok {
		return fmt.Errorf("document %s not found", documentID)
	}
	if !r.gate.CanAccess(ctx, userEmail, documentID, authz.RelationOwner) {
		return fmt.Errorf("%s does not own %s", userEmail, documentID)
	}

	r.searcher.Remove(documentID)

	if err := r.gate.DeleteRelation(ctx, doc.Owner, documentID, authz.RelationOwner); err != nil {
		logging.Warn("Docs", "Failed to delete owner tuple for %s: %v", documentID, err)
	}
	if err := r.gate.DeleteRelation(ctx, doc.Owner, documentID, authz.RelationViewer); err != nil {
		logging.Warn("Docs", "Failed to delete viewer tuple for %s: %v", documentID, err)
	}

	logging.Info("Docs", "Deleted %s by %s", documentID, userEmail)
	return nil
}

// InMemorySearcher is the default keyword index.
type InMemorySearcher struct {
	mu   sync.RWMutex
	docs map[string]Document
}

// NewInMemorySearcher creates an empty index.
func NewInMemorySearcher() *InMemorySearcher {
	return &InMemorySearcher{docs: make(map[string]Document)}
}

// Index implements Searcher.
func (s *InMemorySearcher) Index(doc Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.ID] = doc
}

// Get implements Searcher.
func (s *InMemorySearcher) Get(id string) (Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	return doc, ok
}

// Remove implements Searcher.
func (s *InMemorySearcher) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, id)
}

// Search implements Searcher: documents matching any query term, ranked by
// match count and then recency.
func (s *InMemorySearcher) Search(query string) []Document {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		doc   Document
		score int
	}
	var hits []scored
	for _, doc := range s.docs {
		haystack := strings.ToLower(doc.Title + " " + doc.Content)
		score := 0
		for _, term := range terms {
			if strings.Contains(haystack, term) {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, scored{doc: doc, score: score})
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].doc.UploadedAt.After(hits[j].doc.UploadedAt)
	})

	results := make([]Document, len(hits))
	for i, hit := range hits {
		results[i] = hit.doc
	}
	return results
}
