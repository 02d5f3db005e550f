// Package authz is the relationship-based authorization gate guarding
// document access. Permissions are tuples (user:<email>, relation,
// doc:<id>) held in an external OpenFGA store.
package authz

import (
	"context"
	"fmt"
	"strings"

	"github.com/streamward/assistant/internal/config"
	"github.com/streamward/assistant/pkg/logging"
)

// Relations used for documents.
const (
	RelationOwner  = "owner"
	RelationViewer = "viewer"
)

// Gate checks and maintains document permission tuples. When the store is
// unconfigured or unreachable and FailClosed is off, every check passes with
// a loud warning: a demo-only posture, never a production one.
type Gate struct {
	client     IFgaClient
	failClosed bool
}

// NewGate connects to the relationship store described by cfg. A missing
// API URL or a failed client construction yields an unconfigured gate
// instead of an error so demo setups run without a store.
func NewGate(cfg config.FGAConfig) *Gate {
	if cfg.APIURL == "" {
		logging.Warn("Authz", "Relationship store not configured; document access checks FAIL OPEN (dev only)")
		return &Gate{failClosed: cfg.FailClosed}
	}

	client, err := connectFGA(cfg.APIURL, cfg.StoreID, cfg.ModelID)
	if err != nil {
		logging.Error("Authz", err, "Failed to create relationship store client")
		return &Gate{failClosed: cfg.FailClosed}
	}

	logging.Info("Authz", "Relationship store client created for %s", cfg.APIURL)
	return &Gate{client: client, failClosed: cfg.FailClosed}
}

// NewGateWithClient creates a gate over an existing client. Used by tests
// and by callers that manage the SDK client themselves.
func NewGateWithClient(client IFgaClient, failClosed bool) *Gate {
	return &Gate{client: client, failClosed: failClosed}
}

// CanAccess reports whether a user has the given relation to a document.
// Store errors resolve via the fail-open/fail-closed policy.
func (g *Gate) CanAccess(ctx context.Context, userEmail, documentID, relation string) bool {
	if g.client == nil {
		return g.fallbackDecision(userEmail, documentID, "store not configured")
	}

	resp, err := g.client.Check(ctx, checkRequest(userObject(userEmail), relation, docObject(documentID)))
	if err != nil {
		return g.fallbackDecision(userEmail, documentID, fmt.Sprintf("store unreachable: %v", err))
	}

	allowed := resp.GetAllowed()
	logging.Debug("Authz", "Check user=%s relation=%s doc=%s allowed=%v", userEmail, relation, documentID, allowed)
	return allowed
}

// FilterAccessible returns the subset of documentIDs the user holds the
// relation on, using one batch check. Under the fallback policy all or none
// are returned.
func (g *Gate) FilterAccessible(ctx context.Context, userEmail, relation string, documentIDs []string) []string {
	if len(documentIDs) == 0 {
		return nil
	}
	if g.client == nil {
		if g.fallbackDecision(userEmail, "*", "store not configured") {
			return documentIDs
		}
		return nil
	}

	objects := make([]string, 0, len(documentIDs))
	for _, id := range documentIDs {
		objects = append(objects, docObject(id))
	}

	resp, err := g.client.BatchCheck(ctx, batchCheckRequest(userObject(userEmail), relation, objects))
	if err != nil {
		if g.fallbackDecision(userEmail, "*", fmt.Sprintf("batch check failed: %v", err)) {
			return documentIDs
		}
		return nil
	}

	var accessible []string
	results := resp.GetResult()
	for i := range documentIDs {
		if result, ok := results[batchCheckCorrelationID(i)]; ok && result.GetAllowed() {
			accessible = append(accessible, documentIDs[i])
		}
	}
	return accessible
}

// AddRelation writes a tuple. Adding a relation that already exists is
// success, not error.
func (g *Gate) AddRelation(ctx context.Context, userEmail, documentID, relation string) error {
	if g.client == nil {
		logging.Warn("Authz", "Skipping relation write (store not configured): user=%s relation=%s doc=%s",
			userEmail, relation, documentID)
		return nil
	}

	_, err := g.client.Write(ctx, writeRequest(userObject(userEmail), relation, docObject(documentID)))
	if err != nil {
		if isDuplicateWriteError(err) {
			logging.Debug("Authz", "Relation already exists: user=%s relation=%s doc=%s", userEmail, relation, documentID)
			return nil
		}
		return fmt.Errorf("failed to add relation: %w", err)
	}

	logging.Debug("Authz", "Added relation user=%s relation=%s doc=%s", userEmail, relation, documentID)
	return nil
}

// DeleteRelation removes a tuple. Deleting an absent tuple is success. A
// validation error on deleting an owner relation is tolerated and reported
// as success: the document itself is assumed already gone and the dangling
// tuple is a known consistency gap, not a failure of the delete.
func (g *Gate) DeleteRelation(ctx context.Context, userEmail, documentID, relation string) error {
	if g.client == nil {
		logging.Warn("Authz", "Skipping relation delete (store not configured): user=%s relation=%s doc=%s",
			userEmail, relation, documentID)
		return nil
	}

	_, err := g.client.Write(ctx, deleteRequest(userObject(userEmail), relation, docObject(documentID)))
	if err != nil {
		if isMissingTupleError(err) {
			logging.Debug("Authz", "Relation already absent: user=%s relation=%s doc=%s", userEmail, relation, documentID)
			return nil
		}
		if relation == RelationOwner && isValidationError(err) {
			logging.Warn("Authz", "Tolerating owner-delete validation error for doc=%s: %v", documentID, err)
			return nil
		}
		return fmt.Errorf("failed to delete relation: %w", err)
	}

	logging.Debug("Authz", "Deleted relation user=%s relation=%s doc=%s", userEmail, relation, documentID)
	return nil
}

// fallbackDecision applies the fail-open/fail-closed policy when the store
// cannot answer.
func (g *Gate) fallbackDecision(userEmail, documentID, reason string) bool {
	if g.failClosed {
		logging.Error("Authz", nil, "Denying access (fail-closed, %s): user=%s doc=%s", reason, userEmail, documentID)
		return false
	}
	logging.Warn("Authz", "ALLOWING access without check (fail-open, %s): user=%s doc=%s -- dev mode only",
		reason, userEmail, documentID)
	return true
}

func userObject(email string) string {
	return "user:" + email
}

func docObject(documentID string) string {
	return "doc:" + documentID
}

func isDuplicateWriteError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already exists") ||
		strings.Contains(msg, "duplicate") ||
		strings.Contains(msg, "write_failed_due_to_invalid_input")
}

func isMissingTupleError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") ||
		strings.Contains(msg, "does not exist") ||
		strings.Contains(msg, "cannot delete a tuple which does not exist")
}

func isValidationError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "validation") || strings.Contains(msg, "invalid")
}
