package client

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// TransitionAuditor records one line per state transition. A nil
// auditor (the default) is a no-op; implementations must never block
// the event loop, so BaseClient always calls Record from a background
// goroutine and only logs failures.
type TransitionAuditor interface {
	Record(ctx context.Context, entry TransitionAuditEntry) error
}

// TransitionAuditEntry is the audit record spec.md §4.3's "Transitions
// are logged (from->to, with correlation id)" requirement describes,
// promoted here from a log line to a durable record.
type TransitionAuditEntry struct {
	ConnectionID  string
	From          State
	To            State
	CorrelationID string
	Timestamp     time.Time
}

// FirestoreTransitionAuditor writes TransitionAuditEntry documents to a
// "connection-transitions" collection. This is an audit trail of FSM
// transitions, not a persisted Connection definition — persistence of
// connection definitions proper stays an out-of-scope external
// collaborator per spec.md §1.
type FirestoreTransitionAuditor struct {
	client     *firestore.Client
	collection string
	logger     zerolog.Logger
}

// FirestoreTransitionAuditorConfig configures the Firestore client the
// way the teacher's Google-client constructors expect: a project id
// plus an optional credentials file routed through
// google.golang.org/api/option.
type FirestoreTransitionAuditorConfig struct {
	ProjectID       string
	CredentialsFile string
	Collection      string
}

// NewFirestoreTransitionAuditor constructs the Firestore client.
func NewFirestoreTransitionAuditor(ctx context.Context, cfg FirestoreTransitionAuditorConfig, logger zerolog.Logger) (*FirestoreTransitionAuditor, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	fsClient, err := firestore.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, err
	}
	collection := cfg.Collection
	if collection == "" {
		collection = "connection-transitions"
	}
	return &FirestoreTransitionAuditor{
		client:     fsClient,
		collection: collection,
		logger:     logger.With().Str("component", "FirestoreTransitionAuditor").Logger(),
	}, nil
}

func (a *FirestoreTransitionAuditor) Record(ctx context.Context, entry TransitionAuditEntry) error {
	_, _, err := a.client.Collection(a.collection).Add(ctx, map[string]any{
		"connectionId":  entry.ConnectionID,
		"from":          string(entry.From),
		"to":            string(entry.To),
		"correlationId": entry.CorrelationID,
		"timestamp":     entry.Timestamp,
	})
	if err != nil {
		a.logger.Error().Err(err).Str("connection_id", entry.ConnectionID).Msg("Failed to write transition audit entry.")
	}
	return err
}

// Close closes the underlying Firestore client.
func (a *FirestoreTransitionAuditor) Close() error {
	return a.client.Close()
}
