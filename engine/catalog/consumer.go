package catalog

import (
	"context"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/WessleyAI/service-catalog/engine/domain"
	"github.com/WessleyAI/service-catalog/pkg/natsutil"
)

const (
	// ImportSubject takes a JSON array of entries and replies with an ImportResult.
	ImportSubject = "catalog.import"
	// ResetSubject takes an empty request and replies with a ResetResult.
	ResetSubject = "catalog.reset"
)

// ResetRequest is the (empty) body of a reset request.
type ResetRequest struct{}

// StartConsumer serves import and reset over NATS request/reply. The caller
// unsubscribes the returned subscriptions on shutdown.
func StartConsumer(nc *nats.Conn, imp *Importer, logger *slog.Logger) ([]*nats.Subscription, error) {
	if logger == nil {
		logger = slog.Default()
	}
	importSub, err := natsutil.Reply(nc, ImportSubject, func(ctx context.Context, entries []domain.Entry) (ImportResult, error) {
		logger.Info("catalog: import request", "entries", len(entries))
		return imp.Import(ctx, entries)
	})
	if err != nil {
		return nil, err
	}
	resetSub, err := natsutil.Reply(nc, ResetSubject, func(ctx context.Context, _ ResetRequest) (ResetResult, error) {
		logger.Info("catalog: reset request")
		return imp.Reset(ctx), nil
	})
	if err != nil {
		_ = importSub.Unsubscribe()
		return nil, err
	}
	return []*nats.Subscription{importSub, resetSub}, nil
}
