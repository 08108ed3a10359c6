package rag

import (
	"context"

	"github.com/nats-io/nats.go"

	"github.com/WessleyAI/service-catalog/engine/domain"
	"github.com/WessleyAI/service-catalog/pkg/natsutil"
)

// RetrieveSubject takes a context and replies with the augmented context.
const RetrieveSubject = "rag.retrieve"

// StartResponder serves RetrieveKnowledge over NATS request/reply.
func StartResponder(nc *nats.Conn, svc *Service) (*nats.Subscription, error) {
	return natsutil.Reply(nc, RetrieveSubject, func(ctx context.Context, c domain.Context) (domain.Context, error) {
		return *svc.RetrieveKnowledge(ctx, &c), nil
	})
}
