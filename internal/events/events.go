package events

import (
	"context"
	"encoding/json"
	"time"

	"salesdesk/internal/domain"
)

const (
	SubjectSalePosted      = "salesdesk.sale.posted"
	SubjectReturnRequested = "salesdesk.return.requested"
	SubjectReturnApproved  = "salesdesk.return.approved"
	SubjectReturnRejected  = "salesdesk.return.rejected"
	SubjectPaymentRecorded = "salesdesk.payment.recorded"
)

// Event is the envelope published for every state change accepted by the
// backend.
type Event struct {
	ID         string          `json:"id"`
	Subject    string          `json:"subject"`
	Store      string          `json:"store"`
	ActorID    int64           `json:"actor_id"`
	ActorRole  domain.Role     `json:"actor_role"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

type NoopPublisher struct{}

func (NoopPublisher) Publish(_ context.Context, _ Event) error { return nil }

func (NoopPublisher) Close() error { return nil }
