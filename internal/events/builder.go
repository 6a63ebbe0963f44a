package events

import (
	"encoding/json"
	"fmt"
	"time"

	"salesdesk/internal/domain"
	"salesdesk/internal/xid"
)

// New wraps payload into an Event for subject.
func New(subject string, store string, actor domain.Actor, payload any, at time.Time) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", subject, err)
	}
	return Event{
		ID:         xid.New("evt"),
		Subject:    subject,
		Store:      store,
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		OccurredAt: at.UTC(),
		Payload:    raw,
	}, nil
}
