package memstore

import (
	"context"

	"settle/apps/settle/internal/model"
)

// GetUnsentEventsForProcessing claims up to limit unsent events, oldest first.
func (s *Store) GetUnsentEventsForProcessing(_ context.Context, limit int) ([]model.OutboxEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var claimed []model.OutboxEvent
	for i := range s.state.outbox {
		if len(claimed) >= limit {
			break
		}
		if s.state.outbox[i].Status != model.OutboxUnsent {
			continue
		}
		s.state.outbox[i].Status = model.OutboxProcessing
		claimed = append(claimed, s.state.outbox[i])
	}
	return claimed, nil
}

func (s *Store) MarkEventAsSent(_ context.Context, eventID string) error {
	s.setOutboxStatus(eventID, model.OutboxProcessing, model.OutboxSent)
	return nil
}

func (s *Store) MarkEventAsFailed(_ context.Context, eventID string) error {
	s.setOutboxStatus(eventID, model.OutboxProcessing, model.OutboxUnsent)
	return nil
}

func (s *Store) setOutboxStatus(eventID, from, to string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.state.outbox {
		if s.state.outbox[i].EventID == eventID && s.state.outbox[i].Status == from {
			s.state.outbox[i].Status = to
			return
		}
	}
}

// OutboxEvents returns a copy of every stored event in insertion order.
func (s *Store) OutboxEvents() []model.OutboxEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.OutboxEvent(nil), s.state.outbox...)
}
