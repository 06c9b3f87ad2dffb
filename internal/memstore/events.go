package memstore

import (
	"context"

	jsoniter "github.com/json-iterator/go"

	"libracatalog/internal/audit"
	"libracatalog/internal/storage"
)

type eventStore struct{ s *Store }

func (e eventStore) Append(ctx context.Context, q storage.Querier, ev audit.Event) (int64, error) {
	if ev.AggregateType == "" || ev.AggregateID == 0 || ev.EventType == "" {
		return 0, audit.ErrInvalidEvent
	}
	var id int64
	err := e.s.run(ctx, q, func(st *state) error {
		st.seq.event++
		id = st.seq.event
		ev.ID = id
		ev.Data = append(jsoniter.RawMessage(nil), ev.Data...)
		ev.CreatedAt = e.s.now()
		st.events = append(st.events, ev)
		return nil
	})
	return id, err
}

func (e eventStore) Stream(ctx context.Context, q storage.Querier, f audit.Filter) ([]audit.Event, error) {
	out := make([]audit.Event, 0)
	err := e.s.run(ctx, q, func(st *state) error {
		for _, ev := range st.events {
			if len(out) == f.BatchSize() {
				break
			}
			if ev.ID <= f.AfterID ||
				(f.AggregateType != "" && ev.AggregateType != f.AggregateType) ||
				(f.AggregateID > 0 && ev.AggregateID != f.AggregateID) {
				continue
			}
			out = append(out, ev)
		}
		return nil
	})
	return out, err
}
