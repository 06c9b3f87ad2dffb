// Package audit records catalog mutations as an append-only event log
// written in the same transaction as the change it describes.
package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	jsoniter "github.com/json-iterator/go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"libracatalog/internal/observability"
	"libracatalog/internal/storage"
)

var ErrInvalidEvent = errors.New("invalid event: aggregate type, aggregate id and event type are required")

const (
	DefaultStreamLimit = 50
	MaxStreamLimit     = 500
)

// Event is one recorded mutation.
type Event struct {
	ID            int64               `json:"event_id"`
	AggregateType string              `json:"aggregate_type"`
	AggregateID   int64               `json:"aggregate_id"`
	EventType     string              `json:"event_type"`
	Data          jsoniter.RawMessage `json:"event_data"`
	RequestID     string              `json:"request_id,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
}

// NewEvent marshals payload and stamps the request id carried by ctx.
func NewEvent(ctx context.Context, aggregateType string, aggregateID int64, eventType string, payload any) (Event, error) {
	data, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Event{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Data:          data,
		RequestID:     observability.RequestID(ctx),
	}, nil
}

// Filter selects a slice of the log. Events are returned in id order
// strictly after AfterID.
type Filter struct {
	AggregateType string
	AggregateID   int64
	AfterID       int64
	Limit         int
}

func (f Filter) BatchSize() int {
	switch {
	case f.Limit <= 0:
		return DefaultStreamLimit
	case f.Limit > MaxStreamLimit:
		return MaxStreamLimit
	default:
		return f.Limit
	}
}

// Store appends and reads events through whichever querier it is handed, so
// appends join the caller's transaction.
type Store interface {
	Append(ctx context.Context, q storage.Querier, ev Event) (int64, error)
	Stream(ctx context.Context, q storage.Querier, f Filter) ([]Event, error)
}

// Record builds an event and appends it in one step.
func Record(ctx context.Context, s Store, q storage.Querier, aggregateType string, aggregateID int64, eventType string, payload any) error {
	ev, err := NewEvent(ctx, aggregateType, aggregateID, eventType, payload)
	if err != nil {
		return err
	}
	if _, err := s.Append(ctx, q, ev); err != nil {
		return fmt.Errorf("record %s: %w", eventType, err)
	}
	return nil
}

// PostgresStore keeps events in the catalog_events table.
type PostgresStore struct {
	tracer trace.Tracer
}

func NewPostgresStore() *PostgresStore {
	return &PostgresStore{tracer: otel.Tracer("libracatalog/audit")}
}

func (s *PostgresStore) Append(ctx context.Context, q storage.Querier, ev Event) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "audit.append",
		trace.WithAttributes(
			attribute.String("aggregate.type", ev.AggregateType),
			attribute.Int64("aggregate.id", ev.AggregateID),
			attribute.String("event.type", ev.EventType),
		),
	)
	defer span.End()

	if ev.AggregateType == "" || ev.AggregateID == 0 || ev.EventType == "" {
		return 0, ErrInvalidEvent
	}

	var id int64
	err := q.QueryRow(ctx, `
		INSERT INTO catalog_events (aggregate_type, aggregate_id, event_type, event_data, request_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING event_id
	`, ev.AggregateType, ev.AggregateID, ev.EventType, string(ev.Data), ev.RequestID, time.Now().UTC()).Scan(&id)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("insert event: %w", err)
	}

	span.SetAttributes(attribute.Int64("event.id", id))
	return id, nil
}

func (s *PostgresStore) Stream(ctx context.Context, q storage.Querier, f Filter) ([]Event, error) {
	ctx, span := s.tracer.Start(ctx, "audit.stream",
		trace.WithAttributes(
			attribute.Int64("after.id", f.AfterID),
			attribute.Int("batch.size", f.BatchSize()),
		),
	)
	defer span.End()

	ds := storage.Dialect.From("catalog_events").
		Select("event_id", "aggregate_type", "aggregate_id", "event_type", "event_data", "request_id", "created_at").
		Where(goqu.C("event_id").Gt(f.AfterID)).
		Order(goqu.C("event_id").Asc()).
		Limit(uint(f.BatchSize())).
		Prepared(true)
	if f.AggregateType != "" {
		ds = ds.Where(goqu.C("aggregate_type").Eq(f.AggregateType))
	}
	if f.AggregateID > 0 {
		ds = ds.Where(goqu.C("aggregate_id").Eq(f.AggregateID))
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build event stream query: %w", err)
	}

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query event stream: %w", err)
	}
	defer rows.Close()

	events := make([]Event, 0)
	for rows.Next() {
		var ev Event
		var data []byte
		if err := rows.Scan(&ev.ID, &ev.AggregateType, &ev.AggregateID, &ev.EventType, &data, &ev.RequestID, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Data = append(jsoniter.RawMessage(nil), data...)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	span.SetAttributes(attribute.Int("events.streamed", len(events)))
	return events, nil
}
