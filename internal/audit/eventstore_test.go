package audit_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"libracatalog/internal/audit"
	"libracatalog/internal/httpx"
	"libracatalog/internal/memstore"
	"libracatalog/internal/observability"
	"libracatalog/internal/storage"
	"libracatalog/internal/validate"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Append(ctx context.Context, q storage.Querier, ev audit.Event) (int64, error) {
	args := m.Called(ctx, q, ev)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockStore) Stream(ctx context.Context, q storage.Querier, f audit.Filter) ([]audit.Event, error) {
	args := m.Called(ctx, q, f)
	return args.Get(0).([]audit.Event), args.Error(1)
}

func TestNewEvent(t *testing.T) {
	ctx := observability.WithRequestID(context.Background(), "req-1")
	ev, err := audit.NewEvent(ctx, "book", 3, "book.updated", map[string]any{"title": "Dune"})
	require.NoError(t, err)

	assert.Equal(t, "book", ev.AggregateType)
	assert.Equal(t, int64(3), ev.AggregateID)
	assert.Equal(t, "req-1", ev.RequestID)
	assert.JSONEq(t, `{"title":"Dune"}`, string(ev.Data))

	_, err = audit.NewEvent(ctx, "book", 3, "book.updated", make(chan int))
	assert.Error(t, err)
}

func TestRecord(t *testing.T) {
	store := new(mockStore)
	store.On("Append", mock.Anything, nil, mock.MatchedBy(func(ev audit.Event) bool {
		return ev.EventType == "member.created" && ev.AggregateID == 9
	})).Return(int64(1), nil).Once()

	require.NoError(t, audit.Record(context.Background(), store, nil, "member", 9, "member.created", struct{}{}))

	cause := errors.New("disk full")
	store.On("Append", mock.Anything, nil, mock.Anything).Return(int64(0), cause)
	err := audit.Record(context.Background(), store, nil, "member", 9, "member.deleted", struct{}{})
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "record member.deleted")
	store.AssertExpectations(t)
}

func TestFilterBatchSize(t *testing.T) {
	assert.Equal(t, audit.DefaultStreamLimit, audit.Filter{}.BatchSize())
	assert.Equal(t, 10, audit.Filter{Limit: 10}.BatchSize())
	assert.Equal(t, audit.MaxStreamLimit, audit.Filter{Limit: 10_000}.BatchSize())
}

func TestHandleStream(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	for i := int64(1); i <= 3; i++ {
		require.NoError(t, audit.Record(ctx, store.Events(), store, "book", i, "book.created", map[string]int64{"book_id": i}))
	}
	require.NoError(t, audit.Record(ctx, store.Events(), store, "member", 1, "member.created", struct{}{}))

	rs := httpx.NewResponder(slog.New(slog.NewTextHandler(io.Discard, nil)), false)
	h := audit.NewHandler(store.Events(), store, validate.New(), rs)

	get := func(target string) (*httptest.ResponseRecorder, []audit.Event) {
		rec := httptest.NewRecorder()
		h.HandleStream(rec, httptest.NewRequest(http.MethodGet, target, nil))
		var events []audit.Event
		if rec.Code == http.StatusOK {
			require.NoError(t, jsoniter.Unmarshal(rec.Body.Bytes(), &events))
		}
		return rec, events
	}

	_, events := get("/api/events")
	assert.Len(t, events, 4)

	_, events = get("/api/events?aggregate_type=book&after=1&limit=1")
	require.Len(t, events, 1)
	assert.Equal(t, int64(2), events[0].ID)
	assert.JSONEq(t, `{"book_id":2}`, string(events[0].Data))

	_, events = get("/api/events?aggregate_type=member&aggregate_id=1")
	require.Len(t, events, 1)
	assert.Equal(t, "member.created", events[0].EventType)

	for _, target := range []string{
		"/api/events?aggregate_type=shelf",
		"/api/events?after=x",
		"/api/events?limit=501",
	} {
		rec, _ := get(target)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}
