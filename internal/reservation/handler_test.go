package reservation

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"libracatalog/internal/apperror"
	"libracatalog/internal/caldate"
	"libracatalog/internal/httpx"
	"libracatalog/internal/storage"
	"libracatalog/internal/validate"
)

type mockService struct {
	mock.Mock
}

func (m *mockService) ListReservations(ctx context.Context, page storage.Page) ([]Reservation, error) {
	args := m.Called(ctx, page)
	return args.Get(0).([]Reservation), args.Error(1)
}

func (m *mockService) GetReservation(ctx context.Context, id int64) (*Reservation, error) {
	args := m.Called(ctx, id)
	if v := args.Get(0); v != nil {
		return v.(*Reservation), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockService) CreateReservation(ctx context.Context, in ReservationInput) (int64, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockService) UpdateReservation(ctx context.Context, id int64, in ReservationInput) error {
	return m.Called(ctx, id, in).Error(0)
}

func serve(svc Service, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	rs := httpx.NewResponder(slog.New(slog.NewTextHandler(io.Discard, nil)), false)
	r := chi.NewRouter()
	r.Route("/api/reservations", NewHandler(svc, validate.New(), rs).Routes)

	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, target, rd))
	var out map[string]any
	_ = jsoniter.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

const validHold = `{"book_id":3,"member_id":4,"reservation_date":"2024-02-01"}`

func TestHandleCreateReservation(t *testing.T) {
	svc := new(mockService)
	svc.On("CreateReservation", mock.Anything, mock.MatchedBy(func(in ReservationInput) bool {
		return in.Status == StatusPending && in.BookID == 3 && in.MemberID == 4 &&
			in.ReservationDate.String() == "2024-02-01"
	})).Return(int64(9), nil)

	rec, body := serve(svc, http.MethodPost, "/api/reservations", validHold)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Reservation created successfully", body["message"])
	assert.EqualValues(t, 9, body["reservation_id"])
	assert.Len(t, body, 2)
	svc.AssertExpectations(t)
}

func TestHandleCreateReservationValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing book", strings.Replace(validHold, `"book_id":3,`, "", 1), `"book_id" is required`},
		{"missing date", strings.Replace(validHold, `,"reservation_date":"2024-02-01"`, "", 1), `"reservation_date" is required`},
		{"bad status", strings.Replace(validHold, `}`, `,"status":"Expired"}`, 1), `"status" must be one of [Pending, Fulfilled, Cancelled]`},
		{"fractional member", strings.Replace(validHold, `"member_id":4`, `"member_id":4.5`, 1), `"member_id" must be an integer`},
		{"empty date", strings.Replace(validHold, `"2024-02-01"`, `""`, 1), `"reservation_date" must be a valid date`},
		{"unknown field", strings.Replace(validHold, `}`, `,"priority":1}`, 1), `"priority" is not allowed`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(mockService)
			rec, body := serve(svc, http.MethodPost, "/api/reservations", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.want, body["error"])
			svc.AssertNotCalled(t, "CreateReservation", mock.Anything, mock.Anything)
		})
	}
}

func TestHandleCreateReservationConflict(t *testing.T) {
	svc := new(mockService)
	svc.On("CreateReservation", mock.Anything, mock.Anything).
		Return(int64(0), apperror.Conflict(msgDuplicateReservation))

	rec, body := serve(svc, http.MethodPost, "/api/reservations", validHold)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, msgDuplicateReservation, body["error"])
}

func TestHandleGetReservation(t *testing.T) {
	svc := new(mockService)
	date, _ := caldate.Parse("2024-02-01")
	svc.On("GetReservation", mock.Anything, int64(9)).Return(&Reservation{
		ID: 9, BookID: 3, MemberID: 4, ReservationDate: date, Status: StatusPending,
	}, nil)
	svc.On("GetReservation", mock.Anything, int64(10)).Return(nil, apperror.NotFound("Reservation"))

	rec, body := serve(svc, http.MethodGet, "/api/reservations/9", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 9, body["reservation_id"])
	assert.Equal(t, "2024-02-01", body["reservation_date"])
	assert.Equal(t, StatusPending, body["status"])

	rec, body = serve(svc, http.MethodGet, "/api/reservations/10", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Reservation not found", body["error"])
	svc.AssertExpectations(t)
}

func TestHandleUpdateReservation(t *testing.T) {
	svc := new(mockService)
	svc.On("UpdateReservation", mock.Anything, int64(9), mock.MatchedBy(func(in ReservationInput) bool {
		return in.Status == StatusCancelled
	})).Return(nil)
	svc.On("UpdateReservation", mock.Anything, int64(10), mock.Anything).Return(apperror.NotFound("Reservation"))

	body := strings.Replace(validHold, `}`, `,"status":"Cancelled"}`, 1)
	rec, out := serve(svc, http.MethodPut, "/api/reservations/9", body)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Reservation updated successfully", out["message"])

	rec, out = serve(svc, http.MethodPut, "/api/reservations/10", body)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Reservation not found", out["error"])
	svc.AssertExpectations(t)
}

func TestHandleListReservationsPaging(t *testing.T) {
	svc := new(mockService)
	svc.On("ListReservations", mock.Anything, storage.Page{Offset: 5, Limit: 10}).Return([]Reservation{}, nil)

	rec, _ := serve(svc, http.MethodGet, "/api/reservations?skip=5&limit=10", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, body := serve(svc, http.MethodGet, "/api/reservations?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotEmpty(t, body["error"])
	svc.AssertExpectations(t)
}
