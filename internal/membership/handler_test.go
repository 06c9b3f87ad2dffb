package membership

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
	"libracatalog/internal/httpx"
	"libracatalog/internal/storage"
	"libracatalog/internal/validate"
)

type mockService struct {
	mock.Mock
}

func (m *mockService) ListMembers(ctx context.Context, page storage.Page) ([]Member, error) {
	args := m.Called(ctx, page)
	return args.Get(0).([]Member), args.Error(1)
}

func (m *mockService) GetMember(ctx context.Context, id int64) (*Member, error) {
	args := m.Called(ctx, id)
	if v := args.Get(0); v != nil {
		return v.(*Member), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockService) CreateMember(ctx context.Context, in MemberInput) (int64, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockService) UpdateMember(ctx context.Context, id int64, in MemberInput) error {
	return m.Called(ctx, id, in).Error(0)
}

func (m *mockService) DeleteMember(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func serve(svc Service, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	rs := httpx.NewResponder(slog.New(slog.NewTextHandler(io.Discard, nil)), false)
	r := chi.NewRouter()
	r.Route("/api/members", NewHandler(svc, validate.New(), rs).Routes)

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

const validMember = `{"name":"John Doe","email":"john@example.com","phone":"+1 (555) 010-0100","address":"1 Main St"}`

func TestHandleCreateMember(t *testing.T) {
	svc := new(mockService)
	svc.On("CreateMember", mock.Anything, MemberInput{
		Name:    "John Doe",
		Email:   "john@example.com",
		Phone:   "+1 (555) 010-0100",
		Address: "1 Main St",
	}).Return(int64(4), nil)

	rec, body := serve(svc, http.MethodPost, "/api/members", validMember)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Member created successfully", body["message"])
	assert.EqualValues(t, 4, body["member_id"])
	svc.AssertExpectations(t)
}

func TestHandleCreateMemberValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"short name", strings.Replace(validMember, "John Doe", "J", 1), `"name" length must be at least 2 characters long`},
		{"bad email", strings.Replace(validMember, "john@example.com", "john", 1), `"email" must be a valid email`},
		{"bad phone", strings.Replace(validMember, "+1 (555) 010-0100", "call me", 1), `"phone" with value "call me" fails to match the required pattern`},
		{"status not settable", strings.Replace(validMember, `"address"`, `"membership_status":"Suspended","address"`, 1), `"membership_status" is not allowed`},
		{"empty body", "", "request body is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(mockService)
			rec, body := serve(svc, http.MethodPost, "/api/members", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.want, body["error"])
			svc.AssertNotCalled(t, "CreateMember", mock.Anything, mock.Anything)
		})
	}
}

func TestHandleMemberErrors(t *testing.T) {
	svc := new(mockService)
	svc.On("GetMember", mock.Anything, int64(9)).Return(nil, apperror.NotFound("Member"))
	svc.On("UpdateMember", mock.Anything, int64(1), mock.Anything).Return(apperror.Conflict("Email already registered"))
	svc.On("DeleteMember", mock.Anything, int64(1)).Return(nil)

	rec, body := serve(svc, http.MethodGet, "/api/members/9", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Member not found", body["error"])

	rec, body = serve(svc, http.MethodPut, "/api/members/1", validMember)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Email already registered", body["error"])

	rec, body = serve(svc, http.MethodDelete, "/api/members/1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Member deleted successfully", body["message"])
	svc.AssertExpectations(t)
}
