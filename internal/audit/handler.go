package audit

import (
	"net/http"
	"strconv"

	"libracatalog/internal/apperror"
	"libracatalog/internal/httpx"
	"libracatalog/internal/storage"
	"libracatalog/internal/validate"
)

type Handler struct {
	store     Store
	db        storage.Querier
	validator *validate.Validator
	responder *httpx.Responder
}

func NewHandler(store Store, db storage.Querier, v *validate.Validator, rs *httpx.Responder) *Handler {
	return &Handler{store: store, db: db, validator: v, responder: rs}
}

type streamQuery struct {
	AggregateType string `json:"aggregate_type" validate:"omitempty,oneof=book member borrowing reservation"`
	AggregateID   int64  `json:"aggregate_id" validate:"gte=0"`
	After         int64  `json:"after" validate:"gte=0"`
	Limit         int    `json:"limit" validate:"gte=0,lte=500"`
}

// HandleStream serves GET /api/events.
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	in := streamQuery{AggregateType: q.Get("aggregate_type")}

	for _, p := range []struct {
		name string
		dst  *int64
	}{{"aggregate_id", &in.AggregateID}, {"after", &in.After}} {
		if raw := q.Get(p.name); raw != "" {
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				h.responder.Error(w, r, apperror.Validation(apperror.FieldError{Field: p.name, Message: strconv.Quote(p.name) + " must be a number"}))
				return
			}
			*p.dst = n
		}
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			h.responder.Error(w, r, apperror.Validation(apperror.FieldError{Field: "limit", Message: `"limit" must be a number`}))
			return
		}
		in.Limit = n
	}
	if err := h.validator.Struct(&in); err != nil {
		h.responder.Error(w, r, err)
		return
	}

	events, err := h.store.Stream(r.Context(), h.db, Filter{
		AggregateType: in.AggregateType,
		AggregateID:   in.AggregateID,
		AfterID:       in.After,
		Limit:         in.Limit,
	})
	if err != nil {
		h.responder.Error(w, r, apperror.Internal(err))
		return
	}
	h.responder.JSON(w, http.StatusOK, events)
}
