package circulation

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"libracatalog/internal/httpx"
	"libracatalog/internal/validate"
)

type Handler struct {
	service   Service
	validator *validate.Validator
	responder *httpx.Responder
}

// NewHandler registers the record date rule on v and returns the handler.
func NewHandler(service Service, v *validate.Validator, rs *httpx.Responder) *Handler {
	RegisterValidation(v)
	return &Handler{service: service, validator: v, responder: rs}
}

// RegisterValidation adds the due_date >= borrow_date rule for RecordInput.
func RegisterValidation(v *validate.Validator) {
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		in := sl.Current().Interface().(RecordInput)
		if in.BorrowDate.IsZero() || in.DueDate.IsZero() {
			return
		}
		if in.DueDate.Before(in.BorrowDate) {
			sl.ReportError(in.DueDate, "due_date", "DueDate", "datefrom", "borrow_date")
		}
	}, RecordInput{})
}

// Routes mounts the borrowing record endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCheckout)
	r.Get("/{id}", h.handleGet)
	r.Put("/{id}", h.handleUpdate)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	page, err := h.validator.Page(r.URL.Query())
	if err != nil {
		h.responder.Error(w, r, err)
		return
	}

	records, err := h.service.ListRecords(r.Context(), page)
	if err != nil {
		h.responder.Error(w, r, err)
		return
	}
	h.responder.JSON(w, http.StatusOK, records)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, entityRecord)
	if err != nil {
		h.responder.Error(w, r, err)
		return
	}

	record, err := h.service.GetRecord(r.Context(), id)
	if err != nil {
		h.responder.Error(w, r, err)
		return
	}
	h.responder.JSON(w, http.StatusOK, record)
}

func (h *Handler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var in RecordInput
	if err := h.validator.Bind(r.Body, &in); err != nil {
		h.responder.Error(w, r, err)
		return
	}

	id, err := h.service.Checkout(r.Context(), in)
	if err != nil {
		h.responder.Error(w, r, err)
		return
	}
	h.responder.Created(w, "Borrowing record created successfully", "record_id", id)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var in RecordInput
	if err := h.validator.Bind(r.Body, &in); err != nil {
		h.responder.Error(w, r, err)
		return
	}

	id, err := httpx.IDParam(r, entityRecord)
	if err != nil {
		h.responder.Error(w, r, err)
		return
	}

	if err := h.service.UpdateRecord(r.Context(), id, in); err != nil {
		h.responder.Error(w, r, err)
		return
	}
	h.responder.Message(w, "Borrowing record updated successfully")
}
