package reservation

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"libracatalog/internal/httpx"
	"libracatalog/internal/validate"
)

type Handler struct {
	service   Service
	validator *validate.Validator
	responder *httpx.Responder
}

func NewHandler(service Service, v *validate.Validator, rs *httpx.Responder) *Handler {
	return &Handler{service: service, validator: v, responder: rs}
}

// Routes mounts the reservation endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{id}", h.handleGet)
	r.Put("/{id}", h.handleUpdate)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	page, err := h.validator.Page(r.URL.Query())
	if err != nil {
		h.responder.Error(w, r, err)
		return
	}

	reservations, err := h.service.ListReservations(r.Context(), page)
	if err != nil {
		h.responder.Error(w, r, err)
		return
	}
	h.responder.JSON(w, http.StatusOK, reservations)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "Reservation")
	if err != nil {
		h.responder.Error(w, r, err)
		return
	}

	reservation, err := h.service.GetReservation(r.Context(), id)
	if err != nil {
		h.responder.Error(w, r, err)
		return
	}
	h.responder.JSON(w, http.StatusOK, reservation)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var in ReservationInput
	if err := h.validator.Bind(r.Body, &in); err != nil {
		h.responder.Error(w, r, err)
		return
	}

	id, err := h.service.CreateReservation(r.Context(), in)
	if err != nil {
		h.responder.Error(w, r, err)
		return
	}
	h.responder.Created(w, "Reservation created successfully", "reservation_id", id)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var in ReservationInput
	if err := h.validator.Bind(r.Body, &in); err != nil {
		h.responder.Error(w, r, err)
		return
	}

	id, err := httpx.IDParam(r, "Reservation")
	if err != nil {
		h.responder.Error(w, r, err)
		return
	}

	if err := h.service.UpdateReservation(r.Context(), id, in); err != nil {
		h.responder.Error(w, r, err)
		return
	}
	h.responder.Message(w, "Reservation updated successfully")
}
