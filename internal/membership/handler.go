package membership

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

// Routes mounts the member endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{id}", h.handleGet)
	r.Put("/{id}", h.handleUpdate)
	r.Delete("/{id}", h.handleDelete)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	page, err := h.validator.Page(r.URL.Query())
	if err != nil {
		h.responder.Error(w, r, err)
		return
	}

	members, err := h.service.ListMembers(r.Context(), page)
	if err != nil {
		h.responder.Error(w, r, err)
		return
	}
	h.responder.JSON(w, http.StatusOK, members)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "Member")
	if err != nil {
		h.responder.Error(w, r, err)
		return
	}

	member, err := h.service.GetMember(r.Context(), id)
	if err != nil {
		h.responder.Error(w, r, err)
		return
	}
	h.responder.JSON(w, http.StatusOK, member)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var in MemberInput
	if err := h.validator.Bind(r.Body, &in); err != nil {
		h.responder.Error(w, r, err)
		return
	}

	id, err := h.service.CreateMember(r.Context(), in)
	if err != nil {
		h.responder.Error(w, r, err)
		return
	}
	h.responder.Created(w, "Member created successfully", "member_id", id)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var in MemberInput
	if err := h.validator.Bind(r.Body, &in); err != nil {
		h.responder.Error(w, r, err)
		return
	}

	id, err := httpx.IDParam(r, "Member")
	if err != nil {
		h.responder.Error(w, r, err)
		return
	}

	if err := h.service.UpdateMember(r.Context(), id, in); err != nil {
		h.responder.Error(w, r, err)
		return
	}
	h.responder.Message(w, "Member updated successfully")
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "Member")
	if err != nil {
		h.responder.Error(w, r, err)
		return
	}

	if err := h.service.DeleteMember(r.Context(), id); err != nil {
		h.responder.Error(w, r, err)
		return
	}
	h.responder.Message(w, "Member deleted successfully")
}
