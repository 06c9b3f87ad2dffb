package catalog

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

// Routes mounts the book endpoints on r.
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

	books, err := h.service.ListBooks(r.Context(), ListFilter{
		Search: r.URL.Query().Get("search"),
		Page:   page,
	})
	if err != nil {
		h.responder.Error(w, r, err)
		return
	}
	h.responder.JSON(w, http.StatusOK, books)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "Book")
	if err != nil {
		h.responder.Error(w, r, err)
		return
	}

	book, err := h.service.GetBook(r.Context(), id)
	if err != nil {
		h.responder.Error(w, r, err)
		return
	}
	h.responder.JSON(w, http.StatusOK, book)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var in BookInput
	if err := h.validator.Bind(r.Body, &in); err != nil {
		h.responder.Error(w, r, err)
		return
	}

	id, err := h.service.CreateBook(r.Context(), in)
	if err != nil {
		h.responder.Error(w, r, err)
		return
	}
	h.responder.Created(w, "Book created successfully", "book_id", id)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var in BookInput
	if err := h.validator.Bind(r.Body, &in); err != nil {
		h.responder.Error(w, r, err)
		return
	}

	id, err := httpx.IDParam(r, "Book")
	if err != nil {
		h.responder.Error(w, r, err)
		return
	}

	if err := h.service.UpdateBook(r.Context(), id, in); err != nil {
		h.responder.Error(w, r, err)
		return
	}
	h.responder.Message(w, "Book updated successfully")
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "Book")
	if err != nil {
		h.responder.Error(w, r, err)
		return
	}

	if err := h.service.DeleteBook(r.Context(), id); err != nil {
		h.responder.Error(w, r, err)
		return
	}
	h.responder.Message(w, "Book deleted successfully")
}
