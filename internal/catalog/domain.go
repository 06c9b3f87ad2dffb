package catalog

import (
	"time"

	"libracatalog/internal/storage"
)

// Book is a catalog title and its shelf copy counts.
type Book struct {
	ID              int64     `json:"book_id"`
	Title           string    `json:"title"`
	Author          string    `json:"author"`
	ISBN            string    `json:"isbn"`
	PublicationYear int       `json:"publication_year"`
	Publisher       string    `json:"publisher"`
	Category        string    `json:"category"`
	TotalCopies     int       `json:"total_copies"`
	AvailableCopies int       `json:"available_copies"`
	Location        string    `json:"location"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// BookInput is the full set of caller supplied fields for create and update.
type BookInput struct {
	Title           string `json:"title" validate:"required,min=1,max=200"`
	Author          string `json:"author" validate:"required,min=2,max=100"`
	ISBN            string `json:"isbn" validate:"required,isbn"`
	PublicationYear int    `json:"publication_year" validate:"required,gte=1000,notfuture"`
	Publisher       string `json:"publisher" validate:"required,min=2,max=100"`
	Category        string `json:"category" validate:"required,min=2,max=50"`
	TotalCopies     *int   `json:"total_copies" validate:"required,gte=1"`
	AvailableCopies *int   `json:"available_copies" validate:"required,gte=0"`
	Location        string `json:"location" validate:"required,min=2,max=50"`
}

// ApplyDefaults sets one total and one available copy when omitted.
func (in *BookInput) ApplyDefaults() {
	if in.TotalCopies == nil {
		in.TotalCopies = intPtr(1)
	}
	if in.AvailableCopies == nil {
		in.AvailableCopies = intPtr(1)
	}
}

func intPtr(n int) *int { return &n }

// ListFilter narrows ListBooks. Search matches title or author,
// case-insensitively.
type ListFilter struct {
	Search string
	Page   storage.Page
}

// Event types recorded in the catalog event log.
const (
	AggregateType    = "book"
	EventBookCreated = "book.created"
	EventBookUpdated = "book.updated"
	EventBookDeleted = "book.deleted"
)

// BookDeletedEvent is the payload of EventBookDeleted.
type BookDeletedEvent struct {
	ID   int64  `json:"book_id"`
	ISBN string `json:"isbn"`
}
