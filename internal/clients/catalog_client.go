package clients

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"libracatalog/internal/catalog"
)

type CatalogClient struct {
	base
}

// NewCatalogClient talks to the API at baseURL. A nil hc uses a client with a
// ten second timeout.
func NewCatalogClient(baseURL string, hc *http.Client) *CatalogClient {
	return &CatalogClient{base: newBase(baseURL, hc)}
}

func (c *CatalogClient) AddBook(ctx context.Context, in catalog.BookInput) (int64, error) {
	var out struct {
		ID int64 `json:"book_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/books", in, &out); err != nil {
		return 0, err
	}
	return out.ID, nil
}

func (c *CatalogClient) GetBook(ctx context.Context, id int64) (*catalog.Book, error) {
	var book catalog.Book
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/books/%d", id), nil, &book); err != nil {
		return nil, err
	}
	return &book, nil
}

// Search lists books whose title or author contains query.
func (c *CatalogClient) Search(ctx context.Context, query string) ([]catalog.Book, error) {
	var books []catalog.Book
	path := "/api/books?search=" + url.QueryEscape(query)
	if err := c.do(ctx, http.MethodGet, path, nil, &books); err != nil {
		return nil, err
	}
	return books, nil
}

func (c *CatalogClient) UpdateBook(ctx context.Context, id int64, in catalog.BookInput) error {
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/api/books/%d", id), in, nil)
}

func (c *CatalogClient) RemoveBook(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/books/%d", id), nil, nil)
}
