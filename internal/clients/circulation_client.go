package clients

import (
	"context"
	"fmt"
	"net/http"

	"libracatalog/internal/caldate"
	"libracatalog/internal/circulation"
)

type CirculationClient struct {
	base
}

func NewCirculationClient(baseURL string, hc *http.Client) *CirculationClient {
	return &CirculationClient{base: newBase(baseURL, hc)}
}

func (c *CirculationClient) Checkout(ctx context.Context, in circulation.RecordInput) (int64, error) {
	var out struct {
		ID int64 `json:"record_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/borrowing-records", in, &out); err != nil {
		return 0, err
	}
	return out.ID, nil
}

func (c *CirculationClient) GetRecord(ctx context.Context, id int64) (*circulation.BorrowingRecord, error) {
	var record circulation.BorrowingRecord
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/borrowing-records/%d", id), nil, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func (c *CirculationClient) UpdateRecord(ctx context.Context, id int64, in circulation.RecordInput) error {
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/api/borrowing-records/%d", id), in, nil)
}

// Return marks the record Returned, keeping its other fields. A missing
// return date is set to today.
func (c *CirculationClient) Return(ctx context.Context, id int64) error {
	rec, err := c.GetRecord(ctx, id)
	if err != nil {
		return err
	}
	if rec.ReturnDate == nil {
		today := caldate.Today()
		rec.ReturnDate = &today
	}
	return c.UpdateRecord(ctx, id, circulation.RecordInput{
		BookID:     rec.BookID,
		MemberID:   rec.MemberID,
		BorrowDate: rec.BorrowDate,
		DueDate:    rec.DueDate,
		ReturnDate: rec.ReturnDate,
		FineAmount: rec.FineAmount,
		Status:     circulation.StatusReturned,
	})
}
