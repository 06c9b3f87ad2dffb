package chaos

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"libracatalog/internal/caldate"
	"libracatalog/internal/catalog"
	"libracatalog/internal/circulation"
	"libracatalog/internal/clients"
	"libracatalog/internal/membership"
)

// Clients are the API clients experiments drive.
type Clients struct {
	Catalog     *clients.CatalogClient
	Members     *clients.MembershipClient
	Circulation *clients.CirculationClient
}

// RegisterExperiments registers the predefined experiments with the engine.
func (e *Engine) RegisterExperiments(c Clients, concurrency int) {
	e.Register(ConcurrentCheckoutRace(c, concurrency))
	e.Register(RepeatedReturnIdempotence(c))
}

var isbnSeq atomic.Int64

// uniqueISBN returns a 13 digit ISBN-shaped string unlikely to collide with
// earlier runs against the same store.
func uniqueISBN() string {
	n := time.Now().UnixNano()/1000 + isbnSeq.Add(1)
	return fmt.Sprintf("%013d", n%10_000_000_000_000)
}

func newBook(title string, copies int) catalog.BookInput {
	return catalog.BookInput{
		Title:           title,
		Author:          "Chaos Monkey",
		ISBN:            uniqueISBN(),
		PublicationYear: 2020,
		Publisher:       "Game Day Press",
		Category:        "Testing",
		TotalCopies:     &copies,
		AvailableCopies: &copies,
		Location:        "Lab",
	}
}

func newMember() membership.MemberInput {
	return membership.MemberInput{
		Name:    "Chaos Member",
		Email:   fmt.Sprintf("chaos-%s@example.com", uuid.NewString()),
		Phone:   "555-000-0000",
		Address: "1 Experiment Way",
	}
}

func loan(bookID, memberID int64) circulation.RecordInput {
	today := caldate.Today()
	return circulation.RecordInput{
		BookID:     bookID,
		MemberID:   memberID,
		BorrowDate: today,
		DueDate:    caldate.New(today.AddDate(0, 0, 14)),
		Status:     circulation.StatusBorrowed,
	}
}

// copyDrift reports 1 when the book's available copies fall outside
// [0, total], 0 otherwise or when no book has been created yet.
func copyDrift(ctx context.Context, c Clients, bookID *atomic.Int64) (float64, error) {
	id := bookID.Load()
	if id == 0 {
		return 0, nil
	}
	b, err := c.Catalog.GetBook(ctx, id)
	if err != nil {
		return 0, err
	}
	if b.AvailableCopies < 0 || b.AvailableCopies > b.TotalCopies {
		return 1, nil
	}
	return 0, nil
}

// ConcurrentCheckoutRace has many members borrow the single copy of a book
// at once.
func ConcurrentCheckoutRace(c Clients, concurrency int) Experiment {
	var bookID atomic.Int64
	var successes atomic.Int64
	var mu sync.Mutex
	var winners []int64

	return Experiment{
		Name:       "concurrent-checkout-race",
		Hypothesis: "Exactly one of many simultaneous checkouts of a one-copy book succeeds and its copy count stays consistent",
		SteadyState: []Metric{
			{
				Name:      "copy_count_drift",
				Query:     func(ctx context.Context) (float64, error) { return copyDrift(ctx, c, &bookID) },
				Threshold: Threshold{Operator: "==", Value: 0},
			},
			{
				Name:      "successful_checkouts",
				Query:     func(context.Context) (float64, error) { return float64(successes.Load()), nil },
				Threshold: Threshold{Operator: "<=", Value: 1},
			},
		},
		Method: []Action{
			{
				Type:   "concurrent-requests",
				Target: "borrowing-records",
				Execute: func(ctx context.Context) error {
					id, err := c.Catalog.AddBook(ctx, newBook("Race Condition", 1))
					if err != nil {
						return fmt.Errorf("add book: %w", err)
					}
					bookID.Store(id)

					members := make([]int64, 0, concurrency)
					for i := 0; i < concurrency; i++ {
						m, err := c.Members.RegisterMember(ctx, newMember())
						if err != nil {
							return fmt.Errorf("register member: %w", err)
						}
						members = append(members, m)
					}

					var wg sync.WaitGroup
					errs := make(chan error, len(members))
					for _, m := range members {
						wg.Add(1)
						go func(memberID int64) {
							defer wg.Done()
							rec, err := c.Circulation.Checkout(ctx, loan(id, memberID))
							if err != nil {
								// 400 is the expected refusal for every loser.
								if clients.StatusOf(err) != 400 {
									errs <- err
								}
								return
							}
							successes.Add(1)
							mu.Lock()
							winners = append(winners, rec)
							mu.Unlock()
						}(m)
					}
					wg.Wait()
					close(errs)

					var all []error
					for err := range errs {
						all = append(all, err)
					}
					return errors.Join(all...)
				},
			},
		},
		Rollback: []Action{
			{
				Type:   "return-copies",
				Target: "borrowing-records",
				Execute: func(ctx context.Context) error {
					mu.Lock()
					defer mu.Unlock()
					var all []error
					for _, rec := range winners {
						all = append(all, c.Circulation.Return(ctx, rec))
					}
					return errors.Join(all...)
				},
			},
		},
		Validation: []Assertion{
			{
				Metric:    "successful_checkouts",
				Condition: func(v float64) bool { return v == 1 },
				Message:   "Exactly one checkout should succeed",
			},
			{
				Metric:    "copy_count_drift",
				Condition: func(v float64) bool { return v == 0 },
				Message:   "Available copies must stay within [0, total]",
			},
		},
		Duration: 3 * time.Second,
	}
}

// RepeatedReturnIdempotence returns the same loan twice.
func RepeatedReturnIdempotence(c Clients) Experiment {
	var bookID atomic.Int64
	var total atomic.Int64

	shelfGap := func(ctx context.Context) (float64, error) {
		id := bookID.Load()
		if id == 0 {
			return 0, nil
		}
		b, err := c.Catalog.GetBook(ctx, id)
		if err != nil {
			return 0, err
		}
		return float64(int64(b.AvailableCopies) - total.Load()), nil
	}

	return Experiment{
		Name:       "repeated-return-idempotence",
		Hypothesis: "Returning the same loan twice restores exactly one copy",
		SteadyState: []Metric{
			{
				Name:      "shelf_gap",
				Query:     shelfGap,
				Threshold: Threshold{Operator: "==", Value: 0},
			},
			{
				Name:      "copy_count_drift",
				Query:     func(ctx context.Context) (float64, error) { return copyDrift(ctx, c, &bookID) },
				Threshold: Threshold{Operator: "==", Value: 0},
			},
		},
		Method: []Action{
			{
				Type:   "duplicate-return",
				Target: "borrowing-records",
				Execute: func(ctx context.Context) error {
					const copies = 2
					id, err := c.Catalog.AddBook(ctx, newBook("Idempotent Returns", copies))
					if err != nil {
						return fmt.Errorf("add book: %w", err)
					}
					member, err := c.Members.RegisterMember(ctx, newMember())
					if err != nil {
						return fmt.Errorf("register member: %w", err)
					}
					rec, err := c.Circulation.Checkout(ctx, loan(id, member))
					if err != nil {
						return fmt.Errorf("checkout: %w", err)
					}
					if err := c.Circulation.Return(ctx, rec); err != nil {
						return fmt.Errorf("first return: %w", err)
					}
					if err := c.Circulation.Return(ctx, rec); err != nil {
						return fmt.Errorf("second return: %w", err)
					}
					total.Store(copies)
					bookID.Store(id)
					return nil
				},
			},
		},
		Validation: []Assertion{
			{
				Metric:    "shelf_gap",
				Condition: func(v float64) bool { return v == 0 },
				Message:   "Every copy should be back on the shelf exactly once",
			},
		},
		Duration: 2 * time.Second,
	}
}
