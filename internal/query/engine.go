package query

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/shelflife/shelflife/internal/domain"
	"github.com/shelflife/shelflife/internal/store"
)

// Engine combines the live food stream with user-supplied search text and an
// optional category selection into a derived, continuously-updated result
// set. It recomputes whenever any of the three inputs changes and publishes
// each result as a fresh immutable snapshot.
type Engine struct {
	sub    domain.FoodSubscription
	logger *slog.Logger

	mu       sync.Mutex
	latest   []domain.FoodWithCategory
	query    string
	category *int64

	out  *store.Stream[[]domain.FoodWithCategory]
	done chan struct{}
}

// NewEngine subscribes to the store's food stream and starts recomputing.
// Close must be called on teardown.
func NewEngine(recordStore domain.RecordStore, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		sub:    recordStore.SubscribeFoods(),
		logger: logger,
		out:    store.NewStream[[]domain.FoodWithCategory](),
		done:   make(chan struct{}),
	}

	// The store primes its stream on subscribe, so the current snapshot is
	// already buffered. Consume it here so Results is correct immediately,
	// before the recompute loop has had a chance to run.
	select {
	case snapshot := <-e.sub.Updates():
		e.mu.Lock()
		e.latest = snapshot
		e.recomputeLocked()
		e.mu.Unlock()
	default:
	}

	go e.run()
	return e
}

func (e *Engine) run() {
	for {
		select {
		case snapshot := <-e.sub.Updates():
			e.mu.Lock()
			e.latest = snapshot
			e.recomputeLocked()
			e.mu.Unlock()
		case <-e.done:
			return
		}
	}
}

// SetQuery replaces the search text and recomputes.
func (e *Engine) SetQuery(q string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.query = q
	e.recomputeLocked()
}

// SetCategory replaces the category selection and recomputes. nil selects
// all categories.
func (e *Engine) SetCategory(categoryID *int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.category = categoryID
	e.recomputeLocked()
}

// Results returns the current filtered snapshot.
func (e *Engine) Results() []domain.FoodWithCategory {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Filter(e.latest, e.query, e.category)
}

// Subscribe returns a subscription yielding every recomputed result set.
func (e *Engine) Subscribe() domain.FoodSubscription {
	return e.out.Subscribe()
}

// Close stops the recompute loop and unsubscribes from the store.
func (e *Engine) Close() {
	select {
	case <-e.done:
		return
	default:
	}
	close(e.done)
	e.sub.Close()
}

func (e *Engine) recomputeLocked() {
	e.out.Publish(Filter(e.latest, e.query, e.category))
}

// Filter returns the records matching the search text and category
// selection. A record matches when the query is empty or its name contains
// the query case-insensitively, and the category is nil or equal to the
// record's category id. Result order defers to the input snapshot, which the
// store keeps ascending by expiry date.
func Filter(items []domain.FoodWithCategory, query string, categoryID *int64) []domain.FoodWithCategory {
	query = strings.ToLower(strings.TrimSpace(query))

	out := make([]domain.FoodWithCategory, 0, len(items))
	for _, item := range items {
		if query != "" && !strings.Contains(strings.ToLower(item.Food.Name), query) {
			continue
		}
		if categoryID != nil && item.Food.CategoryID != *categoryID {
			continue
		}
		out = append(out, item)
	}
	return out
}
