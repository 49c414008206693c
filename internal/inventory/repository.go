package inventory

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/shelflife/shelflife/internal/domain"
)

// DefaultCategories is the fixed, ordered set seeded on first run. Explicit
// sequential IDs keep category identity stable across fresh installs.
func DefaultCategories() []domain.Category {
	return []domain.Category{
		{ID: 1, Name: "Fruits"},
		{ID: 2, Name: "Vegetables"},
		{ID: 3, Name: "Dairy"},
		{ID: 4, Name: "Meat & Fish"},
		{ID: 5, Name: "Frozen"},
		{ID: 6, Name: "Pantry"},
		{ID: 7, Name: "Beverages"},
		{ID: 8, Name: "Leftovers"},
	}
}

// Repository is a thin façade over the record store. Its one piece of domain
// logic is first-run category seeding; everything else is validation in
// front of store calls.
type Repository struct {
	store  domain.RecordStore
	logger *slog.Logger
}

// NewRepository creates a new inventory repository.
func NewRepository(store domain.RecordStore, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{store: store, logger: logger}
}

// EnsureInitialCategories seeds the default categories when the store holds
// none. Safe to call on every startup: once any category exists it is a
// no-op, so calling it twice never produces more categories than once.
func (r *Repository) EnsureInitialCategories(ctx context.Context) error {
	count, err := r.store.CategoryCount(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	defaults := DefaultCategories()
	if err := r.store.InsertCategories(ctx, defaults); err != nil {
		return err
	}
	r.logger.Info("seeded default categories", "count", len(defaults))
	return nil
}

// AddFood validates and inserts a new food record. New records always start
// at 100% remaining. Validation failures are rejected before any write.
func (r *Repository) AddFood(ctx context.Context, name string, categoryID int64, expiry time.Time) (*domain.Food, error) {
	if strings.TrimSpace(name) == "" {
		return nil, &domain.ValidationError{Field: "name", Reason: "must not be blank"}
	}
	if categoryID <= 0 {
		return nil, &domain.ValidationError{Field: "category", Reason: "must be selected"}
	}
	if expiry.IsZero() {
		return nil, &domain.ValidationError{Field: "expiry date", Reason: "must be set"}
	}

	food := &domain.Food{
		CategoryID:          categoryID,
		Name:                strings.TrimSpace(name),
		ExpiryDate:          expiry,
		RemainingPercentage: 100,
		CreatedAt:           time.Now(),
	}
	if err := r.store.InsertFood(ctx, food); err != nil {
		return nil, err
	}
	r.logger.Debug("added food", "id", food.ID, "name", food.Name)
	return food, nil
}

// SetRemainingPercentage clamps pct to [0,100] and updates the record. The
// store does not enforce the range, so the clamp happens here, before
// persistence. Reaching 0% never auto-deletes; removal is a separate call.
func (r *Repository) SetRemainingPercentage(ctx context.Context, id int64, pct int) (*domain.Food, error) {
	if pct < 0 {
		pct = 0
	} else if pct > 100 {
		pct = 100
	}

	food, err := r.store.FoodByID(ctx, id)
	if err != nil {
		return nil, err
	}
	food.RemainingPercentage = pct
	if err := r.store.UpdateFood(ctx, *food); err != nil {
		return nil, err
	}
	return food, nil
}

// RemoveFood deletes a food record by id.
func (r *Repository) RemoveFood(ctx context.Context, id int64) error {
	return r.store.DeleteFoodByID(ctx, id)
}

// Categories returns the current category list.
func (r *Repository) Categories(ctx context.Context) ([]domain.Category, error) {
	return r.store.Categories(ctx)
}
