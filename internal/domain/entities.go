package domain

import (
	"fmt"
	"time"
)

// Category groups food records. Categories are seeded on first run and are
// never renamed; their IDs stay stable across installs.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Food represents a single perishable item in the inventory.
type Food struct {
	ID                  int64     `json:"id"`
	CategoryID          int64     `json:"categoryId"` // Must reference an existing Category at write time
	Name                string    `json:"name"`
	ExpiryDate          time.Time `json:"expiryDate"`
	RemainingPercentage int       `json:"remainingPercentage"` // Clamped to [0,100] by the caller
	CreatedAt           time.Time `json:"createdAt"`
}

// DaysUntilExpiry returns whole calendar days from now until the expiry date.
// Negative values mean the item is already expired.
func (f Food) DaysUntilExpiry(now time.Time) int {
	nowDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	exp := f.ExpiryDate.In(now.Location())
	expDay := time.Date(exp.Year(), exp.Month(), exp.Day(), 0, 0, 0, 0, now.Location())
	return int(expDay.Sub(nowDay).Hours() / 24)
}

// IsExpired reports whether the expiry date lies before the current day.
func (f Food) IsExpired(now time.Time) bool {
	return f.DaysUntilExpiry(now) < 0
}

// FormattedExpiry returns the expiry date in a short display form.
func (f Food) FormattedExpiry() string {
	return f.ExpiryDate.Format("2006-01-02")
}

// FoodWithCategory is the read-only join projection consumed by the query
// layer. It is recomputed on every store change and never persisted.
type FoodWithCategory struct {
	Food     Food     `json:"food"`
	Category Category `json:"category"`
}

// CalendarEvent is a transient projection of a remote calendar event. It
// lives only for the duration of one fetch; nothing about it is persisted.
type CalendarEvent struct {
	ID        string // Opaque, provider-assigned
	Title     string
	StartTime time.Time
	EndTime   time.Time
	IsAllDay  bool
}

// RemoteCalendar describes one calendar on the signed-in account.
type RemoteCalendar struct {
	ID      string
	Name    string
	Primary bool
}

// Account identifies the signed-in remote identity. Exactly one account is
// signed in at a time.
type Account struct {
	Email string
}

func (a Account) String() string {
	if a.Email == "" {
		return "signed-in account"
	}
	return a.Email
}

// FoodsSnapshot is an immutable result set published by the food stream,
// ordered ascending by expiry date.
type FoodsSnapshot = []FoodWithCategory

func (f Food) String() string {
	return fmt.Sprintf("%s (expires %s, %d%% left)", f.Name, f.FormattedExpiry(), f.RemainingPercentage)
}
