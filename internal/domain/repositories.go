package domain

import (
	"context"
	"time"
)

// FoodSubscription delivers immutable FoodWithCategory snapshots, ordered
// ascending by expiry date. Delivery is conflated: a slow consumer only ever
// sees the newest snapshot. Close releases the subscription; leaking one
// keeps the publisher side alive.
type FoodSubscription interface {
	Updates() <-chan []FoodWithCategory
	Close()
}

// CategorySubscription delivers immutable category list snapshots.
type CategorySubscription interface {
	Updates() <-chan []Category
	Close()
}

// RecordStore is the durable keyed storage holding Category and Food
// entities. Exactly one handle is constructed at startup and injected into
// every consumer; there is no global connection state.
type RecordStore interface {
	// === Categories ===
	InsertCategory(ctx context.Context, c *Category) error
	InsertCategories(ctx context.Context, cs []Category) error
	Categories(ctx context.Context) ([]Category, error)
	CategoryCount(ctx context.Context) (int, error)
	// DeleteCategory cascades to every Food row referencing the category.
	DeleteCategory(ctx context.Context, id int64) error

	// === Foods ===
	InsertFood(ctx context.Context, f *Food) error
	UpdateFood(ctx context.Context, f Food) error
	DeleteFood(ctx context.Context, f Food) error
	DeleteFoodByID(ctx context.Context, id int64) error
	FoodByID(ctx context.Context, id int64) (*Food, error)
	FoodsWithCategory(ctx context.Context) ([]FoodWithCategory, error)

	// === Live query streams ===
	SubscribeFoods() FoodSubscription
	SubscribeCategories() CategorySubscription

	Close() error
}

// IdentityBroker yields the signed-in account or a typed failure. The
// interactive sign-in flow itself runs outside the sync engine; the engine
// only consumes its terminal outcome.
type IdentityBroker interface {
	// IsSignedIn is a pure read; it never makes a network call.
	IsSignedIn() bool

	// CurrentAccount returns the signed-in account, or nil.
	CurrentAccount() *Account

	// TrySilentSignIn attempts cached reauthentication with at most one
	// network call. It returns ErrInteractiveSignInRequired when no silent
	// path exists and ErrCancelled when ctx is torn down.
	TrySilentSignIn(ctx context.Context) (*Account, error)

	// SignOut revokes the cached identity.
	SignOut()
}

// CredentialSource supplies the bearer credential for remote calendar calls.
type CredentialSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// CalendarProvider is the remote calendar service. Every call is attempted
// at most once; retry policy is the caller's concern (and the caller never
// retries).
type CalendarProvider interface {
	ListCalendars(ctx context.Context) ([]RemoteCalendar, error)
	CreateCalendar(ctx context.Context, name, description, timeZone string) (string, error)
	// SetCalendarColor is best-effort decoration; callers treat failure as
	// non-fatal.
	SetCalendarColor(ctx context.Context, calendarID, colorID string) error
	// ListEvents returns events in [from, to) with recurring events expanded
	// into individual instances, ordered by start time, capped at a bounded
	// result count.
	ListEvents(ctx context.Context, calendarID string, from, to time.Time) ([]CalendarEvent, error)
	InsertAllDayEvent(ctx context.Context, calendarID, title, description string, start, end time.Time) (string, error)
	DeleteEvent(ctx context.Context, calendarID, eventID string) error
}
