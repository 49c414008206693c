package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shelflife/shelflife/internal/domain"
)

const (
	// DedicatedCalendarName is the fixed display name of the one calendar
	// this application owns on the remote account. Discovery always runs
	// before creation so at most one such calendar exists per account.
	DedicatedCalendarName = "ShelfLife Expiry"

	dedicatedCalendarDescription = "Expiry dates mirrored from the ShelfLife food inventory. Managed automatically."
	dedicatedCalendarColorID     = "3"

	// primaryCalendarID is the provider alias for the account's default
	// calendar, used as the degraded fallback write target and as the
	// read target for month fetches.
	primaryCalendarID = "primary"

	eventTitleFormat = "ShelfLife: %s expires"
	eventDescription = "Added by ShelfLife to track this item's expiry date."
)

// ConnectionState tracks the account connection lifecycle.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// SyncEngine mirrors food expiry dates into the signed-in account's remote
// calendar and maps remote events back into marker dates for display.
//
// Write operations target only the dedicated calendar; month-range reads
// cover the whole account via the primary calendar. Remote failures never
// roll back or block a local write, and nothing here retries: a failed
// mirror write is logged, surfaced, and dropped.
type SyncEngine struct {
	broker   domain.IdentityBroker
	provider domain.CalendarProvider
	timeZone string // IANA name written into a created calendar
	loc      *time.Location
	logger   *slog.Logger

	// All cached state below is guarded by mu; the engine instance has one
	// logical owner and concurrent callers serialize through it.
	mu             sync.Mutex
	state          ConnectionState
	calendarID     string                 // resolved dedicated calendar, "" until first resolve
	markers        map[string][]time.Time // month key -> de-duplicated day buckets
	displayedYear  int
	displayedMonth time.Month
}

// NewSyncEngine creates a sync engine. loc is the viewer's display timezone;
// timeZone is the IANA zone assigned to a newly created dedicated calendar.
func NewSyncEngine(broker domain.IdentityBroker, provider domain.CalendarProvider, timeZone string, loc *time.Location, logger *slog.Logger) *SyncEngine {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.Local
	}
	now := time.Now().In(loc)
	return &SyncEngine{
		broker:         broker,
		provider:       provider,
		timeZone:       timeZone,
		loc:            loc,
		logger:         logger,
		state:          StateDisconnected,
		markers:        make(map[string][]time.Time),
		displayedYear:  now.Year(),
		displayedMonth: now.Month(),
	}
}

// IsConnected reports whether the identity broker currently yields an
// account holding the calendar scope. Pure read, no network call.
func (e *SyncEngine) IsConnected() bool {
	return e.broker.IsSignedIn()
}

// State returns the current connection lifecycle state.
func (e *SyncEngine) State() ConnectionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// SetDisplayedMonth records which month the caller is showing; Connect
// primes the marker cache for this month.
func (e *SyncEngine) SetDisplayedMonth(year int, month time.Month) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.displayedYear = year
	e.displayedMonth = month
}

// Connect attempts silent reauthentication and, on success, primes the
// marker cache for the displayed month. ErrInteractiveSignInRequired is
// surfaced to the caller, who orchestrates interactive sign-in outside this
// engine.
func (e *SyncEngine) Connect(ctx context.Context) error {
	e.mu.Lock()
	e.state = StateConnecting
	year, month := e.displayedYear, e.displayedMonth
	e.mu.Unlock()

	_, err := e.broker.TrySilentSignIn(ctx)
	if err != nil {
		e.setState(StateDisconnected)
		if errors.Is(err, domain.ErrInteractiveSignInRequired) || errors.Is(err, domain.ErrCancelled) {
			return err
		}
		e.logger.Error("account connection failed", "error", err)
		return fmt.Errorf("failed to connect calendar account: %w", err)
	}

	e.setState(StateConnected)
	if acc := e.broker.CurrentAccount(); acc != nil {
		e.logger.Info("calendar account connected", "account", acc.String())
	} else {
		e.logger.Info("calendar account connected")
	}

	// Prime the displayed month. A fetch failure already degrades to an
	// empty marker set, so the connection itself stays up.
	e.FetchEventDates(ctx, year, month)
	return nil
}

func (e *SyncEngine) setState(s ConnectionState) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// GetOrCreateDedicatedCalendar resolves the dedicated calendar id:
// discovery first, creation only when absent, one best-effort color set on
// creation. The resolved id is cached for the life of this engine, so a
// second call in the same session performs no network round-trip. If the
// whole discovery/creation path fails, the primary calendar id is returned
// so callers can proceed degraded.
func (e *SyncEngine) GetOrCreateDedicatedCalendar(ctx context.Context) (string, error) {
	e.mu.Lock()
	if e.calendarID != "" {
		id := e.calendarID
		e.mu.Unlock()
		return id, nil
	}
	e.mu.Unlock()

	cals, err := e.provider.ListCalendars(ctx)
	if err != nil {
		e.logger.Warn("calendar discovery failed, falling back to primary", "error", err)
		return primaryCalendarID, nil
	}

	for _, cal := range cals {
		if cal.Name == DedicatedCalendarName {
			e.cacheCalendarID(cal.ID)
			return cal.ID, nil
		}
	}

	id, err := e.provider.CreateCalendar(ctx, DedicatedCalendarName, dedicatedCalendarDescription, e.timeZone)
	if err != nil {
		e.logger.Warn("calendar creation failed, falling back to primary", "error", err)
		return fallbackCalendarID(cals), nil
	}

	// Color is decoration only; a failure here must not fail creation.
	if err := e.provider.SetCalendarColor(ctx, id, dedicatedCalendarColorID); err != nil {
		e.logger.Warn("failed to set calendar color", "error", err)
	}

	e.cacheCalendarID(id)
	e.logger.Info("created dedicated calendar", "id", id)
	return id, nil
}

func (e *SyncEngine) cacheCalendarID(id string) {
	e.mu.Lock()
	e.calendarID = id
	e.mu.Unlock()
}

func fallbackCalendarID(cals []domain.RemoteCalendar) string {
	for _, cal := range cals {
		if cal.Primary {
			return cal.ID
		}
	}
	return primaryCalendarID
}

// AddExpiryEvent mirrors one expiry date as an all-day event on the
// dedicated calendar and returns the provider-assigned event id. The event
// spans [date, date+1): the exclusive end date is exactly one calendar day
// after the start, otherwise the provider renders a two-day event.
//
// Local record persistence and remote mirroring are independent: a failure
// here must never roll back or block the local write.
func (e *SyncEngine) AddExpiryEvent(ctx context.Context, foodName string, expiry time.Time) (string, error) {
	if !e.IsConnected() {
		return "", domain.ErrNotSignedIn
	}

	start := DayBucket(expiry, e.loc)
	end := start.AddDate(0, 0, 1)

	calendarID, err := e.GetOrCreateDedicatedCalendar(ctx)
	if err != nil {
		return "", err
	}

	title := fmt.Sprintf(eventTitleFormat, foodName)
	id, err := e.provider.InsertAllDayEvent(ctx, calendarID, title, eventDescription, start, end)
	if err != nil {
		e.logger.Warn("failed to mirror expiry event", "food", foodName, "error", err)
		return "", err
	}

	e.logger.Debug("mirrored expiry event", "food", foodName, "eventID", id)
	return id, nil
}

// DeleteEvent deletes a mirrored event from the dedicated calendar. Typed
// failure on error, no retry.
func (e *SyncEngine) DeleteEvent(ctx context.Context, eventID string) error {
	if !e.IsConnected() {
		return domain.ErrNotSignedIn
	}

	calendarID, err := e.GetOrCreateDedicatedCalendar(ctx)
	if err != nil {
		return err
	}

	if err := e.provider.DeleteEvent(ctx, calendarID, eventID); err != nil {
		e.logger.Warn("failed to delete mirrored event", "eventID", eventID, "error", err)
		return err
	}
	return nil
}

// FetchEventDates fetches the month window [firstOfMonth, firstOfNextMonth)
// from the PRIMARY calendar (reads cover the whole account, writes target
// only the dedicated calendar) and collapses the events into a de-duplicated,
// sorted set of marker day-buckets in the viewer's timezone.
//
// Any failure degrades to an empty set: marker dates are supplementary
// display data, and a transient network failure should render as "no
// markers", not crash the calendar view.
func (e *SyncEngine) FetchEventDates(ctx context.Context, year int, month time.Month) []time.Time {
	if !e.IsConnected() {
		return nil
	}

	from := time.Date(year, month, 1, 0, 0, 0, 0, e.loc)
	to := from.AddDate(0, 1, 0)

	events, err := e.provider.ListEvents(ctx, primaryCalendarID, from, to)
	if err != nil {
		e.logger.Warn("event fetch failed, showing no markers", "year", year, "month", int(month), "error", err)
		return []time.Time{}
	}

	seen := make(map[time.Time]bool, len(events))
	dates := make([]time.Time, 0, len(events))
	for _, ev := range events {
		day := DayBucket(ev.StartTime, e.loc)
		if !seen[day] {
			seen[day] = true
			dates = append(dates, day)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	e.mu.Lock()
	e.markers[monthKey(year, month)] = dates
	e.mu.Unlock()

	return dates
}

// MarkerDates returns the cached marker set for a month, if one was fetched
// this session.
func (e *SyncEngine) MarkerDates(year int, month time.Month) ([]time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	dates, ok := e.markers[monthKey(year, month)]
	return dates, ok
}

// FetchEventsForDay returns the events whose start falls on the same
// calendar day as instant, in the viewer's timezone. Same degradation rule
// as FetchEventDates.
func (e *SyncEngine) FetchEventsForDay(ctx context.Context, instant time.Time) []domain.CalendarEvent {
	if !e.IsConnected() {
		return nil
	}

	local := instant.In(e.loc)
	from := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, e.loc)
	to := from.AddDate(0, 1, 0)

	events, err := e.provider.ListEvents(ctx, primaryCalendarID, from, to)
	if err != nil {
		e.logger.Warn("event fetch failed for day view", "error", err)
		return nil
	}

	out := make([]domain.CalendarEvent, 0, len(events))
	for _, ev := range events {
		if SameDay(ev.StartTime, instant, e.loc) {
			out = append(out, ev)
		}
	}
	return out
}

// Disconnect revokes the cached identity and clears all cached calendar
// state. The dedicated remote calendar and its events are left untouched.
func (e *SyncEngine) Disconnect() {
	e.broker.SignOut()

	e.mu.Lock()
	e.state = StateDisconnected
	e.calendarID = ""
	e.markers = make(map[string][]time.Time)
	e.mu.Unlock()

	e.logger.Info("calendar account disconnected")
}

func monthKey(year int, month time.Month) string {
	return fmt.Sprintf("%04d-%02d", year, int(month))
}
