package calendar

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shelflife/shelflife/internal/domain"
	"github.com/shelflife/shelflife/internal/log"
)

type fakeBroker struct {
	signedIn   bool
	account    *domain.Account
	silentErr  error
	signOuts   int
	silentCall int
}

func (b *fakeBroker) IsSignedIn() bool                { return b.signedIn }
func (b *fakeBroker) CurrentAccount() *domain.Account { return b.account }

func (b *fakeBroker) TrySilentSignIn(ctx context.Context) (*domain.Account, error) {
	b.silentCall++
	if b.silentErr != nil {
		return nil, b.silentErr
	}
	b.signedIn = true
	return b.account, nil
}

func (b *fakeBroker) SignOut() {
	b.signOuts++
	b.signedIn = false
	b.account = nil
}

type fakeProvider struct {
	calendars []domain.RemoteCalendar
	events    []domain.CalendarEvent

	listCalendarsErr error
	createErr        error
	colorErr         error
	listEventsErr    error
	insertErr        error

	listCalendarCalls int
	createCalls       int
	colorCalls        int
	listEventCalls    int
	insertCalls       int
	deleteCalls       int

	createdID string
	lastColor string

	lastInsertCalendar string
	lastInsertTitle    string
	lastInsertStart    time.Time
	lastInsertEnd      time.Time

	lastListCalendar string
	lastListFrom     time.Time
	lastListTo       time.Time

	lastDeleteCalendar string
	lastDeleteEvent    string
}

func (p *fakeProvider) ListCalendars(ctx context.Context) ([]domain.RemoteCalendar, error) {
	p.listCalendarCalls++
	if p.listCalendarsErr != nil {
		return nil, p.listCalendarsErr
	}
	return p.calendars, nil
}

func (p *fakeProvider) CreateCalendar(ctx context.Context, name, description, timeZone string) (string, error) {
	p.createCalls++
	if p.createErr != nil {
		return "", p.createErr
	}
	if p.createdID == "" {
		p.createdID = fmt.Sprintf("created-%d", p.createCalls)
	}
	p.calendars = append(p.calendars, domain.RemoteCalendar{ID: p.createdID, Name: name})
	return p.createdID, nil
}

func (p *fakeProvider) SetCalendarColor(ctx context.Context, calendarID, colorID string) error {
	p.colorCalls++
	p.lastColor = colorID
	return p.colorErr
}

func (p *fakeProvider) ListEvents(ctx context.Context, calendarID string, from, to time.Time) ([]domain.CalendarEvent, error) {
	p.listEventCalls++
	p.lastListCalendar = calendarID
	p.lastListFrom = from
	p.lastListTo = to
	if p.listEventsErr != nil {
		return nil, p.listEventsErr
	}
	return p.events, nil
}

func (p *fakeProvider) InsertAllDayEvent(ctx context.Context, calendarID, title, description string, start, end time.Time) (string, error) {
	p.insertCalls++
	p.lastInsertCalendar = calendarID
	p.lastInsertTitle = title
	p.lastInsertStart = start
	p.lastInsertEnd = end
	if p.insertErr != nil {
		return "", p.insertErr
	}
	return fmt.Sprintf("event-%d", p.insertCalls), nil
}

func (p *fakeProvider) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	p.deleteCalls++
	p.lastDeleteCalendar = calendarID
	p.lastDeleteEvent = eventID
	return nil
}

func newTestEngine(broker *fakeBroker, provider *fakeProvider) *SyncEngine {
	return NewSyncEngine(broker, provider, "UTC", time.UTC, log.NullLogger())
}

func signedInBroker() *fakeBroker {
	return &fakeBroker{signedIn: true, account: &domain.Account{Email: "user@example.com"}}
}

func TestGetOrCreateDedicatedCalendarFindsExisting(t *testing.T) {
	provider := &fakeProvider{
		calendars: []domain.RemoteCalendar{
			{ID: "primary-id", Name: "user@example.com", Primary: true},
			{ID: "shelf-id", Name: DedicatedCalendarName},
		},
	}
	engine := newTestEngine(signedInBroker(), provider)

	id, err := engine.GetOrCreateDedicatedCalendar(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "shelf-id" {
		t.Errorf("resolved id = %q, want shelf-id", id)
	}
	if provider.createCalls != 0 {
		t.Errorf("CreateCalendar called %d times for an existing calendar", provider.createCalls)
	}
}

func TestGetOrCreateDedicatedCalendarCreatesAtMostOncePerSession(t *testing.T) {
	provider := &fakeProvider{createdID: "new-cal"}
	engine := newTestEngine(signedInBroker(), provider)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		id, err := engine.GetOrCreateDedicatedCalendar(ctx)
		if err != nil {
			t.Fatalf("call %d: unexpected error: %v", i, err)
		}
		if id != "new-cal" {
			t.Errorf("call %d: id = %q, want new-cal", i, id)
		}
	}

	if provider.createCalls != 1 {
		t.Errorf("CreateCalendar called %d times, want 1", provider.createCalls)
	}
	if provider.listCalendarCalls != 1 {
		t.Errorf("ListCalendars called %d times, want 1 (cached id must short-circuit)", provider.listCalendarCalls)
	}
	if provider.colorCalls != 1 || provider.lastColor != "3" {
		t.Errorf("color set %d times with %q, want once with color 3", provider.colorCalls, provider.lastColor)
	}
}

func TestGetOrCreateDedicatedCalendarSurvivesColorFailure(t *testing.T) {
	provider := &fakeProvider{createdID: "new-cal", colorErr: errors.New("palette unavailable")}
	engine := newTestEngine(signedInBroker(), provider)
	ctx := context.Background()

	id, err := engine.GetOrCreateDedicatedCalendar(ctx)
	if err != nil {
		t.Fatalf("a failed color set must not fail creation: %v", err)
	}
	if id != "new-cal" {
		t.Errorf("id = %q, want new-cal", id)
	}
	if provider.colorCalls != 1 {
		t.Errorf("SetCalendarColor called %d times, want 1", provider.colorCalls)
	}

	// The created id is still cached despite the color failure.
	id, err = engine.GetOrCreateDedicatedCalendar(ctx)
	if err != nil || id != "new-cal" {
		t.Fatalf("second call = %q, %v; want the cached id", id, err)
	}
	if provider.createCalls != 1 || provider.listCalendarCalls != 1 {
		t.Errorf("create/list called %d/%d times, want 1/1", provider.createCalls, provider.listCalendarCalls)
	}
}

func TestGetOrCreateDedicatedCalendarFallsBackToPrimaryOnDiscoveryFailure(t *testing.T) {
	provider := &fakeProvider{listCalendarsErr: errors.New("network down")}
	engine := newTestEngine(signedInBroker(), provider)

	id, err := engine.GetOrCreateDedicatedCalendar(context.Background())
	if err != nil {
		t.Fatalf("fallback path must not fail: %v", err)
	}
	if id != "primary" {
		t.Errorf("fallback id = %q, want primary", id)
	}

	// The fallback id is not cached, so discovery runs again next call.
	provider.listCalendarsErr = nil
	provider.createdID = "new-cal"
	id, err = engine.GetOrCreateDedicatedCalendar(context.Background())
	if err != nil {
		t.Fatalf("retry after recovery failed: %v", err)
	}
	if id != "new-cal" {
		t.Errorf("post-recovery id = %q, want new-cal", id)
	}
	if provider.listCalendarCalls != 2 {
		t.Errorf("ListCalendars called %d times, want 2", provider.listCalendarCalls)
	}
}

func TestGetOrCreateDedicatedCalendarFallsBackOnCreateFailure(t *testing.T) {
	provider := &fakeProvider{
		calendars: []domain.RemoteCalendar{{ID: "acct-primary", Name: "user@example.com", Primary: true}},
		createErr: errors.New("quota exceeded"),
	}
	engine := newTestEngine(signedInBroker(), provider)

	id, err := engine.GetOrCreateDedicatedCalendar(context.Background())
	if err != nil {
		t.Fatalf("fallback path must not fail: %v", err)
	}
	if id != "acct-primary" {
		t.Errorf("fallback id = %q, want the listed primary calendar", id)
	}
}

func TestAddExpiryEventRequiresConnection(t *testing.T) {
	provider := &fakeProvider{}
	engine := newTestEngine(&fakeBroker{signedIn: false}, provider)

	_, err := engine.AddExpiryEvent(context.Background(), "Milk", time.Now())
	if !errors.Is(err, domain.ErrNotSignedIn) {
		t.Fatalf("err = %v, want ErrNotSignedIn", err)
	}
	if provider.listCalendarCalls != 0 || provider.insertCalls != 0 {
		t.Error("disconnected engine must not touch the provider")
	}
}

func TestAddExpiryEventSpansExactlyOneDay(t *testing.T) {
	cases := []struct {
		name      string
		expiry    time.Time
		wantStart time.Time
		wantEnd   time.Time
	}{
		{
			name:      "mid-month with time of day",
			expiry:    time.Date(2024, time.March, 15, 18, 45, 0, 0, time.UTC),
			wantStart: time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2024, time.March, 16, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "leap day rolls into March",
			expiry:    time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC),
			wantStart: time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "year boundary",
			expiry:    time.Date(2024, time.December, 31, 23, 0, 0, 0, time.UTC),
			wantStart: time.Date(2024, time.December, 31, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			provider := &fakeProvider{createdID: "cal"}
			engine := newTestEngine(signedInBroker(), provider)

			id, err := engine.AddExpiryEvent(context.Background(), "Yogurt", tc.expiry)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if id == "" {
				t.Error("expected a provider-assigned event id")
			}
			if !provider.lastInsertStart.Equal(tc.wantStart) {
				t.Errorf("start = %v, want %v", provider.lastInsertStart, tc.wantStart)
			}
			if !provider.lastInsertEnd.Equal(tc.wantEnd) {
				t.Errorf("end = %v, want %v", provider.lastInsertEnd, tc.wantEnd)
			}
		})
	}
}

func TestAddExpiryEventTitlesIncludeFoodName(t *testing.T) {
	provider := &fakeProvider{createdID: "cal"}
	engine := newTestEngine(signedInBroker(), provider)

	if _, err := engine.AddExpiryEvent(context.Background(), "Cheddar", time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "ShelfLife: Cheddar expires"
	if provider.lastInsertTitle != want {
		t.Errorf("title = %q, want %q", provider.lastInsertTitle, want)
	}
	if provider.lastInsertCalendar != "cal" {
		t.Errorf("insert targeted %q, want the dedicated calendar", provider.lastInsertCalendar)
	}
}

func TestDeleteEventTargetsDedicatedCalendar(t *testing.T) {
	provider := &fakeProvider{createdID: "cal"}
	engine := newTestEngine(signedInBroker(), provider)

	if err := engine.DeleteEvent(context.Background(), "ev-42"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.lastDeleteCalendar != "cal" || provider.lastDeleteEvent != "ev-42" {
		t.Errorf("deleted %q on %q, want ev-42 on cal", provider.lastDeleteEvent, provider.lastDeleteCalendar)
	}
}

func TestDeleteEventRequiresConnection(t *testing.T) {
	provider := &fakeProvider{}
	engine := newTestEngine(&fakeBroker{}, provider)

	if err := engine.DeleteEvent(context.Background(), "ev"); !errors.Is(err, domain.ErrNotSignedIn) {
		t.Fatalf("err = %v, want ErrNotSignedIn", err)
	}
	if provider.deleteCalls != 0 {
		t.Error("disconnected engine must not touch the provider")
	}
}

func TestFetchEventDatesDeduplicatesAndSorts(t *testing.T) {
	day15 := time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)
	day3 := time.Date(2024, time.March, 3, 0, 0, 0, 0, time.UTC)
	provider := &fakeProvider{
		events: []domain.CalendarEvent{
			{ID: "a", Title: "Dentist", StartTime: day15.Add(9 * time.Hour)},
			{ID: "b", Title: "Lunch", StartTime: day15.Add(12 * time.Hour)},
			{ID: "c", Title: "All day", StartTime: day3, IsAllDay: true},
		},
	}
	engine := newTestEngine(signedInBroker(), provider)

	dates := engine.FetchEventDates(context.Background(), 2024, time.March)
	if len(dates) != 2 {
		t.Fatalf("got %d marker dates, want 2: %v", len(dates), dates)
	}
	if !dates[0].Equal(day3) || !dates[1].Equal(day15) {
		t.Errorf("dates = %v, want [%v %v]", dates, day3, day15)
	}

	if provider.lastListCalendar != "primary" {
		t.Errorf("month fetch read %q, want the primary calendar", provider.lastListCalendar)
	}
	wantFrom := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	wantTo := time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC)
	if !provider.lastListFrom.Equal(wantFrom) || !provider.lastListTo.Equal(wantTo) {
		t.Errorf("window = [%v, %v), want [%v, %v)", provider.lastListFrom, provider.lastListTo, wantFrom, wantTo)
	}

	cached, ok := engine.MarkerDates(2024, time.March)
	if !ok || len(cached) != 2 {
		t.Errorf("marker cache = %v ok=%v, want the fetched set", cached, ok)
	}
}

func TestFetchEventDatesDegradesToEmptySetOnFailure(t *testing.T) {
	provider := &fakeProvider{listEventsErr: errors.New("503")}
	engine := newTestEngine(signedInBroker(), provider)

	dates := engine.FetchEventDates(context.Background(), 2024, time.March)
	if dates == nil || len(dates) != 0 {
		t.Errorf("dates = %v, want an empty non-nil set", dates)
	}
	if _, ok := engine.MarkerDates(2024, time.March); ok {
		t.Error("failed fetch must not populate the marker cache")
	}
}

func TestFetchEventsForDayFiltersBySameDay(t *testing.T) {
	day := time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)
	provider := &fakeProvider{
		events: []domain.CalendarEvent{
			{ID: "a", Title: "Morning", StartTime: day.Add(8 * time.Hour)},
			{ID: "b", Title: "Other day", StartTime: day.AddDate(0, 0, 1)},
			{ID: "c", Title: "Evening", StartTime: day.Add(20 * time.Hour)},
		},
	}
	engine := newTestEngine(signedInBroker(), provider)

	events := engine.FetchEventsForDay(context.Background(), day.Add(13*time.Hour))
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2: %v", len(events), events)
	}
	if events[0].ID != "a" || events[1].ID != "c" {
		t.Errorf("events = %v, want the two on March 15", events)
	}
}

func TestConnectSurfacesInteractiveSignInRequired(t *testing.T) {
	broker := &fakeBroker{silentErr: domain.ErrInteractiveSignInRequired}
	engine := newTestEngine(broker, &fakeProvider{})

	err := engine.Connect(context.Background())
	if !errors.Is(err, domain.ErrInteractiveSignInRequired) {
		t.Fatalf("err = %v, want ErrInteractiveSignInRequired", err)
	}
	if engine.State() != StateDisconnected {
		t.Errorf("state = %v, want disconnected after a failed connect", engine.State())
	}
}

func TestConnectPrimesDisplayedMonth(t *testing.T) {
	broker := &fakeBroker{account: &domain.Account{Email: "user@example.com"}}
	provider := &fakeProvider{}
	engine := newTestEngine(broker, provider)
	engine.SetDisplayedMonth(2024, time.June)

	if err := engine.Connect(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if engine.State() != StateConnected {
		t.Errorf("state = %v, want connected", engine.State())
	}
	if provider.listEventCalls != 1 {
		t.Errorf("ListEvents called %d times, want 1 priming fetch", provider.listEventCalls)
	}
	wantFrom := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
	if !provider.lastListFrom.Equal(wantFrom) {
		t.Errorf("primed window starts %v, want %v", provider.lastListFrom, wantFrom)
	}
}

func TestConnectWithoutAccountDetails(t *testing.T) {
	// A broker may report success while yielding no account value.
	broker := &fakeBroker{}
	engine := newTestEngine(broker, &fakeProvider{})

	if err := engine.Connect(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if engine.State() != StateConnected {
		t.Errorf("state = %v, want connected", engine.State())
	}
}

func TestDisconnectClearsCachedState(t *testing.T) {
	broker := signedInBroker()
	provider := &fakeProvider{createdID: "cal"}
	engine := newTestEngine(broker, provider)
	ctx := context.Background()

	if _, err := engine.GetOrCreateDedicatedCalendar(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	engine.FetchEventDates(ctx, 2024, time.March)

	engine.Disconnect()

	if broker.signOuts != 1 {
		t.Errorf("SignOut called %d times, want 1", broker.signOuts)
	}
	if engine.State() != StateDisconnected {
		t.Errorf("state = %v, want disconnected", engine.State())
	}
	if _, ok := engine.MarkerDates(2024, time.March); ok {
		t.Error("marker cache must be cleared on disconnect")
	}
	if engine.IsConnected() {
		t.Error("IsConnected must be false after disconnect")
	}
}
