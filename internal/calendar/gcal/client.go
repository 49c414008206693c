package gcal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/shelflife/shelflife/internal/domain"
)

const (
	// DefaultBaseURL is the production Google Calendar v3 endpoint.
	DefaultBaseURL = "https://www.googleapis.com/calendar/v3"

	defaultTimeout = 30 * time.Second
	userAgent      = "ShelfLife/1.0"

	// maxEventResults bounds one month-window fetch.
	maxEventResults = 250
)

// Client implements domain.CalendarProvider against the Google Calendar v3
// REST API. Every call is attempted exactly once; there is no retry or
// backoff anywhere in this client.
type Client struct {
	baseURL    string
	creds      domain.CredentialSource
	loc        *time.Location
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new calendar API client. Pass DefaultBaseURL outside
// of tests. loc is the viewer's display timezone for all-day anchoring.
func NewClient(baseURL string, creds domain.CredentialSource, loc *time.Location, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Client{
		baseURL: baseURL,
		creds:   creds,
		loc:     loc,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		logger: logger,
	}
}

// doRequest performs one authenticated HTTP request and returns the response
// body.
func (c *Client) doRequest(ctx context.Context, op, method, path string, query url.Values, payload interface{}) ([]byte, error) {
	token, err := c.creds.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	reqURL := c.baseURL + path
	if query != nil {
		reqURL = fmt.Sprintf("%s?%s", reqURL, query.Encode())
	}

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("calendar request", "method", method, "url", reqURL)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrCancelled, err)
		}
		c.logger.Error("calendar request failed", "op", op, "error", err)
		return nil, &domain.ProviderError{Op: op, Detail: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.ProviderError{Op: op, Detail: "failed to read response", Err: err}
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, &domain.ProviderError{Op: op, Detail: "credential rejected", Err: domain.ErrNotSignedIn}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := fmt.Sprintf("unexpected status %d", resp.StatusCode)
		var apiErr apiErrorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
			detail = fmt.Sprintf("%s: %s", detail, apiErr.Error.Message)
		}
		c.logger.Error("calendar request error", "op", op, "status", resp.StatusCode)
		return nil, &domain.ProviderError{Op: op, Detail: detail}
	}

	return body, nil
}

// ListCalendars returns all calendars on the signed-in account.
func (c *Client) ListCalendars(ctx context.Context) ([]domain.RemoteCalendar, error) {
	body, err := c.doRequest(ctx, "list calendars", http.MethodGet, "/users/me/calendarList", nil, nil)
	if err != nil {
		return nil, err
	}

	var list calendarListResponse
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, &domain.ProviderError{Op: "list calendars", Detail: "failed to parse response", Err: err}
	}

	out := make([]domain.RemoteCalendar, 0, len(list.Items))
	for _, item := range list.Items {
		out = append(out, domain.RemoteCalendar{
			ID:      item.ID,
			Name:    item.Summary,
			Primary: item.Primary,
		})
	}
	return out, nil
}

// CreateCalendar creates a new calendar and returns its provider-assigned id.
func (c *Client) CreateCalendar(ctx context.Context, name, description, timeZone string) (string, error) {
	payload := calendarResource{
		Summary:     name,
		Description: description,
		TimeZone:    timeZone,
	}
	body, err := c.doRequest(ctx, "create calendar", http.MethodPost, "/calendars", nil, payload)
	if err != nil {
		return "", err
	}

	var created calendarResource
	if err := json.Unmarshal(body, &created); err != nil {
		return "", &domain.ProviderError{Op: "create calendar", Detail: "failed to parse response", Err: err}
	}
	if created.ID == "" {
		return "", &domain.ProviderError{Op: "create calendar", Detail: "response missing calendar id"}
	}
	return created.ID, nil
}

// SetCalendarColor updates the calendar's color in the account's calendar
// list. Callers treat a failure here as non-fatal.
func (c *Client) SetCalendarColor(ctx context.Context, calendarID, colorID string) error {
	path := "/users/me/calendarList/" + url.PathEscape(calendarID)
	_, err := c.doRequest(ctx, "set calendar color", http.MethodPatch, path, nil, calendarListPatch{ColorID: colorID})
	return err
}

// ListEvents returns events in [from, to), recurring events expanded into
// individual instances, ordered by start time, capped at maxEventResults.
func (c *Client) ListEvents(ctx context.Context, calendarID string, from, to time.Time) ([]domain.CalendarEvent, error) {
	query := url.Values{}
	query.Set("timeMin", from.Format(time.RFC3339))
	query.Set("timeMax", to.Format(time.RFC3339))
	query.Set("singleEvents", "true")
	query.Set("orderBy", "startTime")
	query.Set("maxResults", fmt.Sprintf("%d", maxEventResults))

	path := "/calendars/" + url.PathEscape(calendarID) + "/events"
	body, err := c.doRequest(ctx, "list events", http.MethodGet, path, query, nil)
	if err != nil {
		return nil, err
	}

	var list eventsResponse
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, &domain.ProviderError{Op: "list events", Detail: "failed to parse response", Err: err}
	}

	out := make([]domain.CalendarEvent, 0, len(list.Items))
	for _, item := range list.Items {
		if len(item.Recurrence) > 0 {
			// Some providers hand back an unexpanded recurring master even
			// when instance expansion was requested.
			out = append(out, expandRecurring(item, from, to, c.loc)...)
			continue
		}
		if ev, ok := mapEvent(item, c.loc); ok {
			out = append(out, ev)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartTime.Before(out[j].StartTime)
	})
	if len(out) > maxEventResults {
		out = out[:maxEventResults]
	}
	return out, nil
}

// InsertAllDayEvent inserts an all-day event. end must be the EXCLUSIVE end
// date, one calendar day after start; an inclusive end would render as a
// two-day event.
func (c *Client) InsertAllDayEvent(ctx context.Context, calendarID, title, description string, start, end time.Time) (string, error) {
	payload := eventResource{
		Summary:     title,
		Description: description,
		Start:       &eventDateTime{Date: start.Format(allDayLayout)},
		End:         &eventDateTime{Date: end.Format(allDayLayout)},
	}

	path := "/calendars/" + url.PathEscape(calendarID) + "/events"
	body, err := c.doRequest(ctx, "insert event", http.MethodPost, path, nil, payload)
	if err != nil {
		return "", err
	}

	var created eventResource
	if err := json.Unmarshal(body, &created); err != nil {
		return "", &domain.ProviderError{Op: "insert event", Detail: "failed to parse response", Err: err}
	}
	if created.ID == "" {
		return "", &domain.ProviderError{Op: "insert event", Detail: "response missing event id"}
	}
	return created.ID, nil
}

// DeleteEvent deletes an event by id.
func (c *Client) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	path := "/calendars/" + url.PathEscape(calendarID) + "/events/" + url.PathEscape(eventID)
	_, err := c.doRequest(ctx, "delete event", http.MethodDelete, path, nil, nil)
	return err
}
