package gcal

// DTOs for the Google Calendar v3 REST API. Only the fields this client
// reads or writes are declared.

type calendarListResponse struct {
	Items []calendarListEntry `json:"items"`
}

type calendarListEntry struct {
	ID      string `json:"id"`
	Summary string `json:"summary"`
	Primary bool   `json:"primary"`
	ColorID string `json:"colorId"`
}

type calendarResource struct {
	ID          string `json:"id,omitempty"`
	Summary     string `json:"summary"`
	Description string `json:"description,omitempty"`
	TimeZone    string `json:"timeZone,omitempty"`
}

type calendarListPatch struct {
	ColorID string `json:"colorId"`
}

type eventsResponse struct {
	Items []eventResource `json:"items"`
}

// eventDateTime carries either Date (all-day, "2006-01-02") or DateTime
// (RFC3339). For all-day events the end Date is EXCLUSIVE: one calendar day
// after the start.
type eventDateTime struct {
	Date     string `json:"date,omitempty"`
	DateTime string `json:"dateTime,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

type eventResource struct {
	ID          string         `json:"id,omitempty"`
	Status      string         `json:"status,omitempty"`
	Summary     string         `json:"summary,omitempty"`
	Description string         `json:"description,omitempty"`
	Start       *eventDateTime `json:"start,omitempty"`
	End         *eventDateTime `json:"end,omitempty"`
	Recurrence  []string       `json:"recurrence,omitempty"`
}

type apiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
