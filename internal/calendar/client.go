package calendar

import (
	"context"
	"fmt"
	"time"

	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/driftware/workspace-mcp/internal/auth"
	"github.com/driftware/workspace-mcp/internal/google"
)

// Client wraps the Google Calendar service. Every call goes through the
// shared runner, so retry, timeout and rate-limit behavior matches the
// other service clients.
type Client struct {
	svc     *calendar.Service
	account string
	runner  *google.Runner
}

// NewClient builds a Calendar client authenticated by the provider.
func NewClient(ctx context.Context, provider auth.Provider, runner *google.Runner) (*Client, error) {
	httpClient, err := provider.HTTPClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("calendar: acquire HTTP client: %w", err)
	}

	google.ForceHTTP1(httpClient)

	svc, err := calendar.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("calendar: create service: %w", err)
	}

	return &Client{svc: svc, account: provider.Account(), runner: runner}, nil
}

// Account returns the account this client authenticates as.
func (c *Client) Account() string { return c.account }

// ListEvents lists events in a time window, expanded to single events
// and ordered by start time.
func (c *Client) ListEvents(ctx context.Context, calendarID string, timeMin, timeMax time.Time, query string) ([]EventSummary, error) {
	events, err := google.ExecuteValue(ctx, c.runner, "events.list", func(ctx context.Context) (*calendar.Events, error) {
		call := c.svc.Events.List(calendarID).
			Context(ctx).
			TimeMin(timeMin.Format(time.RFC3339)).
			TimeMax(timeMax.Format(time.RFC3339)).
			SingleEvents(true).
			OrderBy("startTime")
		if query != "" {
			call = call.Q(query)
		}
		return call.Do()
	})
	if err != nil {
		return nil, err
	}

	summaries := make([]EventSummary, 0, len(events.Items))
	for _, event := range events.Items {
		summaries = append(summaries, toEventSummary(event))
	}
	return summaries, nil
}

// GetEvent retrieves one event by ID.
func (c *Client) GetEvent(ctx context.Context, calendarID, eventID string) (*EventSummary, error) {
	event, err := google.ExecuteValue(ctx, c.runner, "events.get", func(ctx context.Context) (*calendar.Event, error) {
		return c.svc.Events.Get(calendarID, eventID).Context(ctx).Do()
	})
	if err != nil {
		return nil, err
	}
	summary := toEventSummary(event)
	return &summary, nil
}

// CreateEvent creates a new event.
func (c *Client) CreateEvent(ctx context.Context, calendarID string, input EventInput) (*EventSummary, error) {
	event := &calendar.Event{
		Summary:     input.Summary,
		Description: input.Description,
		Location:    input.Location,
		EventType:   input.EventType,
	}
	applyEventTimes(event, input)
	applyAttendees(event, input.Attendees)
	if len(input.Recurrence) > 0 {
		event.Recurrence = input.Recurrence
	}
	applyGuestPermissions(event, input)

	created, err := google.ExecuteValue(ctx, c.runner, "events.insert", func(ctx context.Context) (*calendar.Event, error) {
		call := c.svc.Events.Insert(calendarID, event).Context(ctx)
		if input.AddConference {
			call = call.ConferenceDataVersion(1)
			event.ConferenceData = &calendar.ConferenceData{
				CreateRequest: &calendar.CreateConferenceRequest{
					RequestId: fmt.Sprintf("meet-%d", time.Now().UnixNano()),
				},
			}
		}
		return call.Do()
	})
	if err != nil {
		return nil, err
	}

	summary := toEventSummary(created)
	return &summary, nil
}

// UpdateEvent patches an existing event with the non-zero fields of the
// input.
func (c *Client) UpdateEvent(ctx context.Context, calendarID, eventID string, input EventInput) (*EventSummary, error) {
	existing, err := google.ExecuteValue(ctx, c.runner, "events.get", func(ctx context.Context) (*calendar.Event, error) {
		return c.svc.Events.Get(calendarID, eventID).Context(ctx).Do()
	})
	if err != nil {
		return nil, err
	}

	if input.Summary != "" {
		existing.Summary = input.Summary
	}
	if input.Description != "" {
		existing.Description = input.Description
	}
	if input.Location != "" {
		existing.Location = input.Location
	}
	if input.EventType != "" {
		existing.EventType = input.EventType
	}
	if !input.Start.IsZero() || !input.End.IsZero() {
		applyEventTimes(existing, input)
	}
	applyAttendees(existing, input.Attendees)
	if len(input.Recurrence) > 0 {
		existing.Recurrence = input.Recurrence
	}
	applyGuestPermissions(existing, input)

	updated, err := google.ExecuteValue(ctx, c.runner, "events.update", func(ctx context.Context) (*calendar.Event, error) {
		return c.svc.Events.Update(calendarID, eventID, existing).Context(ctx).Do()
	})
	if err != nil {
		return nil, err
	}

	summary := toEventSummary(updated)
	return &summary, nil
}

// DeleteEvent deletes an event.
func (c *Client) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	return c.runner.Execute(ctx, "events.delete", func(ctx context.Context) error {
		return c.svc.Events.Delete(calendarID, eventID).Context(ctx).Do()
	})
}

// ListCalendars lists all calendars the account can see.
func (c *Client) ListCalendars(ctx context.Context) ([]CalendarInfo, error) {
	list, err := google.ExecuteValue(ctx, c.runner, "calendarList.list", func(ctx context.Context) (*calendar.CalendarList, error) {
		return c.svc.CalendarList.List().Context(ctx).Do()
	})
	if err != nil {
		return nil, err
	}

	infos := make([]CalendarInfo, 0, len(list.Items))
	for _, entry := range list.Items {
		infos = append(infos, toCalendarInfo(entry))
	}
	return infos, nil
}

// QueryFreeBusy reports busy ranges for the given calendars.
func (c *Client) QueryFreeBusy(ctx context.Context, timeMin, timeMax time.Time, calendarIDs []string) ([]FreeBusyInfo, error) {
	items := make([]*calendar.FreeBusyRequestItem, len(calendarIDs))
	for i, id := range calendarIDs {
		items[i] = &calendar.FreeBusyRequestItem{Id: id}
	}
	req := &calendar.FreeBusyRequest{
		TimeMin: timeMin.Format(time.RFC3339),
		TimeMax: timeMax.Format(time.RFC3339),
		Items:   items,
	}

	result, err := google.ExecuteValue(ctx, c.runner, "freebusy.query", func(ctx context.Context) (*calendar.FreeBusyResponse, error) {
		return c.svc.Freebusy.Query(req).Context(ctx).Do()
	})
	if err != nil {
		return nil, err
	}

	var infos []FreeBusyInfo
	for calID, cal := range result.Calendars {
		info := FreeBusyInfo{Calendar: calID}
		for _, busy := range cal.Busy {
			start, _ := time.Parse(time.RFC3339, busy.Start)
			end, _ := time.Parse(time.RFC3339, busy.End)
			info.Busy = append(info.Busy, TimeRange{Start: start, End: end})
		}
		for _, calErr := range cal.Errors {
			info.Errors = append(info.Errors, calErr.Reason)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func applyEventTimes(event *calendar.Event, input EventInput) {
	if input.AllDay {
		event.Start = &calendar.EventDateTime{Date: input.Start.Format("2006-01-02")}
		event.End = &calendar.EventDateTime{Date: input.End.Format("2006-01-02")}
		return
	}
	tz := input.TimeZone
	if tz == "" {
		tz = "UTC"
	}
	event.Start = &calendar.EventDateTime{DateTime: input.Start.Format(time.RFC3339), TimeZone: tz}
	event.End = &calendar.EventDateTime{DateTime: input.End.Format(time.RFC3339), TimeZone: tz}
}

func applyAttendees(event *calendar.Event, emails []string) {
	if len(emails) == 0 {
		return
	}
	attendees := make([]*calendar.EventAttendee, 0, len(emails))
	for _, email := range emails {
		attendees = append(attendees, &calendar.EventAttendee{Email: email})
	}
	event.Attendees = attendees
}

func applyGuestPermissions(event *calendar.Event, input EventInput) {
	event.GuestsCanModify = input.GuestsCanModify
	if input.GuestsCanInviteOthers {
		v := true
		event.GuestsCanInviteOthers = &v
	}
	if input.GuestsCanSeeOtherGuests {
		v := true
		event.GuestsCanSeeOtherGuests = &v
	}
}
