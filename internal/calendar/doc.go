// Package calendar provides a client for interacting with the Google Calendar API.
//
// This package offers functionality for managing calendars and calendar events,
// including creating, reading, updating, and deleting events, as well as
// querying free/busy availability across calendars.
//
// Every API call is routed through a shared runner so retry, timeout and
// rate-limit behavior is identical to the other Workspace service clients.
//
// Example usage:
//
//	ctx := context.Background()
//	client, err := calendar.NewClient(ctx, provider, runner)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// List upcoming events
//	events, err := client.ListEvents(ctx, "primary", time.Now(), time.Now().AddDate(0, 0, 7), "")
//	if err != nil {
//	    log.Fatal(err)
//	}
package calendar
