package google

import (
	calendar "google.golang.org/api/calendar/v3"
	docs "google.golang.org/api/docs/v1"
	drive "google.golang.org/api/drive/v3"
	sheets "google.golang.org/api/sheets/v4"
)

// Service names, used for logging, metrics labels and error attribution.
const (
	ServiceSheets   = "sheets"
	ServiceDrive    = "drive"
	ServiceCalendar = "calendar"
	ServiceDocs     = "docs"
)

// DefaultScopes covers every tool the server exposes.
var DefaultScopes = []string{
	"openid",
	"https://www.googleapis.com/auth/userinfo.email",
	sheets.SpreadsheetsScope,
	drive.DriveScope,
	calendar.CalendarScope,
	docs.DocumentsScope,
}

// ReadOnlyScopes is the reduced set requested in read-only mode, so the
// granted consent matches what the server can actually do.
var ReadOnlyScopes = []string{
	"openid",
	"https://www.googleapis.com/auth/userinfo.email",
	sheets.SpreadsheetsReadonlyScope,
	drive.DriveReadonlyScope,
	calendar.CalendarReadonlyScope,
	docs.DocumentsReadonlyScope,
}

// ScopesFor returns the scope set for the given mode.
func ScopesFor(readOnly bool) []string {
	if readOnly {
		return ReadOnlyScopes
	}
	return DefaultScopes
}
