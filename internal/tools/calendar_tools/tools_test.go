package calendar_tools

import (
	"testing"
	"time"

	"github.com/driftware/workspace-mcp/internal/calendar"
)

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parse time %q: %v", s, err)
	}
	return ts
}

func TestFindFreeSlots(t *testing.T) {
	timeMin := "2026-01-05T09:00:00Z"
	timeMax := "2026-01-05T17:00:00Z"

	tests := []struct {
		name     string
		busy     [][]string // pairs of start/end per calendar
		duration time.Duration
		want     [][2]string
	}{
		{
			name:     "fully free range yields one slot",
			busy:     nil,
			duration: 30 * time.Minute,
			want:     [][2]string{{timeMin, timeMax}},
		},
		{
			name:     "single busy block splits range",
			busy:     [][]string{{"2026-01-05T12:00:00Z", "2026-01-05T13:00:00Z"}},
			duration: time.Hour,
			want: [][2]string{
				{timeMin, "2026-01-05T12:00:00Z"},
				{"2026-01-05T13:00:00Z", timeMax},
			},
		},
		{
			name: "overlapping busy blocks are merged",
			busy: [][]string{
				{"2026-01-05T10:00:00Z", "2026-01-05T12:00:00Z"},
				{"2026-01-05T11:00:00Z", "2026-01-05T13:00:00Z"},
			},
			duration: time.Hour,
			want: [][2]string{
				{timeMin, "2026-01-05T10:00:00Z"},
				{"2026-01-05T13:00:00Z", timeMax},
			},
		},
		{
			name: "gap shorter than duration is skipped",
			busy: [][]string{
				{"2026-01-05T09:30:00Z", "2026-01-05T12:00:00Z"},
				{"2026-01-05T12:15:00Z", "2026-01-05T16:45:00Z"},
			},
			duration: time.Hour,
			want:     nil,
		},
		{
			name:     "fully busy range yields nothing",
			busy:     [][]string{{timeMin, timeMax}},
			duration: 15 * time.Minute,
			want:     nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var infos []calendar.FreeBusyInfo
			for _, b := range tt.busy {
				infos = append(infos, calendar.FreeBusyInfo{
					Calendar: "cal",
					Busy: []calendar.TimeRange{{
						Start: mustTime(t, b[0]),
						End:   mustTime(t, b[1]),
					}},
				})
			}

			slots := findFreeSlots(infos, mustTime(t, timeMin), mustTime(t, timeMax), tt.duration, 10)

			if len(slots) != len(tt.want) {
				t.Fatalf("got %d slots, want %d: %v", len(slots), len(tt.want), slots)
			}
			for i, want := range tt.want {
				if !slots[i].Start.Equal(mustTime(t, want[0])) || !slots[i].End.Equal(mustTime(t, want[1])) {
					t.Errorf("slot %d = %s - %s, want %s - %s", i,
						slots[i].Start.Format(time.RFC3339), slots[i].End.Format(time.RFC3339),
						want[0], want[1])
				}
			}
		})
	}
}

func TestFindFreeSlotsMaxResults(t *testing.T) {
	timeMin := mustTime(t, "2026-01-05T09:00:00Z")
	timeMax := mustTime(t, "2026-01-05T17:00:00Z")

	infos := []calendar.FreeBusyInfo{{
		Calendar: "cal",
		Busy: []calendar.TimeRange{
			{Start: mustTime(t, "2026-01-05T10:00:00Z"), End: mustTime(t, "2026-01-05T10:30:00Z")},
			{Start: mustTime(t, "2026-01-05T12:00:00Z"), End: mustTime(t, "2026-01-05T12:30:00Z")},
			{Start: mustTime(t, "2026-01-05T14:00:00Z"), End: mustTime(t, "2026-01-05T14:30:00Z")},
		},
	}}

	slots := findFreeSlots(infos, timeMin, timeMax, 30*time.Minute, 2)
	if len(slots) != 2 {
		t.Errorf("got %d slots, want 2", len(slots))
	}
}

func TestParseTimeRange(t *testing.T) {
	tests := []struct {
		name    string
		args    map[string]interface{}
		wantErr bool
	}{
		{
			name: "valid range",
			args: map[string]interface{}{
				"timeMin": "2026-01-01T00:00:00Z",
				"timeMax": "2026-01-02T00:00:00Z",
			},
		},
		{
			name:    "missing timeMin",
			args:    map[string]interface{}{"timeMax": "2026-01-02T00:00:00Z"},
			wantErr: true,
		},
		{
			name: "missing timeMax",
			args: map[string]interface{}{
				"timeMin": "2026-01-01T00:00:00Z",
			},
			wantErr: true,
		},
		{
			name: "invalid format",
			args: map[string]interface{}{
				"timeMin": "January 1st",
				"timeMax": "2026-01-02T00:00:00Z",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, errResult := parseTimeRange(tt.args)
			if (errResult != nil) != tt.wantErr {
				t.Errorf("parseTimeRange() error result = %v, wantErr %v", errResult, tt.wantErr)
			}
		})
	}
}

func TestSplitAndTrim(t *testing.T) {
	got := splitAndTrim("a@example.com, b@example.com ,c@example.com")
	want := []string{"a@example.com", "b@example.com", "c@example.com"}
	if len(got) != len(want) {
		t.Fatalf("got %d parts, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("part %d = %q, want %q", i, got[i], want[i])
		}
	}
}
