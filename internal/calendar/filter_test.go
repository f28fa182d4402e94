package calendar

import (
	"reflect"
	"testing"

	"github.com/hitoshi/calman/internal/model"
)

// allVisiblePrefs は全イベントが残る表示設定を返す。
func allVisiblePrefs() model.UserPreferences {
	prefs := model.DefaultPreferences("user-1")
	prefs.ShowPastEvents = true
	prefs.HideCancelled = false
	return prefs
}

func sampleEvents() []model.NormalizedEvent {
	declined := model.AttendanceDeclined
	accepted := model.AttendanceAccepted
	return []model.NormalizedEvent{
		{ID: "past", SourceKind: model.SourceKindPrimary, Status: model.EventStatusConfirmed, IsPast: true},
		{ID: "ongoing", SourceKind: model.SourceKindPrimary, Status: model.EventStatusConfirmed, IsOngoing: true},
		{ID: "upcoming", SourceKind: model.SourceKindPrimary, Status: model.EventStatusConfirmed, IsUpcoming: true},
		{ID: "holiday", SourceKind: model.SourceKindHoliday, IsHoliday: true, Status: model.EventStatusConfirmed, IsUpcoming: true, IsAllDay: true},
		{ID: "secondary", SourceKind: model.SourceKindSecondary, Status: model.EventStatusConfirmed, IsUpcoming: true},
		{ID: "declined", SourceKind: model.SourceKindPrimary, Status: model.EventStatusConfirmed, IsUpcoming: true, AttendanceStatus: &declined},
		{ID: "accepted", SourceKind: model.SourceKindPrimary, Status: model.EventStatusConfirmed, IsUpcoming: true, AttendanceStatus: &accepted},
		{ID: "cancelled", SourceKind: model.SourceKindPrimary, Status: model.EventStatusCancelled, IsUpcoming: true},
	}
}

func eventIDs(events []model.NormalizedEvent) []string {
	ids := make([]string, 0, len(events))
	for _, e := range events {
		ids = append(ids, e.ID)
	}
	return ids
}

func TestApplyPreferenceFilters_NoActiveFiltersKeepsAll(t *testing.T) {
	events := sampleEvents()

	filtered, active := ApplyPreferenceFilters(events, allVisiblePrefs())

	if len(filtered) != len(events) {
		t.Errorf("len(filtered) = %d, want %d", len(filtered), len(events))
	}
	if len(active) != 0 {
		t.Errorf("active filters = %v, want none", active)
	}
}

func TestApplyPreferenceFilters_HidePastEvents(t *testing.T) {
	prefs := allVisiblePrefs()
	prefs.ShowPastEvents = false

	filtered, active := ApplyPreferenceFilters(sampleEvents(), prefs)

	for _, e := range filtered {
		if e.IsPast {
			t.Errorf("past event %q survived hide_past_events", e.ID)
		}
	}
	if !reflect.DeepEqual(active, []string{"hide_past_events"}) {
		t.Errorf("active = %v, want [hide_past_events]", active)
	}
}

// 出欠ステータスがnil（参加者に含まれない）のイベントは
// hide_declinedでも除外されないこと。
func TestApplyPreferenceFilters_HideDeclinedKeepsNilStatus(t *testing.T) {
	prefs := allVisiblePrefs()
	prefs.HideDeclined = true

	filtered, _ := ApplyPreferenceFilters(sampleEvents(), prefs)

	ids := eventIDs(filtered)
	for _, id := range ids {
		if id == "declined" {
			t.Error("declined event survived hide_declined")
		}
	}
	// AttendanceStatusがnilのイベントは残る
	found := false
	for _, id := range ids {
		if id == "upcoming" {
			found = true
		}
	}
	if !found {
		t.Error("event with nil attendance status was filtered out")
	}
}

func TestApplyPreferenceFilters_CombinedFiltersAreANDed(t *testing.T) {
	prefs := allVisiblePrefs()
	prefs.ShowHolidays = false
	prefs.ShowSecondaryCalendars = false
	prefs.HideCancelled = true

	filtered, active := ApplyPreferenceFilters(sampleEvents(), prefs)

	want := []string{"past", "ongoing", "upcoming", "declined", "accepted"}
	if !reflect.DeepEqual(eventIDs(filtered), want) {
		t.Errorf("filtered = %v, want %v", eventIDs(filtered), want)
	}
	if len(active) != 3 {
		t.Errorf("active = %v, want 3 entries", active)
	}
}

// フィルタは除外のみを行うため、同じ設定での再適用は結果を変えないこと（冪等）。
func TestApplyPreferenceFilters_Idempotent(t *testing.T) {
	prefs := allVisiblePrefs()
	prefs.ShowPastEvents = false
	prefs.ShowHolidays = false

	once, _ := ApplyPreferenceFilters(sampleEvents(), prefs)
	twice, _ := ApplyPreferenceFilters(once, prefs)

	if !reflect.DeepEqual(eventIDs(once), eventIDs(twice)) {
		t.Errorf("second application changed result: %v != %v", eventIDs(once), eventIDs(twice))
	}
}

func TestRedactEvents_MasksFieldsWithoutChangingSurvivorship(t *testing.T) {
	events := []model.NormalizedEvent{
		{ID: "ev-1", Description: "議題メモ", Location: "会議室A", AttendeeCount: 4},
		{ID: "ev-2", Description: "詳細", Location: "オンライン", AttendeeCount: 2},
	}

	prefs := allVisiblePrefs()
	prefs.ShowDescription = false
	prefs.ShowAttendeeCount = false

	redacted := RedactEvents(events, prefs)

	if len(redacted) != len(events) {
		t.Fatalf("len(redacted) = %d, want %d", len(redacted), len(events))
	}
	for _, e := range redacted {
		if e.Description != "" {
			t.Errorf("event %q: Description = %q, want empty", e.ID, e.Description)
		}
		if e.AttendeeCount != 0 {
			t.Errorf("event %q: AttendeeCount = %d, want 0", e.ID, e.AttendeeCount)
		}
		if e.Location == "" {
			t.Errorf("event %q: Location was masked but show_location is enabled", e.ID)
		}
	}

	// 元のスライスは変更されない
	if events[0].Description != "議題メモ" {
		t.Error("RedactEvents mutated the input slice")
	}
}

func TestRedactEvents_NoOpWhenAllFieldsVisible(t *testing.T) {
	events := []model.NormalizedEvent{
		{ID: "ev-1", Description: "議題メモ", Location: "会議室A", AttendeeCount: 4},
	}

	redacted := RedactEvents(events, allVisiblePrefs())
	if !reflect.DeepEqual(redacted, events) {
		t.Errorf("redacted = %+v, want unchanged", redacted)
	}
}
