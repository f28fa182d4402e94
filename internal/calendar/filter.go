package calendar

import "github.com/hitoshi/calman/internal/model"

// eventPredicate は表示設定1つに対応する独立なフィルタ述語。
// enabledがtrueを返す設定のときのみ適用され、keepがfalseを返すイベントを除外する。
// 述語は互いに独立で純粋なため、適用順序は結果に影響しない。
type eventPredicate struct {
	name    string
	enabled func(prefs model.UserPreferences) bool
	keep    func(event model.NormalizedEvent) bool
}

// preferenceFilters は表示設定フィルタの順序付きリスト。
// 全てフラグ参照のみの安価な述語であり、宣言順に評価される。
// イベントは有効な全述語を通過した場合のみ残る（AND結合）。
var preferenceFilters = []eventPredicate{
	{
		name:    "hide_holidays",
		enabled: func(p model.UserPreferences) bool { return !p.ShowHolidays },
		keep:    func(e model.NormalizedEvent) bool { return !e.IsHoliday },
	},
	{
		name:    "hide_secondary_calendars",
		enabled: func(p model.UserPreferences) bool { return !p.ShowSecondaryCalendars },
		keep:    func(e model.NormalizedEvent) bool { return e.SourceKind != model.SourceKindSecondary },
	},
	{
		name:    "hide_all_day_events",
		enabled: func(p model.UserPreferences) bool { return !p.ShowAllDayEvents },
		keep:    func(e model.NormalizedEvent) bool { return !e.IsAllDay },
	},
	{
		name:    "hide_past_events",
		enabled: func(p model.UserPreferences) bool { return !p.ShowPastEvents },
		keep:    func(e model.NormalizedEvent) bool { return !e.IsPast },
	},
	{
		name:    "hide_ongoing_events",
		enabled: func(p model.UserPreferences) bool { return !p.ShowOngoingEvents },
		keep:    func(e model.NormalizedEvent) bool { return !e.IsOngoing },
	},
	{
		name:    "hide_upcoming_events",
		enabled: func(p model.UserPreferences) bool { return !p.ShowUpcomingEvents },
		keep:    func(e model.NormalizedEvent) bool { return !e.IsUpcoming },
	},
	{
		name:    "hide_declined",
		enabled: func(p model.UserPreferences) bool { return p.HideDeclined },
		keep: func(e model.NormalizedEvent) bool {
			// 出欠ステータス不明を「辞退」と解釈してはならない
			return e.AttendanceStatus == nil || *e.AttendanceStatus != model.AttendanceDeclined
		},
	},
	{
		name:    "hide_cancelled",
		enabled: func(p model.UserPreferences) bool { return p.HideCancelled },
		keep:    func(e model.NormalizedEvent) bool { return e.Status != model.EventStatusCancelled },
	},
}

// ApplyPreferenceFilters は表示設定に基づいてイベントをフィルタする。
// 有効だった述語の名前のリストも返す（FilterSummary用）。
// フィルタはイベントを除外するだけで追加も変更もしないため、
// 同じ設定での再適用は同じ結果を返す（冪等）。
func ApplyPreferenceFilters(events []model.NormalizedEvent, prefs model.UserPreferences) ([]model.NormalizedEvent, []string) {
	var active []eventPredicate
	var activeNames []string
	for _, p := range preferenceFilters {
		if p.enabled(prefs) {
			active = append(active, p)
			activeNames = append(activeNames, p.name)
		}
	}

	if len(active) == 0 {
		return events, nil
	}

	filtered := make([]model.NormalizedEvent, 0, len(events))
	for _, event := range events {
		if passesAll(event, active) {
			filtered = append(filtered, event)
		}
	}

	return filtered, activeNames
}

// passesAll はイベントが有効な全述語を通過するかを判定する。
func passesAll(event model.NormalizedEvent, predicates []eventPredicate) bool {
	for _, p := range predicates {
		if !p.keep(event) {
			return false
		}
	}
	return true
}

// RedactEvents は表示設定に基づいて残存イベントのフィールドをマスキングする。
// フィルタとは独立した第2パスであり、どのイベントが残るかを決して変更しない。
// 説明文・場所・参加者数の非表示設定に対応するフィールドを空にする。
func RedactEvents(events []model.NormalizedEvent, prefs model.UserPreferences) []model.NormalizedEvent {
	if prefs.ShowDescription && prefs.ShowLocation && prefs.ShowAttendeeCount {
		return events
	}

	redacted := make([]model.NormalizedEvent, len(events))
	copy(redacted, events)
	for i := range redacted {
		if !prefs.ShowDescription {
			redacted[i].Description = ""
		}
		if !prefs.ShowLocation {
			redacted[i].Location = ""
		}
		if !prefs.ShowAttendeeCount {
			redacted[i].AttendeeCount = 0
		}
	}

	return redacted
}
