// Package model はドメインモデルを定義する。
package model

// 時刻表示フォーマット
const (
	TimeFormat12h = "12h"
	TimeFormat24h = "24h"
)

// UserPreferences はユーザーごとの表示設定を表す。
// 集約エンジンへの読み取り専用の入力であり、永続化はrepositoryが担う。
type UserPreferences struct {
	UserID string `json:"-"`

	// イベント種別の表示トグル
	ShowHolidays           bool `json:"show_holidays"`
	ShowSecondaryCalendars bool `json:"show_secondary_calendars"`
	ShowAllDayEvents       bool `json:"show_all_day_events"`
	ShowPastEvents         bool `json:"show_past_events"`
	ShowOngoingEvents      bool `json:"show_ongoing_events"`
	ShowUpcomingEvents     bool `json:"show_upcoming_events"`
	HideDeclined           bool `json:"hide_declined"`
	HideCancelled          bool `json:"hide_cancelled"`

	// フィールド表示トグル（フィルタではなくマスキング）
	ShowDescription   bool `json:"show_description"`
	ShowLocation      bool `json:"show_location"`
	ShowAttendeeCount bool `json:"show_attendee_count"`

	// 表示フォーマット
	TimeFormat string `json:"time_format"` // "12h" または "24h"
	Timezone   string `json:"timezone"`    // IANAタイムゾーン名

	// 集約パラメータのデフォルト
	HolidayCountry string `json:"holiday_country"` // ISO 3166-1 alpha-2
	DaysToShow     int    `json:"days_to_show"`
	MaxEvents      int    `json:"max_events"`
}

// DefaultPreferences は表示設定のデフォルト値を返す。
// 設定レコードが未作成のユーザーにはこの値を適用する。
func DefaultPreferences(userID string) UserPreferences {
	return UserPreferences{
		UserID:                 userID,
		ShowHolidays:           true,
		ShowSecondaryCalendars: true,
		ShowAllDayEvents:       true,
		ShowPastEvents:         false,
		ShowOngoingEvents:      true,
		ShowUpcomingEvents:     true,
		HideDeclined:           false,
		HideCancelled:          true,
		ShowDescription:        true,
		ShowLocation:           true,
		ShowAttendeeCount:      true,
		TimeFormat:             TimeFormat24h,
		Timezone:               "UTC",
		HolidayCountry:         "US",
		DaysToShow:             7,
		MaxEvents:              50,
	}
}
