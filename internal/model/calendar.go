// Package model はドメインモデルを定義する。
package model

import "time"

// SourceKind はカレンダーソースの種別を表す。
type SourceKind string

const (
	// SourceKindPrimary はユーザーのプライマリカレンダー。
	SourceKindPrimary SourceKind = "primary"
	// SourceKindHoliday は国別の祝日カレンダー。
	SourceKindHoliday SourceKind = "holiday"
	// SourceKindSecondary はユーザーがアクセス可能なその他のカレンダー。
	SourceKindSecondary SourceKind = "secondary"
)

// CalendarCredential はGoogleカレンダー接続の資格情報を表す。
// 永続化はrepositoryが担い、集約処理中はメモリ上のコピーのみを書き換える。
type CalendarCredential struct {
	UserID       string
	AccessToken  string
	RefreshToken string    // 空の場合はリフレッシュ不可
	Expiry       time.Time // ゼロ値の場合は有効期限不明
	CalendarID   string    // プライマリカレンダーのID。空の場合は "primary"
	Connected    bool
	UpdatedAt    time.Time
}

// PrimaryCalendarID はプライマリカレンダーのIDを返す。
// 未設定の場合はGoogleのエイリアス "primary" を返す。
func (c *CalendarCredential) PrimaryCalendarID() string {
	if c.CalendarID == "" {
		return "primary"
	}
	return c.CalendarID
}

// CalendarSource は集約対象となる1つのカレンダーフィードを表す。
// 集約呼び出しごとに列挙し直し、永続化はしない。
type CalendarSource struct {
	ID          string
	Kind        SourceKind
	DisplayName string
	Color       string // カレンダーの背景色。未設定の場合は空
	AccessRole  string // secondaryの場合: owner, writer, reader
}

// イベントステータス（Googleカレンダーのstatusフィールドの値）
const (
	EventStatusConfirmed = "confirmed"
	EventStatusTentative = "tentative"
	EventStatusCancelled = "cancelled"
)

// 出欠ステータス（attendee.responseStatusの値）
const (
	AttendanceAccepted    = "accepted"
	AttendanceDeclined    = "declined"
	AttendanceTentative   = "tentative"
	AttendanceNeedsAction = "needsAction"
)

// NormalizedEvent はプロバイダー非依存の正規化済みイベントを表す。
// 時間分類フラグ（IsPast/IsOngoing/IsUpcoming）は集約開始時点のnowに対して
// 正規化時に1回だけ計算し、以降のパイプラインでは再評価しない。
type NormalizedEvent struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	IsAllDay    bool      `json:"is_all_day"`
	Status      string    `json:"status"`

	SourceKind  SourceKind `json:"source_kind"`
	SourceName  string     `json:"source_name"`
	SourceColor string     `json:"source_color,omitempty"`
	IsHoliday   bool       `json:"is_holiday"`

	IsPast     bool `json:"is_past"`
	IsOngoing  bool `json:"is_ongoing"`
	IsUpcoming bool `json:"is_upcoming"`

	AttendeeCount int    `json:"attendee_count"`
	Organizer     string `json:"organizer,omitempty"`
	ExternalLink  string `json:"external_link,omitempty"`

	// AttendanceStatus はリクエストユーザー自身の出欠ステータス。
	// 参加者リストに含まれない場合はnil。nilを「辞退」と解釈してはならない。
	AttendanceStatus *string `json:"attendance_status,omitempty"`
}

// EventSummary はフィルタ適用前の正規化済みイベントの集計を表す。
type EventSummary struct {
	Total    int `json:"total"`
	AllDay   int `json:"all_day"`
	Holidays int `json:"holidays"`
	Past     int `json:"past"`
	Ongoing  int `json:"ongoing"`
	Upcoming int `json:"upcoming"`
}

// FilterSummary はフィルタパイプラインの適用結果の集計を表す。
type FilterSummary struct {
	TotalBefore   int      `json:"total_before"`
	TotalAfter    int      `json:"total_after"`
	ActiveFilters []string `json:"active_filters"`
}

// TimeRange は集約の対象期間を表す。
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
	Days int       `json:"days"`
}

// AggregationResult は集約エンジンの唯一の出力。
// 1回の集約呼び出しの中で生成され、リクエスト間で共有されない。
type AggregationResult struct {
	Events          []NormalizedEvent `json:"events"`
	RawSummary      EventSummary      `json:"raw_summary"`
	FilteredSummary FilterSummary     `json:"filtered_summary"`
	TimeRange       TimeRange         `json:"time_range"`
	TimeFormat      string            `json:"time_format"`
	Timezone        string            `json:"timezone"`
}

// ConnectionStatus はカレンダー接続の状態を表す。
type ConnectionStatus struct {
	Connected      bool      `json:"connected"`
	NeedsReconnect bool      `json:"needs_reconnect"`
	CalendarID     string    `json:"calendar_id,omitempty"`
	ConnectedAt    time.Time `json:"connected_at,omitempty"`
}
