package calendar

import (
	"time"

	"github.com/hitoshi/calman/internal/model"
	"github.com/hitoshi/calman/internal/security"
)

// allDayDateFormat は終日イベントの日付形式。
const allDayDateFormat = "2006-01-02"

// EventNormalizer はプロバイダー固有のイベントレコードを共通モデルに変換する。
type EventNormalizer struct {
	sanitizer security.EventSanitizerService
}

// NewEventNormalizer はEventNormalizerを生成する。
func NewEventNormalizer(sanitizer security.EventSanitizerService) *EventNormalizer {
	return &EventNormalizer{sanitizer: sanitizer}
}

// Normalize は1件の生イベントを正規化する。
//   - 終日判定: 開始が日付のみ（時刻成分なし）のイベントは終日イベント。
//   - 時間分類はnowに対して1回だけ計算する: end <= now は過去、
//     start <= now < end は進行中、start > now は未来。
//     end <= start の壊れたイベントは安全側に倒して過去として扱う
//     （進行中と未来の両方に分類されることは決してない）。
//   - 出欠ステータスはself参加者のresponseStatus。参加者に含まれない場合はnil。
//   - 祝日フラグとソースの名前・色は取得元CalendarSourceから引き継ぎ、
//     イベント内容からは導出しない。
//
// nowは集約開始時点で1回だけ取得した時刻であり、パイプライン内で再評価しない。
func (n *EventNormalizer) Normalize(se SourcedEvent, now time.Time, loc *time.Location) model.NormalizedEvent {
	raw := se.Raw
	source := se.Source

	isAllDay := raw.Start.Date != ""
	start := parseEventTime(raw.Start, loc)
	end := parseEventTime(raw.End, loc)

	event := model.NormalizedEvent{
		ID:           raw.ID,
		Title:        n.sanitizer.SanitizeText(raw.Summary),
		Description:  n.sanitizer.SanitizeDescription(raw.Description),
		Location:     n.sanitizer.SanitizeText(raw.Location),
		Start:        start,
		End:          end,
		IsAllDay:     isAllDay,
		Status:       raw.Status,
		SourceKind:   source.Kind,
		SourceName:   source.DisplayName,
		SourceColor:  source.Color,
		IsHoliday:    source.Kind == model.SourceKindHoliday,
		ExternalLink: raw.HTMLLink,
	}

	if raw.Organizer != nil {
		event.Organizer = raw.Organizer.DisplayName
		if event.Organizer == "" {
			event.Organizer = raw.Organizer.Email
		}
	}

	event.AttendeeCount = len(raw.Attendees)
	for _, attendee := range raw.Attendees {
		if attendee.Self {
			status := attendee.ResponseStatus
			event.AttendanceStatus = &status
			break
		}
	}

	classifyTemporal(&event, now)

	return event
}

// classifyTemporal は時間分類フラグを設定する。
// 3つのフラグのうちちょうど1つだけがtrueになることを保証する。
func classifyTemporal(event *model.NormalizedEvent, now time.Time) {
	switch {
	case !event.End.After(event.Start):
		// 長さゼロまたは壊れたイベントは即座に過去扱い
		event.IsPast = true
	case !event.End.After(now):
		event.IsPast = true
	case !event.Start.After(now):
		event.IsOngoing = true
	default:
		event.IsUpcoming = true
	}
}

// parseEventTime はGoogleカレンダーの日時表現をtime.Timeに変換する。
// 終日イベントの日付はlocのタイムゾーンの0時として解釈する。
// パースできない場合はゼロ値を返す。
func parseEventTime(dt EventDateTime, loc *time.Location) time.Time {
	if dt.DateTime != "" {
		t, err := time.Parse(time.RFC3339, dt.DateTime)
		if err != nil {
			return time.Time{}
		}
		return t.In(loc)
	}
	if dt.Date != "" {
		t, err := time.ParseInLocation(allDayDateFormat, dt.Date, loc)
		if err != nil {
			return time.Time{}
		}
		return t
	}
	return time.Time{}
}
