package calendar

import (
	"context"
	"log/slog"
	"strings"

	"github.com/hitoshi/calman/internal/model"
)

// maxSecondarySources はsecondaryカレンダーの取得上限。
// レイテンシとAPIクォータ消費を抑えるための設計定数であり、ユーザー設定では変更できない。
const maxSecondarySources = 5

// defaultHolidayCountry は未対応の国コードが指定された場合のフォールバック先。
const defaultHolidayCountry = "US"

// holidayCalendarIDs は国コード（ISO 3166-1 alpha-2）からGoogleの
// 祝日カレンダーIDへの静的対応表。
// 未知のコードはdefaultHolidayCountryのエントリにフォールバックし、
// この参照が失敗することはない。
var holidayCalendarIDs = map[string]string{
	"US": "en.usa#holiday@group.v.calendar.google.com",
	"JP": "ja.japanese#holiday@group.v.calendar.google.com",
	"GB": "en.uk#holiday@group.v.calendar.google.com",
	"DE": "de.german#holiday@group.v.calendar.google.com",
	"FR": "fr.french#holiday@group.v.calendar.google.com",
	"IT": "it.italian#holiday@group.v.calendar.google.com",
	"ES": "es.spain#holiday@group.v.calendar.google.com",
	"CA": "en.canadian#holiday@group.v.calendar.google.com",
	"AU": "en.australian#holiday@group.v.calendar.google.com",
	"KR": "ko.south_korea#holiday@group.v.calendar.google.com",
	"CN": "zh.china#holiday@group.v.calendar.google.com",
	"IN": "en.indian#holiday@group.v.calendar.google.com",
	"BR": "pt.brazilian#holiday@group.v.calendar.google.com",
	"MX": "es.mexican#holiday@group.v.calendar.google.com",
	"NL": "nl.dutch#holiday@group.v.calendar.google.com",
}

// HolidayCalendarID は国コードに対応する祝日カレンダーIDを返す。
// 未対応・未設定のコードはUSのエントリにフォールバックする。
func HolidayCalendarID(countryCode string) string {
	if id, ok := holidayCalendarIDs[strings.ToUpper(countryCode)]; ok {
		return id
	}
	return holidayCalendarIDs[defaultHolidayCountry]
}

// CalendarLister はカレンダー一覧取得のインターフェース。
// GoogleClientの部分集合として定義する。
type CalendarLister interface {
	ListCalendars(ctx context.Context, accessToken string) ([]CalendarListEntry, error)
}

// SourceEnumerator は1回の集約で照会するカレンダーソースを決定する。
type SourceEnumerator struct {
	client  CalendarLister
	gateway *CredentialGateway
	logger  *slog.Logger
}

// NewSourceEnumerator はSourceEnumeratorを生成する。
func NewSourceEnumerator(client CalendarLister, gateway *CredentialGateway, logger *slog.Logger) *SourceEnumerator {
	return &SourceEnumerator{
		client:  client,
		gateway: gateway,
		logger:  logger,
	}
}

// Enumerate は照会対象のソース一覧を返す。
//   - プライマリソースは常に含める。
//   - includeHolidaysの場合は祝日ソースを1件含める（国コードの解決は必ず成功する）。
//   - 表示設定でsecondaryカレンダーが有効な場合は、アクセス可能なカレンダーを列挙し、
//     プライマリと祝日カレンダーを除いてmaxSecondarySources件まで含める。
//
// secondaryの列挙失敗は非致死であり、プライマリと祝日のみで集約を継続する。
// ただし認可失効（AUTH_EXPIRED）は呼び出し元に伝播する。
func (e *SourceEnumerator) Enumerate(ctx context.Context, cred *model.CalendarCredential, prefs model.UserPreferences, includeHolidays bool, slot *RefreshSlot) ([]model.CalendarSource, error) {
	primaryID := cred.PrimaryCalendarID()

	sources := []model.CalendarSource{
		{
			ID:          primaryID,
			Kind:        model.SourceKindPrimary,
			DisplayName: "メインカレンダー",
		},
	}

	holidayID := ""
	if includeHolidays {
		holidayID = HolidayCalendarID(prefs.HolidayCountry)
		sources = append(sources, model.CalendarSource{
			ID:          holidayID,
			Kind:        model.SourceKindHoliday,
			DisplayName: "祝日",
		})
	}

	if !prefs.ShowSecondaryCalendars {
		return sources, nil
	}

	secondary, err := e.listSecondary(ctx, cred, slot, primaryID, holidayID)
	if err != nil {
		if model.IsAuthExpired(err) {
			return nil, err
		}
		// secondaryの列挙失敗でプライマリの可用性を落とさない
		e.logger.Warn("secondaryカレンダーの列挙に失敗したためスキップします",
			slog.String("user_id", cred.UserID),
			slog.String("error", err.Error()),
		)
		return sources, nil
	}

	return append(sources, secondary...), nil
}

// listSecondary はアクセス可能なsecondaryカレンダーを列挙する。
func (e *SourceEnumerator) listSecondary(ctx context.Context, cred *model.CalendarCredential, slot *RefreshSlot, primaryID, holidayID string) ([]model.CalendarSource, error) {
	var entries []CalendarListEntry

	err := e.gateway.WithValidToken(ctx, cred, slot, func(accessToken string) error {
		var cerr error
		entries, cerr = e.client.ListCalendars(ctx, accessToken)
		return cerr
	})
	if err != nil {
		return nil, err
	}

	var sources []model.CalendarSource
	for _, entry := range entries {
		if len(sources) >= maxSecondarySources {
			break
		}
		if entry.Deleted || entry.Primary {
			continue
		}
		if entry.ID == primaryID || entry.ID == holidayID {
			continue
		}
		if !isReadableRole(entry.AccessRole) {
			continue
		}

		name := entry.Summary
		if entry.SummaryOverride != "" {
			name = entry.SummaryOverride
		}

		sources = append(sources, model.CalendarSource{
			ID:          entry.ID,
			Kind:        model.SourceKindSecondary,
			DisplayName: name,
			Color:       entry.BackgroundColor,
			AccessRole:  entry.AccessRole,
		})
	}

	return sources, nil
}

// isReadableRole はイベント取得に十分なアクセス権かどうかを判定する。
func isReadableRole(role string) bool {
	switch role {
	case "owner", "writer", "reader":
		return true
	default:
		return false
	}
}
