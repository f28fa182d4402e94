package calendar

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/hitoshi/calman/internal/metrics"
	"github.com/hitoshi/calman/internal/model"
)

// クエリパラメータの許容範囲
const (
	minDaysToShow = 1
	maxDaysToShow = 31
	minMaxResults = 1
	maxMaxResults = 250
)

// AggregationQuery は集約呼び出しのクエリパラメータ。
// ゼロ値のフィールドにはユーザー設定のデフォルトが適用される。
type AggregationQuery struct {
	Days            int
	MaxResults      int
	IncludeHolidays *bool // nilの場合は表示設定に従う
}

// SourceEnumeratorService はソース列挙のインターフェース。
// テスト時にモックに差し替え可能。
type SourceEnumeratorService interface {
	Enumerate(ctx context.Context, cred *model.CalendarCredential, prefs model.UserPreferences, includeHolidays bool, slot *RefreshSlot) ([]model.CalendarSource, error)
}

// EventFetcherService はソース単位のイベント取得のインターフェース。
// テスト時にモックに差し替え可能。
type EventFetcherService interface {
	Fetch(ctx context.Context, source model.CalendarSource, window TimeWindow, maxResults int, cred *model.CalendarCredential, slot *RefreshSlot) ([]SourcedEvent, error)
}

// Aggregator は複数のカレンダーソースからのイベント集約を統括する。
// 1回のAggregate呼び出しは自己完結しており、リクエスト間で状態を共有しない。
type Aggregator struct {
	enumerator SourceEnumeratorService
	fetcher    EventFetcherService
	normalizer *EventNormalizer
	logger     *slog.Logger
	metrics    metrics.MetricsCollector

	// now はテストで差し替え可能な現在時刻の供給源。
	now func() time.Time
}

// NewAggregator はAggregatorを生成する。
func NewAggregator(
	enumerator SourceEnumeratorService,
	fetcher EventFetcherService,
	normalizer *EventNormalizer,
	logger *slog.Logger,
	collector metrics.MetricsCollector,
) *Aggregator {
	return &Aggregator{
		enumerator: enumerator,
		fetcher:    fetcher,
		normalizer: normalizer,
		logger:     logger,
		metrics:    collector,
		now:        time.Now,
	}
}

// Aggregate は1回の集約を実行する。
//  1. 対象期間[now, now+days]を計算する。nowはここで1回だけ取得する。
//  2. SourceEnumeratorにソース一覧を問い合わせる。
//  3. 全ソースをフェッチする。プライマリは先行かつ致死、祝日とsecondaryは
//     並行かつ非致死で、1つのRefreshSlotを共有する。
//  4. 生イベントをマージし、開始時刻の昇順でソートし、maxResults件に切り詰める。
//  5. 正規化し、フィルタ適用前のrawSummaryを計算する。
//  6. フィルタパイプラインとマスキングパスを適用し、filteredSummaryを計算する。
//  7. AggregationResultに詰めて返す。
func (a *Aggregator) Aggregate(ctx context.Context, cred *model.CalendarCredential, prefs model.UserPreferences, query AggregationQuery) (*model.AggregationResult, error) {
	if cred == nil || !cred.Connected {
		return nil, model.NewCalendarNotConnectedError()
	}

	days, maxResults, includeHolidays, err := resolveQuery(prefs, query)
	if err != nil {
		a.recordOutcome("invalid")
		return nil, err
	}

	// include_holidaysの上書きはソース列挙とフィルタパイプラインの両方に効かせる。
	// 列挙だけに効かせると、取得した祝日イベントをhide_holidaysが全て落としてしまう。
	prefs.ShowHolidays = includeHolidays

	loc := loadLocation(prefs.Timezone)
	now := a.now().In(loc)
	window := TimeWindow{From: now, To: now.AddDate(0, 0, days)}

	// リフレッシュ単一飛行の置き場。この集約呼び出しの全フェッチで共有する。
	slot := &RefreshSlot{}

	sources, err := a.enumerator.Enumerate(ctx, cred, prefs, includeHolidays, slot)
	if err != nil {
		a.recordOutcome("auth_expired")
		return nil, err
	}

	merged, err := a.fetchAll(ctx, sources, window, maxResults, cred, slot)
	if err != nil {
		return nil, err
	}

	// マージ結果を実効開始時刻の昇順でソートし、全体上限に切り詰める
	sort.SliceStable(merged, func(i, j int) bool {
		return effectiveStart(merged[i].Raw, loc).Before(effectiveStart(merged[j].Raw, loc))
	})
	if len(merged) > maxResults {
		merged = merged[:maxResults]
	}

	normalized := make([]model.NormalizedEvent, 0, len(merged))
	for _, se := range merged {
		normalized = append(normalized, a.normalizer.Normalize(se, now, loc))
	}

	rawSummary := summarize(normalized)

	filtered, activeFilters := ApplyPreferenceFilters(normalized, prefs)
	filtered = RedactEvents(filtered, prefs)

	a.recordOutcome("success")
	a.logger.Info("カレンダー集約が完了しました",
		slog.String("user_id", cred.UserID),
		slog.Int("source_count", len(sources)),
		slog.Int("raw_events", rawSummary.Total),
		slog.Int("filtered_events", len(filtered)),
	)

	return &model.AggregationResult{
		Events:     filtered,
		RawSummary: rawSummary,
		FilteredSummary: model.FilterSummary{
			TotalBefore:   len(normalized),
			TotalAfter:    len(filtered),
			ActiveFilters: activeFilters,
		},
		TimeRange: model.TimeRange{
			From: window.From,
			To:   window.To,
			Days: days,
		},
		TimeFormat: prefs.TimeFormat,
		Timezone:   prefs.Timezone,
	}, nil
}

// fetchAll は全ソースのイベントを取得してマージする。
// プライマリソースを先にフェッチし、失敗は致死として扱う。
// 祝日とsecondaryソースは並行にフェッチし、個々の失敗は独立に隔離される。
// 1つの不良なsecondaryソースが他のソースやプライマリを妨げることはない。
func (a *Aggregator) fetchAll(ctx context.Context, sources []model.CalendarSource, window TimeWindow, maxResults int, cred *model.CalendarCredential, slot *RefreshSlot) ([]SourcedEvent, error) {
	var primary *model.CalendarSource
	var optional []model.CalendarSource
	for i, source := range sources {
		if source.Kind == model.SourceKindPrimary {
			primary = &sources[i]
		} else {
			optional = append(optional, source)
		}
	}
	if primary == nil {
		// SourceEnumeratorは常にプライマリを含める
		a.recordOutcome("primary_failed")
		return nil, model.NewPrimaryFetchFailedError()
	}

	// プライマリは致死。失敗したら集約全体を中断する。
	merged, err := a.fetcher.Fetch(ctx, *primary, window, maxResults, cred, slot)
	if err != nil {
		if model.IsAuthExpired(err) {
			a.recordOutcome("auth_expired")
			return nil, err
		}
		a.recordOutcome("primary_failed")
		a.logger.Error("プライマリカレンダーの取得に失敗しました",
			slog.String("user_id", cred.UserID),
			slog.String("source_id", primary.ID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewPrimaryFetchFailedError()
	}

	// 祝日とsecondaryは並行かつ非致死。失敗したソースはスキップする。
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, source := range optional {
		wg.Add(1)
		go func(src model.CalendarSource) {
			defer wg.Done()

			events, ferr := a.fetcher.Fetch(ctx, src, window, maxResults, cred, slot)
			if ferr != nil {
				a.logger.Warn("ソースの取得に失敗したためスキップします",
					slog.String("user_id", cred.UserID),
					slog.String("source_id", src.ID),
					slog.String("kind", string(src.Kind)),
					slog.String("error", ferr.Error()),
				)
				return
			}

			mu.Lock()
			merged = append(merged, events...)
			mu.Unlock()
		}(source)
	}

	wg.Wait()

	return merged, nil
}

// resolveQuery はクエリパラメータを検証し、未指定の値に表示設定のデフォルトを適用する。
// 外部API呼び出しの前に必ず実行される。
func resolveQuery(prefs model.UserPreferences, query AggregationQuery) (days, maxResults int, includeHolidays bool, err error) {
	days = query.Days
	if days == 0 {
		days = prefs.DaysToShow
		if days == 0 {
			days = 7
		}
	}
	if days < minDaysToShow || days > maxDaysToShow {
		return 0, 0, false, model.NewInvalidQueryError("days", "1から31の範囲で指定してください")
	}

	maxResults = query.MaxResults
	if maxResults == 0 {
		maxResults = prefs.MaxEvents
		if maxResults == 0 {
			maxResults = 50
		}
	}
	if maxResults < minMaxResults || maxResults > maxMaxResults {
		return 0, 0, false, model.NewInvalidQueryError("max_results", "1から250の範囲で指定してください")
	}

	includeHolidays = prefs.ShowHolidays
	if query.IncludeHolidays != nil {
		includeHolidays = *query.IncludeHolidays
	}

	return days, maxResults, includeHolidays, nil
}

// summarize はフィルタ適用前の正規化済みイベントの集計を計算する。
func summarize(events []model.NormalizedEvent) model.EventSummary {
	summary := model.EventSummary{Total: len(events)}
	for _, event := range events {
		if event.IsAllDay {
			summary.AllDay++
		}
		if event.IsHoliday {
			summary.Holidays++
		}
		switch {
		case event.IsPast:
			summary.Past++
		case event.IsOngoing:
			summary.Ongoing++
		case event.IsUpcoming:
			summary.Upcoming++
		}
	}
	return summary
}

// effectiveStart はソート用の実効開始時刻を返す。
func effectiveStart(raw RawEvent, loc *time.Location) time.Time {
	return parseEventTime(raw.Start, loc)
}

// loadLocation はIANAタイムゾーン名をロードする。不明な場合はUTCにフォールバックする。
func loadLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// recordOutcome は集約結果のメトリクスを記録する。
func (a *Aggregator) recordOutcome(outcome string) {
	if a.metrics != nil {
		a.metrics.RecordAggregation(outcome)
	}
}
