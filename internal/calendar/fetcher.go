package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/calman/internal/metrics"
	"github.com/hitoshi/calman/internal/model"
)

// TimeWindow はイベント照会の閉区間[From, To]を表す。
type TimeWindow struct {
	From time.Time
	To   time.Time
}

// SourcedEvent は取得元ソースのタグ付きの生イベント。
type SourcedEvent struct {
	Raw    RawEvent
	Source model.CalendarSource
}

// EventLister はイベント一覧取得のインターフェース。
// GoogleClientの部分集合として定義する。
type EventLister interface {
	ListEvents(ctx context.Context, calendarID, accessToken string, timeMin, timeMax time.Time, maxResults int) ([]RawEvent, error)
}

// EventFetcher は1つのソースに対する時間窓付きのイベント照会を実行する。
// 各フェッチは自前のタイムアウトを持ち、失敗は自身の中に隔離される。
type EventFetcher struct {
	client  EventLister
	gateway *CredentialGateway
	timeout time.Duration
	logger  *slog.Logger
	metrics metrics.MetricsCollector
}

// NewEventFetcher はEventFetcherを生成する。
// timeoutが0以下の場合はデフォルト値8秒を使用する。
func NewEventFetcher(
	client EventLister,
	gateway *CredentialGateway,
	timeout time.Duration,
	logger *slog.Logger,
	collector metrics.MetricsCollector,
) *EventFetcher {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &EventFetcher{
		client:  client,
		gateway: gateway,
		timeout: timeout,
		logger:  logger,
		metrics: collector,
	}
}

// Fetch は1つのソースの指定期間のイベントを取得し、ソースのタグを付けて返す。
// 繰り返しイベントは展開済み・開始時刻昇順・maxResults件まで。
// トークンの有効性はCredentialGatewayが保証する（slotは集約全体で共有される）。
// 認可失効はAUTH_EXPIREDとして、その他の失敗はソース情報付きのエラーとして返す。
// 失敗の致死判定（プライマリは致死、それ以外は非致死）は呼び出し元のAggregatorが行う。
func (f *EventFetcher) Fetch(ctx context.Context, source model.CalendarSource, window TimeWindow, maxResults int, cred *model.CalendarCredential, slot *RefreshSlot) ([]SourcedEvent, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	start := time.Now()

	var raws []RawEvent
	err := f.gateway.WithValidToken(fetchCtx, cred, slot, func(accessToken string) error {
		var cerr error
		raws, cerr = f.client.ListEvents(fetchCtx, source.ID, accessToken, window.From, window.To, maxResults)
		return cerr
	})

	duration := time.Since(start)
	if f.metrics != nil {
		f.metrics.RecordSourceFetch(string(source.Kind), err == nil)
		f.metrics.RecordFetchLatency(string(source.Kind), duration)
	}

	if err != nil {
		if model.IsAuthExpired(err) {
			return nil, err
		}
		return nil, fmt.Errorf("ソース %s のイベント取得に失敗しました: %w", source.ID, err)
	}

	f.logger.Debug("ソースのイベントを取得しました",
		slog.String("source_id", source.ID),
		slog.String("kind", string(source.Kind)),
		slog.Int("event_count", len(raws)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	events := make([]SourcedEvent, 0, len(raws))
	for _, raw := range raws {
		events = append(events, SourcedEvent{Raw: raw, Source: source})
	}

	return events, nil
}
