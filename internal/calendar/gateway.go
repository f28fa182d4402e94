package calendar

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/calman/internal/metrics"
	"github.com/hitoshi/calman/internal/model"
)

// TokenRefresher はトークンリフレッシュ交換のインターフェース。
// GoogleClientの部分集合として定義する。
type TokenRefresher interface {
	RefreshAccessToken(ctx context.Context, refreshToken string) (string, time.Time, error)
}

// TokenPersister はリフレッシュ成功後のトークン書き戻しのインターフェース。
// repository.CredentialRepositoryの部分集合として定義する。
type TokenPersister interface {
	UpdateToken(ctx context.Context, userID, accessToken string, expiry time.Time) error
}

// RefreshSlot は1回の集約呼び出しにスコープされたリフレッシュ結果の置き場。
// 複数のソースフェッチが並行して失効トークンを検知しても、
// リフレッシュ交換が最大1回しか実行されないことを保証する。
// グローバル変数ではなく集約ごとに生成し、リクエスト間で共有してはならない。
type RefreshSlot struct {
	mu        sync.Mutex
	refreshed bool
	failed    bool
	token     string
}

// snapshot は現在のスロット状態を返す。
func (s *RefreshSlot) snapshot() (refreshed bool, failed bool, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshed, s.failed, s.token
}

// CredentialGateway はアクセストークンの有効性を保証しながら
// 外部API呼び出しを実行するゲートウェイ。
type CredentialGateway struct {
	refresher TokenRefresher
	store     TokenPersister
	logger    *slog.Logger
	metrics   metrics.MetricsCollector
}

// NewCredentialGateway はCredentialGatewayを生成する。
func NewCredentialGateway(
	refresher TokenRefresher,
	store TokenPersister,
	logger *slog.Logger,
	collector metrics.MetricsCollector,
) *CredentialGateway {
	return &CredentialGateway{
		refresher: refresher,
		store:     store,
		logger:    logger,
		metrics:   collector,
	}
}

// WithValidToken はcallを現在有効なアクセストークンで呼び出す。
// callがErrUnauthorizedを報告し、リフレッシュトークンが存在し、
// slotがまだリフレッシュ済みトークンを持たない場合は、ちょうど1回だけ
// リフレッシュ交換を行って資格情報ストアに書き戻し、新トークンで1回だけ再試行する。
// slotが既にリフレッシュ済みトークンを持つ場合（並行する別ソースの
// フェッチが先にリフレッシュした場合）は、再リフレッシュせずそのトークンを再利用する。
// 再試行後も失敗した場合、またはリフレッシュ自体が失敗した場合は
// AUTH_EXPIREDとして呼び出し元に伝播する。
func (g *CredentialGateway) WithValidToken(ctx context.Context, cred *model.CalendarCredential, slot *RefreshSlot, call func(accessToken string) error) error {
	token := cred.AccessToken

	// 並行する別フェッチが既にリフレッシュ済みならそのトークンから始める
	refreshed, failed, slotToken := slot.snapshot()
	if failed {
		return model.NewAuthExpiredError()
	}
	if refreshed {
		token = slotToken
	}

	err := call(token)
	if err == nil || !errors.Is(err, ErrUnauthorized) {
		return err
	}

	if cred.RefreshToken == "" {
		g.logger.Warn("アクセストークンが失効していますがリフレッシュトークンがありません",
			slog.String("user_id", cred.UserID),
		)
		return model.NewAuthExpiredError()
	}

	newToken, rerr := g.refreshOnce(ctx, cred, slot, token)
	if rerr != nil {
		return rerr
	}

	// 新しいトークンで1回だけ再試行する
	if err := call(newToken); err != nil {
		if errors.Is(err, ErrUnauthorized) {
			return model.NewAuthExpiredError()
		}
		return err
	}

	return nil
}

// refreshOnce はslotの単一飛行保証のもとでトークンリフレッシュを実行する。
// staleTokenは失効を検知した時点のトークン。ロック取得までの間に別フェッチが
// リフレッシュを済ませていた場合は、その結果を再利用する。
func (g *CredentialGateway) refreshOnce(ctx context.Context, cred *model.CalendarCredential, slot *RefreshSlot, staleToken string) (string, error) {
	slot.mu.Lock()
	defer slot.mu.Unlock()

	if slot.failed {
		return "", model.NewAuthExpiredError()
	}

	if slot.refreshed {
		if slot.token != staleToken {
			// 別フェッチがリフレッシュ済み。そのトークンを再利用する。
			return slot.token, nil
		}
		// リフレッシュ済みトークンでも401だった。再認可が必要。
		return "", model.NewAuthExpiredError()
	}

	accessToken, expiry, err := g.refresher.RefreshAccessToken(ctx, cred.RefreshToken)
	if err != nil {
		slot.failed = true
		if g.metrics != nil {
			g.metrics.RecordTokenRefresh(false)
		}
		g.logger.Error("トークンリフレッシュに失敗しました",
			slog.String("user_id", cred.UserID),
			slog.String("error", err.Error()),
		)
		return "", model.NewAuthExpiredError()
	}

	// 書き戻し失敗は集約を止めない。次回の集約が再度リフレッシュするだけで済む。
	if perr := g.store.UpdateToken(ctx, cred.UserID, accessToken, expiry); perr != nil {
		g.logger.Warn("リフレッシュ済みトークンの保存に失敗しました",
			slog.String("user_id", cred.UserID),
			slog.String("error", perr.Error()),
		)
	}

	slot.refreshed = true
	slot.token = accessToken
	if g.metrics != nil {
		g.metrics.RecordTokenRefresh(true)
	}

	g.logger.Info("アクセストークンをリフレッシュしました",
		slog.String("user_id", cred.UserID),
		slog.Time("expiry", expiry),
	)

	return accessToken, nil
}
