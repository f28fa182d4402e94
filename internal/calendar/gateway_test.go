package calendar

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hitoshi/calman/internal/model"
)

// mockRefresher はトークンリフレッシュのモック。
type mockRefresher struct {
	calls    int32
	newToken string
	err      error
}

func (m *mockRefresher) RefreshAccessToken(ctx context.Context, refreshToken string) (string, time.Time, error) {
	atomic.AddInt32(&m.calls, 1)
	if m.err != nil {
		return "", time.Time{}, m.err
	}
	return m.newToken, time.Now().Add(1 * time.Hour), nil
}

// mockPersister はトークン書き戻しのモック。
type mockPersister struct {
	mu      sync.Mutex
	calls   int
	lastTok string
	err     error
}

func (m *mockPersister) UpdateToken(ctx context.Context, userID, accessToken string, expiry time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.lastTok = accessToken
	return m.err
}

func testCredential() *model.CalendarCredential {
	return &model.CalendarCredential{
		UserID:       "user-1",
		AccessToken:  "stale-token",
		RefreshToken: "refresh-token",
		Connected:    true,
	}
}

func TestWithValidToken_SuccessWithoutRefresh(t *testing.T) {
	refresher := &mockRefresher{newToken: "fresh-token"}
	persister := &mockPersister{}
	gw := NewCredentialGateway(refresher, persister, nopLogger(), nil)

	var usedToken string
	err := gw.WithValidToken(context.Background(), testCredential(), &RefreshSlot{}, func(token string) error {
		usedToken = token
		return nil
	})

	if err != nil {
		t.Fatalf("WithValidToken() error = %v", err)
	}
	if usedToken != "stale-token" {
		t.Errorf("used token = %q, want %q", usedToken, "stale-token")
	}
	if atomic.LoadInt32(&refresher.calls) != 0 {
		t.Errorf("refresh calls = %d, want 0", refresher.calls)
	}
}

func TestWithValidToken_RefreshesOnceAndRetries(t *testing.T) {
	refresher := &mockRefresher{newToken: "fresh-token"}
	persister := &mockPersister{}
	metrics := &recordingMetrics{}
	gw := NewCredentialGateway(refresher, persister, nopLogger(), metrics)

	var usedTokens []string
	err := gw.WithValidToken(context.Background(), testCredential(), &RefreshSlot{}, func(token string) error {
		usedTokens = append(usedTokens, token)
		if token == "stale-token" {
			return ErrUnauthorized
		}
		return nil
	})

	if err != nil {
		t.Fatalf("WithValidToken() error = %v", err)
	}
	if len(usedTokens) != 2 || usedTokens[1] != "fresh-token" {
		t.Errorf("used tokens = %v, want [stale-token fresh-token]", usedTokens)
	}
	if atomic.LoadInt32(&refresher.calls) != 1 {
		t.Errorf("refresh calls = %d, want 1", refresher.calls)
	}
	if persister.calls != 1 || persister.lastTok != "fresh-token" {
		t.Errorf("persist calls = %d (last %q), want 1 (fresh-token)", persister.calls, persister.lastTok)
	}
	if metrics.refreshCount() != 1 {
		t.Errorf("refresh metric count = %d, want 1", metrics.refreshCount())
	}
}

// 並行する複数のフェッチが同時に失効を検知しても、
// リフレッシュ交換はちょうど1回だけ実行されること。
func TestWithValidToken_SingleFlightAcrossConcurrentFetches(t *testing.T) {
	refresher := &mockRefresher{newToken: "fresh-token"}
	persister := &mockPersister{}
	gw := NewCredentialGateway(refresher, persister, nopLogger(), nil)

	cred := testCredential()
	slot := &RefreshSlot{}

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			errs[n] = gw.WithValidToken(context.Background(), cred, slot, func(token string) error {
				if token == "stale-token" {
					return ErrUnauthorized
				}
				return nil
			})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("worker %d: error = %v", i, err)
		}
	}
	if got := atomic.LoadInt32(&refresher.calls); got != 1 {
		t.Errorf("refresh calls = %d, want 1", got)
	}
}

func TestWithValidToken_RefreshFailureIsAuthExpired(t *testing.T) {
	refresher := &mockRefresher{err: errors.New("invalid_grant")}
	persister := &mockPersister{}
	gw := NewCredentialGateway(refresher, persister, nopLogger(), nil)

	cred := testCredential()
	slot := &RefreshSlot{}

	err := gw.WithValidToken(context.Background(), cred, slot, func(token string) error {
		return ErrUnauthorized
	})
	if !model.IsAuthExpired(err) {
		t.Fatalf("error = %v, want AUTH_EXPIRED", err)
	}

	// 同じslotでの後続呼び出しはリフレッシュを再試行しない
	err = gw.WithValidToken(context.Background(), cred, slot, func(token string) error {
		t.Error("call should not run after refresh failure")
		return nil
	})
	if !model.IsAuthExpired(err) {
		t.Fatalf("second error = %v, want AUTH_EXPIRED", err)
	}
	if got := atomic.LoadInt32(&refresher.calls); got != 1 {
		t.Errorf("refresh calls = %d, want 1", got)
	}
}

func TestWithValidToken_NoRefreshTokenIsAuthExpired(t *testing.T) {
	refresher := &mockRefresher{newToken: "fresh-token"}
	gw := NewCredentialGateway(refresher, &mockPersister{}, nopLogger(), nil)

	cred := testCredential()
	cred.RefreshToken = ""

	err := gw.WithValidToken(context.Background(), cred, &RefreshSlot{}, func(token string) error {
		return ErrUnauthorized
	})
	if !model.IsAuthExpired(err) {
		t.Fatalf("error = %v, want AUTH_EXPIRED", err)
	}
	if atomic.LoadInt32(&refresher.calls) != 0 {
		t.Errorf("refresh calls = %d, want 0", refresher.calls)
	}
}

func TestWithValidToken_RetryStillUnauthorizedIsAuthExpired(t *testing.T) {
	refresher := &mockRefresher{newToken: "fresh-token"}
	gw := NewCredentialGateway(refresher, &mockPersister{}, nopLogger(), nil)

	err := gw.WithValidToken(context.Background(), testCredential(), &RefreshSlot{}, func(token string) error {
		return ErrUnauthorized
	})
	if !model.IsAuthExpired(err) {
		t.Fatalf("error = %v, want AUTH_EXPIRED", err)
	}
}

func TestWithValidToken_PersistFailureDoesNotAbort(t *testing.T) {
	refresher := &mockRefresher{newToken: "fresh-token"}
	persister := &mockPersister{err: errors.New("db down")}
	gw := NewCredentialGateway(refresher, persister, nopLogger(), nil)

	err := gw.WithValidToken(context.Background(), testCredential(), &RefreshSlot{}, func(token string) error {
		if token == "stale-token" {
			return ErrUnauthorized
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithValidToken() error = %v, want nil", err)
	}
}

func TestWithValidToken_NonAuthErrorPassesThrough(t *testing.T) {
	refresher := &mockRefresher{newToken: "fresh-token"}
	gw := NewCredentialGateway(refresher, &mockPersister{}, nopLogger(), nil)

	wantErr := fmt.Errorf("network timeout")
	err := gw.WithValidToken(context.Background(), testCredential(), &RefreshSlot{}, func(token string) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("error = %v, want %v", err, wantErr)
	}
	if atomic.LoadInt32(&refresher.calls) != 0 {
		t.Errorf("refresh calls = %d, want 0", refresher.calls)
	}
}
