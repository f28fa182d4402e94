package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/hitoshi/calman/internal/model"
	"github.com/hitoshi/calman/internal/repository"
)

// カレンダー読み取り専用スコープ
const calendarScope = "https://www.googleapis.com/auth/calendar.readonly"

// TokenExchanger は認可コードをトークンに交換するインターフェース。
type TokenExchanger interface {
	ExchangeAuthCode(ctx context.Context, code, redirectURI string) (*TokenResponse, error)
}

// ConnectionService はGoogleカレンダー接続のライフサイクルを管理する。
// ログイン用OAuthとは独立した同意フローで、カレンダー読み取り権限と
// リフレッシュトークンを取得する。
type ConnectionService struct {
	exchanger   TokenExchanger
	credRepo    repository.CredentialRepository
	logger      *slog.Logger
	clientID    string
	authURL     string // テスト時に上書き可能
	redirectURL string
}

// NewConnectionService はConnectionServiceを生成する。
func NewConnectionService(
	exchanger TokenExchanger,
	credRepo repository.CredentialRepository,
	logger *slog.Logger,
	clientID string,
	redirectURL string,
) *ConnectionService {
	return &ConnectionService{
		exchanger:   exchanger,
		credRepo:    credRepo,
		logger:      logger,
		clientID:    clientID,
		authURL:     "https://accounts.google.com/o/oauth2/v2/auth",
		redirectURL: redirectURL,
	}
}

// ConsentURL はカレンダー接続の同意画面URLを生成する。
// access_type=offlineとprompt=consentを指定してリフレッシュトークンの
// 発行を確実にする。
func (s *ConnectionService) ConsentURL(state string) string {
	params := url.Values{}
	params.Set("client_id", s.clientID)
	params.Set("redirect_uri", s.redirectURL)
	params.Set("response_type", "code")
	params.Set("scope", calendarScope)
	params.Set("access_type", "offline")
	params.Set("prompt", "consent")
	params.Set("state", state)

	return s.authURL + "?" + params.Encode()
}

// CompleteConnect は同意コールバックで受け取った認可コードをトークンに交換し、
// 資格情報を保存してカレンダー接続を完了する。
func (s *ConnectionService) CompleteConnect(ctx context.Context, userID, code string) error {
	token, err := s.exchanger.ExchangeAuthCode(ctx, code, s.redirectURL)
	if err != nil {
		return fmt.Errorf("認可コードの交換に失敗しました: %w", err)
	}

	var expiry time.Time
	if token.ExpiresIn > 0 {
		expiry = time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)
	}

	cred := &model.CalendarCredential{
		UserID:       userID,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       expiry,
		Connected:    true,
		UpdatedAt:    time.Now(),
	}
	if err := s.credRepo.Upsert(ctx, cred); err != nil {
		return fmt.Errorf("資格情報の保存に失敗しました: %w", err)
	}

	s.logger.Info("カレンダーを接続しました",
		slog.String("user_id", userID),
		slog.Bool("has_refresh_token", token.RefreshToken != ""),
	)

	return nil
}

// Disconnect はカレンダー接続を解除し、保存済みの資格情報を削除する。
func (s *ConnectionService) Disconnect(ctx context.Context, userID string) error {
	if err := s.credRepo.Delete(ctx, userID); err != nil {
		return fmt.Errorf("資格情報の削除に失敗しました: %w", err)
	}

	s.logger.Info("カレンダーを切断しました", slog.String("user_id", userID))
	return nil
}

// Status は現在の接続状態を返す。
// リフレッシュトークンを持たない資格情報はアクセストークンの失効後に
// 自力で回復できないため、有効期限切れの時点で再接続が必要と判定する。
func (s *ConnectionService) Status(ctx context.Context, userID string) (*model.ConnectionStatus, error) {
	cred, err := s.credRepo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("資格情報の取得に失敗しました: %w", err)
	}
	if cred == nil || !cred.Connected {
		return &model.ConnectionStatus{Connected: false}, nil
	}

	needsReconnect := cred.RefreshToken == "" &&
		!cred.Expiry.IsZero() && cred.Expiry.Before(time.Now())

	return &model.ConnectionStatus{
		Connected:      true,
		NeedsReconnect: needsReconnect,
		CalendarID:     cred.PrimaryCalendarID(),
		ConnectedAt:    cred.UpdatedAt,
	}, nil
}
