// Package calendar はカレンダー集約・同期エンジンを提供する。
// 資格情報ゲートウェイ、ソース列挙、イベントフェッチ、正規化、
// 表示設定フィルタパイプライン、およびそれらを束ねる集約処理を含む。
package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// defaultAPIBaseURL はGoogleカレンダーAPIのベースURL。
	defaultAPIBaseURL = "https://www.googleapis.com/calendar/v3"
	// defaultTokenURL はGoogleのトークンエンドポイント。
	defaultTokenURL = "https://oauth2.googleapis.com/token"
	// maxCalendarListResults はcalendarList取得時の最大件数。
	maxCalendarListResults = 100
)

// ErrUnauthorized はアクセストークンが無効または失効していることを示す。
// CredentialGatewayがこのエラーを検知してトークンリフレッシュを試みる。
var ErrUnauthorized = errors.New("calendar: unauthorized")

// RawEvent はGoogleカレンダーAPIが返すイベントレコード。
// EventNormalizerのみが消費するプロバイダー固有の形。
type RawEvent struct {
	ID          string         `json:"id"`
	Status      string         `json:"status"`
	Summary     string         `json:"summary"`
	Description string         `json:"description"`
	Location    string         `json:"location"`
	HTMLLink    string         `json:"htmlLink"`
	Start       EventDateTime  `json:"start"`
	End         EventDateTime  `json:"end"`
	Attendees   []RawAttendee  `json:"attendees"`
	Organizer   *RawOrganizer  `json:"organizer"`
}

// EventDateTime はGoogleカレンダーの日時表現。
// 終日イベントはDateのみ、時刻付きイベントはDateTimeのみを持つ。
type EventDateTime struct {
	Date     string `json:"date"`     // "2006-01-02" 形式
	DateTime string `json:"dateTime"` // RFC3339形式
	TimeZone string `json:"timeZone"`
}

// RawAttendee はイベント参加者のレコード。
type RawAttendee struct {
	Email          string `json:"email"`
	Self           bool   `json:"self"`
	ResponseStatus string `json:"responseStatus"`
}

// RawOrganizer はイベント主催者のレコード。
type RawOrganizer struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

// CalendarListEntry はcalendarList APIが返すカレンダーのレコード。
type CalendarListEntry struct {
	ID              string `json:"id"`
	Summary         string `json:"summary"`
	SummaryOverride string `json:"summaryOverride"`
	BackgroundColor string `json:"backgroundColor"`
	AccessRole      string `json:"accessRole"`
	Primary         bool   `json:"primary"`
	Deleted         bool   `json:"deleted"`
}

// TokenResponse はトークンエンドポイントのレスポンス。
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// GoogleClient はGoogleカレンダーAPIのクライアント。
// イベント一覧・カレンダー一覧の取得とトークン交換・リフレッシュを提供する。
type GoogleClient struct {
	httpClient   *http.Client
	logger       *slog.Logger
	clientID     string
	clientSecret string

	// テスト用にオーバーライド可能なURL
	apiBaseURL string
	tokenURL   string
}

// GoogleClientConfig はGoogleClientの設定。
type GoogleClientConfig struct {
	ClientID     string
	ClientSecret string

	// テスト用にオーバーライド可能なURL
	APIBaseURL string
	TokenURL   string
}

// NewGoogleClient はGoogleClientの新しいインスタンスを生成する。
func NewGoogleClient(httpClient *http.Client, logger *slog.Logger, config GoogleClientConfig) *GoogleClient {
	if config.APIBaseURL == "" {
		config.APIBaseURL = defaultAPIBaseURL
	}
	if config.TokenURL == "" {
		config.TokenURL = defaultTokenURL
	}
	return &GoogleClient{
		httpClient:   httpClient,
		logger:       logger,
		clientID:     config.ClientID,
		clientSecret: config.ClientSecret,
		apiBaseURL:   config.APIBaseURL,
		tokenURL:     config.TokenURL,
	}
}

// eventsListResponse はevents.list APIのレスポンス。
type eventsListResponse struct {
	Items []RawEvent `json:"items"`
}

// ListEvents は1つのカレンダーの指定期間のイベントを取得する。
// 繰り返しイベントは展開し（singleEvents）、開始時刻の昇順で
// maxResults件まで返す。
// 401レスポンスの場合はErrUnauthorizedを返す。
func (c *GoogleClient) ListEvents(ctx context.Context, calendarID, accessToken string, timeMin, timeMax time.Time, maxResults int) ([]RawEvent, error) {
	endpoint := fmt.Sprintf("%s/calendars/%s/events", c.apiBaseURL, url.PathEscape(calendarID))

	q := url.Values{
		"timeMin":      {timeMin.Format(time.RFC3339)},
		"timeMax":      {timeMax.Format(time.RFC3339)},
		"singleEvents": {"true"},
		"orderBy":      {"startTime"},
		"maxResults":   {strconv.Itoa(maxResults)},
	}

	var result eventsListResponse
	if err := c.getJSON(ctx, endpoint+"?"+q.Encode(), accessToken, &result); err != nil {
		return nil, err
	}

	return result.Items, nil
}

// calendarListResponse はcalendarList.list APIのレスポンス。
type calendarListResponse struct {
	Items []CalendarListEntry `json:"items"`
}

// ListCalendars はトークンの所有者がアクセス可能なカレンダーの一覧を取得する。
// reader以上のアクセス権を持つカレンダーのみを要求する。
// 401レスポンスの場合はErrUnauthorizedを返す。
func (c *GoogleClient) ListCalendars(ctx context.Context, accessToken string) ([]CalendarListEntry, error) {
	q := url.Values{
		"minAccessRole": {"reader"},
		"maxResults":    {strconv.Itoa(maxCalendarListResults)},
	}

	var result calendarListResponse
	if err := c.getJSON(ctx, c.apiBaseURL+"/users/me/calendarList?"+q.Encode(), accessToken, &result); err != nil {
		return nil, err
	}

	return result.Items, nil
}

// RefreshAccessToken はリフレッシュトークンで新しいアクセストークンを取得する。
func (c *GoogleClient) RefreshAccessToken(ctx context.Context, refreshToken string) (string, time.Time, error) {
	data := url.Values{
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"refresh_token": {refreshToken},
		"grant_type":    {"refresh_token"},
	}

	tokenResp, err := c.postTokenRequest(ctx, data)
	if err != nil {
		return "", time.Time{}, err
	}

	var expiry time.Time
	if tokenResp.ExpiresIn > 0 {
		expiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	}

	return tokenResp.AccessToken, expiry, nil
}

// ExchangeAuthCode は認可コードをトークンに交換する。
// カレンダー接続フローのコールバック処理で使用する。
func (c *GoogleClient) ExchangeAuthCode(ctx context.Context, code, redirectURI string) (*TokenResponse, error) {
	data := url.Values{
		"code":          {code},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"redirect_uri":  {redirectURI},
		"grant_type":    {"authorization_code"},
	}

	return c.postTokenRequest(ctx, data)
}

// getJSON は認可ヘッダー付きのGETリクエストを実行し、レスポンスをデコードする。
func (c *GoogleClient) getJSON(ctx context.Context, rawURL, accessToken string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("カレンダーAPIの呼び出しに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.Error("カレンダーAPIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
		)
		return fmt.Errorf("カレンダーAPIがステータス %d を返しました", resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}

	return nil
}

// postTokenRequest はトークンエンドポイントへのPOSTリクエストを実行する。
func (c *GoogleClient) postTokenRequest(ctx context.Context, data url.Values) (*TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("トークンリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("トークンリクエストに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("トークンレスポンスの読み取りに失敗しました: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("トークン交換がステータス %d で失敗しました: %s", resp.StatusCode, string(body))
	}

	var tokenResp TokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("トークンレスポンスのパースに失敗しました: %w", err)
	}

	if tokenResp.AccessToken == "" {
		return nil, fmt.Errorf("トークンレスポンスにアクセストークンが含まれていません")
	}

	return &tokenResp, nil
}
