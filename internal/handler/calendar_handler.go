package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/calman/internal/calendar"
	"github.com/hitoshi/calman/internal/middleware"
	"github.com/hitoshi/calman/internal/model"
)

// AggregatorInterface はイベント集約のサービスインターフェース。
type AggregatorInterface interface {
	Aggregate(ctx context.Context, cred *model.CalendarCredential, prefs model.UserPreferences, query calendar.AggregationQuery) (*model.AggregationResult, error)
}

// ConnectionServiceInterface はカレンダー接続のサービスインターフェース。
type ConnectionServiceInterface interface {
	ConsentURL(state string) string
	CompleteConnect(ctx context.Context, userID, code string) error
	Disconnect(ctx context.Context, userID string) error
	Status(ctx context.Context, userID string) (*model.ConnectionStatus, error)
}

// PreferencesGetter は集約時の表示設定取得に必要なインターフェース。
type PreferencesGetter interface {
	Get(ctx context.Context, userID string) (model.UserPreferences, error)
}

// CredentialFinder は資格情報の取得に必要なインターフェース。
// repository.CredentialRepositoryの部分集合として定義する。
type CredentialFinder interface {
	FindByUserID(ctx context.Context, userID string) (*model.CalendarCredential, error)
}

// CalendarHandler はカレンダー集約と接続管理のHTTPハンドラー。
type CalendarHandler struct {
	aggregator AggregatorInterface
	connection ConnectionServiceInterface
	prefs      PreferencesGetter
	credFinder CredentialFinder
	config     AuthHandlerConfig

	// aggregateTimeout は集約全体の上限時間。0の場合は無制限。
	aggregateTimeout time.Duration
}

// NewCalendarHandler はCalendarHandlerを生成する。
func NewCalendarHandler(
	aggregator AggregatorInterface,
	connection ConnectionServiceInterface,
	prefs PreferencesGetter,
	credFinder CredentialFinder,
	config AuthHandlerConfig,
	aggregateTimeout time.Duration,
) *CalendarHandler {
	return &CalendarHandler{
		aggregator:       aggregator,
		connection:       connection,
		prefs:            prefs,
		credFinder:       credFinder,
		config:           config,
		aggregateTimeout: aggregateTimeout,
	}
}

// ListEvents は全ソースからのイベント集約結果を返す。
// GET /api/calendar/events?days=7&max_results=50&include_holidays=true
func (h *CalendarHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorizedResponse(w)
		return
	}

	query, err := parseAggregationQuery(r)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	ctx := r.Context()
	if h.aggregateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.aggregateTimeout)
		defer cancel()
	}

	prefs, err := h.prefs.Get(ctx, userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	cred, err := h.credFinder.FindByUserID(ctx, userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	result, err := h.aggregator.Aggregate(ctx, cred, prefs, query)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// Connect はカレンダー接続の同意フローを開始する。
// GET /api/calendar/connect
func (h *CalendarHandler) Connect(w http.ResponseWriter, r *http.Request) {
	if _, err := middleware.UserIDFromContext(r.Context()); err != nil {
		writeUnauthorizedResponse(w)
		return
	}

	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		writeInternalErrorResponse(w)
		return
	}

	// stateをCookieに保存（CSRF対策）
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.connection.ConsentURL(state), http.StatusTemporaryRedirect)
}

// ConnectCallback はカレンダー接続の同意コールバックを処理する。
// GET /api/calendar/connect/callback?code=xxx&state=yyy
func (h *CalendarHandler) ConnectCallback(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorizedResponse(w)
		return
	}

	state := r.URL.Query().Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || stateCookie.Value == "" || stateCookie.Value != state {
		slog.Warn("calendar connect state mismatch", slog.String("user_id", userID))
		http.Error(w, "invalid state parameter", http.StatusBadRequest)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing authorization code", http.StatusBadRequest)
		return
	}

	if err := h.connection.CompleteConnect(r.Context(), userID, code); err != nil {
		slog.Error("calendar connect failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		writeInternalErrorResponse(w)
		return
	}

	http.Redirect(w, r, h.config.BaseURL, http.StatusTemporaryRedirect)
}

// ConnectionStatus は現在のカレンダー接続状態を返す。
// GET /api/calendar/connection
func (h *CalendarHandler) ConnectionStatus(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorizedResponse(w)
		return
	}

	status, err := h.connection.Status(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// Disconnect はカレンダー接続を解除する。
// DELETE /api/calendar/connection
func (h *CalendarHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorizedResponse(w)
		return
	}

	if err := h.connection.Disconnect(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// parseAggregationQuery はクエリ文字列から集約パラメータを取り出す。
// 値域の検証はAggregator側で行い、ここでは構文エラーのみを検出する。
func parseAggregationQuery(r *http.Request) (calendar.AggregationQuery, error) {
	var query calendar.AggregationQuery

	if raw := r.URL.Query().Get("days"); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil {
			return query, model.NewInvalidQueryError("days", "整数で指定してください")
		}
		query.Days = days
	}

	if raw := r.URL.Query().Get("max_results"); raw != "" {
		maxResults, err := strconv.Atoi(raw)
		if err != nil {
			return query, model.NewInvalidQueryError("max_results", "整数で指定してください")
		}
		query.MaxResults = maxResults
	}

	if raw := r.URL.Query().Get("include_holidays"); raw != "" {
		include, err := strconv.ParseBool(raw)
		if err != nil {
			return query, model.NewInvalidQueryError("include_holidays", "trueまたはfalseを指定してください")
		}
		query.IncludeHolidays = &include
	}

	return query, nil
}

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// writeUnauthorizedResponse は未認証エラーのレスポンスを書き込む。
func writeUnauthorizedResponse(w http.ResponseWriter) {
	writeAPIErrorResponse(w, http.StatusUnauthorized, &model.APIError{
		Code:     "UNAUTHORIZED",
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	})
}

// writeInternalErrorResponse は内部エラーのレスポンスを書き込む。
func writeInternalErrorResponse(w http.ResponseWriter) {
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeInternalErrorResponse(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeCalendarNotConnected:
		return http.StatusBadRequest
	case model.ErrCodeAuthExpired:
		return http.StatusUnauthorized
	case model.ErrCodePrimaryFetchFailed:
		return http.StatusBadGateway
	case model.ErrCodeInvalidQuery, model.ErrCodeInvalidPreference:
		return http.StatusBadRequest
	case model.ErrCodeUserNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
