// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, calendar, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeCalendarNotConnected = "CALENDAR_NOT_CONNECTED"
	ErrCodeAuthExpired          = "AUTH_EXPIRED"
	ErrCodePrimaryFetchFailed   = "PRIMARY_FETCH_FAILED"
	ErrCodeInvalidQuery         = "INVALID_QUERY"
	ErrCodeInvalidPreference    = "INVALID_PREFERENCE"
	ErrCodeUserNotFound         = "USER_NOT_FOUND"
)

// NewCalendarNotConnectedError はカレンダー未接続エラーを生成する。
// 資格情報が存在しない、または接続が無効化されている場合に返す。
func NewCalendarNotConnectedError() *APIError {
	return &APIError{
		Code:     ErrCodeCalendarNotConnected,
		Message:  "Googleカレンダーが接続されていません。",
		Category: "calendar",
		Action:   "設定画面からGoogleカレンダーを接続してください。",
	}
}

// NewAuthExpiredError はカレンダー認可失効エラーを生成する。
// トークンリフレッシュに失敗した、またはリフレッシュ後も認可されない場合に返す。
func NewAuthExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeAuthExpired,
		Message:  "Googleカレンダーの認可が失効しています。",
		Category: "auth",
		Action:   "Googleカレンダーを再接続してください。",
	}
}

// NewPrimaryFetchFailedError はプライマリカレンダー取得失敗エラーを生成する。
// 詳細はログのみに記録し、レスポンスには一般的なメッセージを載せる。
func NewPrimaryFetchFailedError() *APIError {
	return &APIError{
		Code:     ErrCodePrimaryFetchFailed,
		Message:  "カレンダーイベントの取得に失敗しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInvalidQueryError は無効なクエリパラメータエラーを生成する。
// fieldには問題のあったパラメータ名を指定する。
func NewInvalidQueryError(field, reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidQuery,
		Message:  fmt.Sprintf("無効なクエリパラメータです: %s（%s）", field, reason),
		Category: "validation",
		Action:   fmt.Sprintf("%s の値を確認してください。", field),
	}
}

// NewInvalidPreferenceError は無効な表示設定エラーを生成する。
func NewInvalidPreferenceError(field, reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPreference,
		Message:  fmt.Sprintf("無効な表示設定です: %s（%s）", field, reason),
		Category: "validation",
		Action:   fmt.Sprintf("%s の値を確認してください。", field),
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// IsAuthExpired はエラーがカレンダー認可失効かどうかを判定する。
func IsAuthExpired(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == ErrCodeAuthExpired
}
