// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/calman/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByGoogleID はGoogleのユーザーID（sub）でユーザーを検索する。
	// 見つからない場合はnilを返す。
	FindByGoogleID(ctx context.Context, googleID string) (*model.User, error)

	// Create はユーザーを作成する。
	Create(ctx context.Context, user *model.User) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// CredentialRepository はカレンダー資格情報の永続化インターフェース。
type CredentialRepository interface {
	// FindByUserID は指定ユーザーの資格情報を取得する。見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.CalendarCredential, error)

	// Upsert は資格情報を作成または全更新する。カレンダー接続完了時に使用する。
	Upsert(ctx context.Context, cred *model.CalendarCredential) error

	// UpdateToken はアクセストークンと有効期限のみを更新する。
	// トークンリフレッシュ成功後に使用する。
	UpdateToken(ctx context.Context, userID, accessToken string, expiry time.Time) error

	// Delete は指定ユーザーの資格情報を削除する。カレンダー切断時に使用する。
	Delete(ctx context.Context, userID string) error
}

// PreferencesRepository はユーザー表示設定の永続化インターフェース。
type PreferencesRepository interface {
	// FindByUserID は指定ユーザーの表示設定を取得する。
	// レコードが存在しない場合はnilを返す（呼び出し元がデフォルト値を適用する）。
	FindByUserID(ctx context.Context, userID string) (*model.UserPreferences, error)

	// Upsert は表示設定を作成または更新する。
	Upsert(ctx context.Context, prefs *model.UserPreferences) error
}
