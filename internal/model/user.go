// Package model はドメインモデルを定義する。
package model

import "time"

// User はアプリケーションのユーザーを表す。
// Google OAuthでログインしたユーザーのみが存在する。
type User struct {
	ID        string
	GoogleID  string // GoogleのユーザーID（sub）
	Email     string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Session はログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
