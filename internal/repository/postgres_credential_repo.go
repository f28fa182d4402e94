package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/calman/internal/model"
)

// PostgresCredentialRepo はPostgreSQLを使用したカレンダー資格情報リポジトリ。
type PostgresCredentialRepo struct {
	db *sql.DB
}

// NewPostgresCredentialRepo はPostgresCredentialRepoを生成する。
func NewPostgresCredentialRepo(db *sql.DB) *PostgresCredentialRepo {
	return &PostgresCredentialRepo{db: db}
}

// FindByUserID は指定ユーザーの資格情報を取得する。見つからない場合はnilを返す。
func (r *PostgresCredentialRepo) FindByUserID(ctx context.Context, userID string) (*model.CalendarCredential, error) {
	cred := &model.CalendarCredential{}
	var expiry sql.NullTime

	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, access_token, refresh_token, expiry, calendar_id, connected, updated_at
		 FROM calendar_credentials
		 WHERE user_id = $1`,
		userID,
	).Scan(&cred.UserID, &cred.AccessToken, &cred.RefreshToken, &expiry,
		&cred.CalendarID, &cred.Connected, &cred.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find calendar credential: %w", err)
	}

	if expiry.Valid {
		cred.Expiry = expiry.Time
	}

	return cred, nil
}

// Upsert は資格情報を作成または全更新する。
func (r *PostgresCredentialRepo) Upsert(ctx context.Context, cred *model.CalendarCredential) error {
	var expiry any
	if !cred.Expiry.IsZero() {
		expiry = cred.Expiry
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO calendar_credentials (user_id, access_token, refresh_token, expiry, calendar_id, connected, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, now())
		 ON CONFLICT (user_id) DO UPDATE SET
		   access_token = EXCLUDED.access_token,
		   refresh_token = EXCLUDED.refresh_token,
		   expiry = EXCLUDED.expiry,
		   calendar_id = EXCLUDED.calendar_id,
		   connected = EXCLUDED.connected,
		   updated_at = now()`,
		cred.UserID, cred.AccessToken, cred.RefreshToken, expiry,
		cred.CalendarID, cred.Connected,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert calendar credential: %w", err)
	}
	return nil
}

// UpdateToken はアクセストークンと有効期限のみを更新する。
func (r *PostgresCredentialRepo) UpdateToken(ctx context.Context, userID, accessToken string, expiry time.Time) error {
	var expiryVal any
	if !expiry.IsZero() {
		expiryVal = expiry
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE calendar_credentials
		 SET access_token = $2, expiry = $3, updated_at = now()
		 WHERE user_id = $1`,
		userID, accessToken, expiryVal,
	)
	if err != nil {
		return fmt.Errorf("failed to update access token: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("calendar credential not found: user_id=%s", userID)
	}

	return nil
}

// Delete は指定ユーザーの資格情報を削除する。
func (r *PostgresCredentialRepo) Delete(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM calendar_credentials WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete calendar credential: %w", err)
	}
	return nil
}

// compile-time interface check
var _ CredentialRepository = (*PostgresCredentialRepo)(nil)
