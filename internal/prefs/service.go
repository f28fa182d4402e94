// Package prefs はユーザー表示設定の取得と更新を提供する。
package prefs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/calman/internal/model"
	"github.com/hitoshi/calman/internal/repository"
)

// Service はユーザー表示設定のサービス。
// 設定レコードが未作成のユーザーにはデフォルト値を返す。
type Service struct {
	prefsRepo repository.PreferencesRepository
	logger    *slog.Logger
}

// NewService はServiceを生成する。
func NewService(prefsRepo repository.PreferencesRepository, logger *slog.Logger) *Service {
	return &Service{
		prefsRepo: prefsRepo,
		logger:    logger,
	}
}

// Get は指定ユーザーの表示設定を返す。
// レコードが存在しない場合はデフォルト値を返す（レコードは作成しない）。
func (s *Service) Get(ctx context.Context, userID string) (model.UserPreferences, error) {
	stored, err := s.prefsRepo.FindByUserID(ctx, userID)
	if err != nil {
		return model.UserPreferences{}, fmt.Errorf("表示設定の取得に失敗しました: %w", err)
	}
	if stored == nil {
		return model.DefaultPreferences(userID), nil
	}
	return *stored, nil
}

// Update は表示設定を検証して保存し、保存後の値を返す。
// 検証エラーの場合は保存を行わずINVALID_PREFERENCEを返す。
func (s *Service) Update(ctx context.Context, userID string, prefs model.UserPreferences) (model.UserPreferences, error) {
	prefs.UserID = userID

	if err := validatePreferences(prefs); err != nil {
		return model.UserPreferences{}, err
	}

	if err := s.prefsRepo.Upsert(ctx, &prefs); err != nil {
		return model.UserPreferences{}, fmt.Errorf("表示設定の保存に失敗しました: %w", err)
	}

	s.logger.Info("表示設定を更新しました", slog.String("user_id", userID))

	return prefs, nil
}

// validatePreferences は表示設定の各フィールドを検証する。
func validatePreferences(prefs model.UserPreferences) error {
	switch prefs.TimeFormat {
	case model.TimeFormat12h, model.TimeFormat24h:
	default:
		return model.NewInvalidPreferenceError("time_format", "12h または 24h を指定してください")
	}

	if prefs.Timezone == "" {
		return model.NewInvalidPreferenceError("timezone", "IANAタイムゾーン名を指定してください")
	}
	if _, err := time.LoadLocation(prefs.Timezone); err != nil {
		return model.NewInvalidPreferenceError("timezone", "不明なタイムゾーンです")
	}

	if len(prefs.HolidayCountry) != 2 {
		return model.NewInvalidPreferenceError("holiday_country", "ISO 3166-1 alpha-2の国コードを指定してください")
	}

	if prefs.DaysToShow < 1 || prefs.DaysToShow > 31 {
		return model.NewInvalidPreferenceError("days_to_show", "1から31の範囲で指定してください")
	}

	if prefs.MaxEvents < 1 || prefs.MaxEvents > 250 {
		return model.NewInvalidPreferenceError("max_events", "1から250の範囲で指定してください")
	}

	return nil
}
