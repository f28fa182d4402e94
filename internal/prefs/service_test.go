package prefs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/hitoshi/calman/internal/model"
)

type mockPrefsRepo struct {
	stored  *model.UserPreferences
	findErr error
	saveErr error
	saved   *model.UserPreferences
}

func (m *mockPrefsRepo) FindByUserID(ctx context.Context, userID string) (*model.UserPreferences, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	return m.stored, nil
}

func (m *mockPrefsRepo) Upsert(ctx context.Context, prefs *model.UserPreferences) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = prefs
	return nil
}

func newTestService(repo *mockPrefsRepo) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(repo, logger)
}

func validPrefs(userID string) model.UserPreferences {
	return model.DefaultPreferences(userID)
}

// レコード未作成のユーザーにはデフォルト値を返すことを検証
func TestService_Get_ReturnsDefaultsWhenNotFound(t *testing.T) {
	svc := newTestService(&mockPrefsRepo{stored: nil})

	got, err := svc.Get(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	want := model.DefaultPreferences("user-1")
	if got != want {
		t.Errorf("Get() = %+v, want defaults %+v", got, want)
	}
}

// 保存済みレコードがある場合はその値を返すことを検証
func TestService_Get_ReturnsStoredPreferences(t *testing.T) {
	stored := validPrefs("user-1")
	stored.DaysToShow = 14
	stored.Timezone = "Asia/Tokyo"
	svc := newTestService(&mockPrefsRepo{stored: &stored})

	got, err := svc.Get(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	if got.DaysToShow != 14 {
		t.Errorf("DaysToShow = %d, want 14", got.DaysToShow)
	}
	if got.Timezone != "Asia/Tokyo" {
		t.Errorf("Timezone = %q, want %q", got.Timezone, "Asia/Tokyo")
	}
}

// リポジトリエラーがラップされて返ることを検証
func TestService_Get_RepositoryError(t *testing.T) {
	svc := newTestService(&mockPrefsRepo{findErr: errors.New("db down")})

	_, err := svc.Get(context.Background(), "user-1")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// 正常な設定が保存され、保存後の値が返ることを検証
func TestService_Update_Success(t *testing.T) {
	repo := &mockPrefsRepo{}
	svc := newTestService(repo)

	input := validPrefs("")
	input.TimeFormat = model.TimeFormat12h
	input.HolidayCountry = "JP"

	got, err := svc.Update(context.Background(), "user-1", input)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	if got.UserID != "user-1" {
		t.Errorf("UserID = %q, want %q", got.UserID, "user-1")
	}
	if repo.saved == nil {
		t.Fatal("expected Upsert to be called")
	}
	if repo.saved.HolidayCountry != "JP" {
		t.Errorf("saved HolidayCountry = %q, want %q", repo.saved.HolidayCountry, "JP")
	}
}

// 検証エラー時はINVALID_PREFERENCEを返し保存しないことを検証
func TestService_Update_ValidationRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.UserPreferences)
	}{
		{"不正なtime_format", func(p *model.UserPreferences) { p.TimeFormat = "25h" }},
		{"空のtimezone", func(p *model.UserPreferences) { p.Timezone = "" }},
		{"不明なtimezone", func(p *model.UserPreferences) { p.Timezone = "Mars/Olympus" }},
		{"不正な国コード", func(p *model.UserPreferences) { p.HolidayCountry = "JPN" }},
		{"days_to_showが範囲外（下限）", func(p *model.UserPreferences) { p.DaysToShow = 0 }},
		{"days_to_showが範囲外（上限）", func(p *model.UserPreferences) { p.DaysToShow = 32 }},
		{"max_eventsが範囲外（下限）", func(p *model.UserPreferences) { p.MaxEvents = 0 }},
		{"max_eventsが範囲外（上限）", func(p *model.UserPreferences) { p.MaxEvents = 251 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockPrefsRepo{}
			svc := newTestService(repo)

			input := validPrefs("")
			tt.mutate(&input)

			_, err := svc.Update(context.Background(), "user-1", input)
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}

			var apiErr *model.APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("error = %v, want *model.APIError", err)
			}
			if apiErr.Code != "INVALID_PREFERENCE" {
				t.Errorf("Code = %q, want INVALID_PREFERENCE", apiErr.Code)
			}
			if repo.saved != nil {
				t.Error("Upsert should not be called on validation failure")
			}
		})
	}
}

// 保存エラーがラップされて返ることを検証
func TestService_Update_SaveError(t *testing.T) {
	svc := newTestService(&mockPrefsRepo{saveErr: errors.New("db down")})

	_, err := svc.Update(context.Background(), "user-1", validPrefs(""))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}
