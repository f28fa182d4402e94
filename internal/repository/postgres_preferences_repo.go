package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/calman/internal/model"
)

// PostgresPreferencesRepo はPostgreSQLを使用した表示設定リポジトリ。
type PostgresPreferencesRepo struct {
	db *sql.DB
}

// NewPostgresPreferencesRepo はPostgresPreferencesRepoを生成する。
func NewPostgresPreferencesRepo(db *sql.DB) *PostgresPreferencesRepo {
	return &PostgresPreferencesRepo{db: db}
}

// FindByUserID は指定ユーザーの表示設定を取得する。
// レコードが存在しない場合はnilを返す。
func (r *PostgresPreferencesRepo) FindByUserID(ctx context.Context, userID string) (*model.UserPreferences, error) {
	prefs := &model.UserPreferences{}
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id,
		        show_holidays, show_secondary_calendars, show_all_day_events,
		        show_past_events, show_ongoing_events, show_upcoming_events,
		        hide_declined, hide_cancelled,
		        show_description, show_location, show_attendee_count,
		        time_format, timezone, holiday_country, days_to_show, max_events
		 FROM user_preferences
		 WHERE user_id = $1`,
		userID,
	).Scan(&prefs.UserID,
		&prefs.ShowHolidays, &prefs.ShowSecondaryCalendars, &prefs.ShowAllDayEvents,
		&prefs.ShowPastEvents, &prefs.ShowOngoingEvents, &prefs.ShowUpcomingEvents,
		&prefs.HideDeclined, &prefs.HideCancelled,
		&prefs.ShowDescription, &prefs.ShowLocation, &prefs.ShowAttendeeCount,
		&prefs.TimeFormat, &prefs.Timezone, &prefs.HolidayCountry,
		&prefs.DaysToShow, &prefs.MaxEvents)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user preferences: %w", err)
	}

	return prefs, nil
}

// Upsert は表示設定を作成または更新する。
func (r *PostgresPreferencesRepo) Upsert(ctx context.Context, prefs *model.UserPreferences) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_preferences (
		   user_id,
		   show_holidays, show_secondary_calendars, show_all_day_events,
		   show_past_events, show_ongoing_events, show_upcoming_events,
		   hide_declined, hide_cancelled,
		   show_description, show_location, show_attendee_count,
		   time_format, timezone, holiday_country, days_to_show, max_events,
		   updated_at
		 ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, now())
		 ON CONFLICT (user_id) DO UPDATE SET
		   show_holidays = EXCLUDED.show_holidays,
		   show_secondary_calendars = EXCLUDED.show_secondary_calendars,
		   show_all_day_events = EXCLUDED.show_all_day_events,
		   show_past_events = EXCLUDED.show_past_events,
		   show_ongoing_events = EXCLUDED.show_ongoing_events,
		   show_upcoming_events = EXCLUDED.show_upcoming_events,
		   hide_declined = EXCLUDED.hide_declined,
		   hide_cancelled = EXCLUDED.hide_cancelled,
		   show_description = EXCLUDED.show_description,
		   show_location = EXCLUDED.show_location,
		   show_attendee_count = EXCLUDED.show_attendee_count,
		   time_format = EXCLUDED.time_format,
		   timezone = EXCLUDED.timezone,
		   holiday_country = EXCLUDED.holiday_country,
		   days_to_show = EXCLUDED.days_to_show,
		   max_events = EXCLUDED.max_events,
		   updated_at = now()`,
		prefs.UserID,
		prefs.ShowHolidays, prefs.ShowSecondaryCalendars, prefs.ShowAllDayEvents,
		prefs.ShowPastEvents, prefs.ShowOngoingEvents, prefs.ShowUpcomingEvents,
		prefs.HideDeclined, prefs.HideCancelled,
		prefs.ShowDescription, prefs.ShowLocation, prefs.ShowAttendeeCount,
		prefs.TimeFormat, prefs.Timezone, prefs.HolidayCountry,
		prefs.DaysToShow, prefs.MaxEvents,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert user preferences: %w", err)
	}
	return nil
}

// compile-time interface check
var _ PreferencesRepository = (*PostgresPreferencesRepo)(nil)
