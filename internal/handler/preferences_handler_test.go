package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/calman/internal/middleware"
	"github.com/hitoshi/calman/internal/model"
)

// --- モック定義 ---

type mockPreferencesService struct {
	prefs     model.UserPreferences
	getErr    error
	updateErr error
	updated   *model.UserPreferences
}

func (m *mockPreferencesService) Get(ctx context.Context, userID string) (model.UserPreferences, error) {
	if m.getErr != nil {
		return model.UserPreferences{}, m.getErr
	}
	return m.prefs, nil
}

func (m *mockPreferencesService) Update(ctx context.Context, userID string, prefs model.UserPreferences) (model.UserPreferences, error) {
	if m.updateErr != nil {
		return model.UserPreferences{}, m.updateErr
	}
	prefs.UserID = userID
	m.updated = &prefs
	return prefs, nil
}

// --- テスト ---

func TestPreferencesHandler_Get_ReturnsPreferences(t *testing.T) {
	svc := &mockPreferencesService{prefs: model.DefaultPreferences("user-1")}
	h := NewPreferencesHandler(svc)

	req := authedRequest(http.MethodGet, "/api/preferences")
	w := httptest.NewRecorder()

	h.Get(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var prefs model.UserPreferences
	if err := json.NewDecoder(resp.Body).Decode(&prefs); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if prefs.TimeFormat != model.TimeFormat24h {
		t.Errorf("TimeFormat = %q, want %q", prefs.TimeFormat, model.TimeFormat24h)
	}
	if prefs.DaysToShow != 7 {
		t.Errorf("DaysToShow = %d, want 7", prefs.DaysToShow)
	}
}

func TestPreferencesHandler_Get_Unauthenticated(t *testing.T) {
	h := NewPreferencesHandler(&mockPreferencesService{})

	req := httptest.NewRequest(http.MethodGet, "/api/preferences", nil)
	w := httptest.NewRecorder()

	h.Get(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}

func TestPreferencesHandler_Update_Success(t *testing.T) {
	svc := &mockPreferencesService{}
	h := NewPreferencesHandler(svc)

	input := model.DefaultPreferences("")
	input.Timezone = "Asia/Tokyo"
	input.TimeFormat = model.TimeFormat12h
	body, _ := json.Marshal(input)

	req := httptest.NewRequest(http.MethodPut, "/api/preferences", strings.NewReader(string(body)))
	req = req.WithContext(middleware.ContextWithUserID(req.Context(), "user-1"))
	w := httptest.NewRecorder()

	h.Update(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if svc.updated == nil {
		t.Fatal("Update should be called")
	}
	if svc.updated.Timezone != "Asia/Tokyo" {
		t.Errorf("Timezone = %q, want Asia/Tokyo", svc.updated.Timezone)
	}
	if svc.updated.UserID != "user-1" {
		t.Errorf("UserID = %q, want user-1", svc.updated.UserID)
	}
}

func TestPreferencesHandler_Update_InvalidJSON(t *testing.T) {
	svc := &mockPreferencesService{}
	h := NewPreferencesHandler(svc)

	req := httptest.NewRequest(http.MethodPut, "/api/preferences", strings.NewReader("{not json"))
	req = req.WithContext(middleware.ContextWithUserID(req.Context(), "user-1"))
	w := httptest.NewRecorder()

	h.Update(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
	if body := decodeErrorBody(t, resp); body.Code != "INVALID_REQUEST" {
		t.Errorf("code = %q, want INVALID_REQUEST", body.Code)
	}
	if svc.updated != nil {
		t.Error("Update should not be called for invalid JSON")
	}
}

func TestPreferencesHandler_Update_ValidationError(t *testing.T) {
	svc := &mockPreferencesService{
		updateErr: model.NewInvalidPreferenceError("days_to_show", "1から31の範囲で指定してください"),
	}
	h := NewPreferencesHandler(svc)

	input := model.DefaultPreferences("")
	input.DaysToShow = 99
	body, _ := json.Marshal(input)

	req := httptest.NewRequest(http.MethodPut, "/api/preferences", strings.NewReader(string(body)))
	req = req.WithContext(middleware.ContextWithUserID(req.Context(), "user-1"))
	w := httptest.NewRecorder()

	h.Update(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
	if body := decodeErrorBody(t, resp); body.Code != "INVALID_PREFERENCE" {
		t.Errorf("code = %q, want INVALID_PREFERENCE", body.Code)
	}
}
