package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/calman/internal/calendar"
	"github.com/hitoshi/calman/internal/middleware"
	"github.com/hitoshi/calman/internal/model"
)

// --- モック定義 ---

type mockAggregator struct {
	result    *model.AggregationResult
	err       error
	gotQuery  calendar.AggregationQuery
	gotCred   *model.CalendarCredential
	callCount int
}

func (m *mockAggregator) Aggregate(ctx context.Context, cred *model.CalendarCredential, prefs model.UserPreferences, query calendar.AggregationQuery) (*model.AggregationResult, error) {
	m.callCount++
	m.gotQuery = query
	m.gotCred = cred
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

type mockConnectionService struct {
	consentURL    string
	connectErr    error
	disconnectErr error
	status        *model.ConnectionStatus
	statusErr     error
	connectedCode string
	disconnected  bool
}

func (m *mockConnectionService) ConsentURL(state string) string {
	return m.consentURL + "?state=" + state
}

func (m *mockConnectionService) CompleteConnect(ctx context.Context, userID, code string) error {
	if m.connectErr != nil {
		return m.connectErr
	}
	m.connectedCode = code
	return nil
}

func (m *mockConnectionService) Disconnect(ctx context.Context, userID string) error {
	if m.disconnectErr != nil {
		return m.disconnectErr
	}
	m.disconnected = true
	return nil
}

func (m *mockConnectionService) Status(ctx context.Context, userID string) (*model.ConnectionStatus, error) {
	if m.statusErr != nil {
		return nil, m.statusErr
	}
	return m.status, nil
}

type mockPreferencesGetter struct {
	prefs model.UserPreferences
	err   error
}

func (m *mockPreferencesGetter) Get(ctx context.Context, userID string) (model.UserPreferences, error) {
	if m.err != nil {
		return model.UserPreferences{}, m.err
	}
	return m.prefs, nil
}

type mockCredentialFinder struct {
	cred *model.CalendarCredential
	err  error
}

func (m *mockCredentialFinder) FindByUserID(ctx context.Context, userID string) (*model.CalendarCredential, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.cred, nil
}

// --- テストヘルパー ---

func newTestCalendarHandler(agg *mockAggregator, conn *mockConnectionService) *CalendarHandler {
	return NewCalendarHandler(
		agg,
		conn,
		&mockPreferencesGetter{prefs: model.DefaultPreferences("user-1")},
		&mockCredentialFinder{cred: &model.CalendarCredential{UserID: "user-1", Connected: true}},
		AuthHandlerConfig{BaseURL: "http://localhost:8080"},
		0,
	)
}

func authedRequest(method, target string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	return req.WithContext(middleware.ContextWithUserID(req.Context(), "user-1"))
}

func decodeErrorBody(t *testing.T, resp *http.Response) apiErrorResponse {
	t.Helper()
	var body apiErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return body
}

// --- ListEvents のテスト ---

func TestCalendarHandler_ListEvents_Success(t *testing.T) {
	agg := &mockAggregator{
		result: &model.AggregationResult{
			Events:     []model.NormalizedEvent{{ID: "ev-1", Title: "ミーティング"}},
			RawSummary: model.EventSummary{Total: 1, Upcoming: 1},
			TimeFormat: "24h",
			Timezone:   "UTC",
		},
	}
	h := newTestCalendarHandler(agg, &mockConnectionService{})

	req := authedRequest(http.MethodGet, "/api/calendar/events?days=3&max_results=10")
	w := httptest.NewRecorder()

	h.ListEvents(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	if agg.gotQuery.Days != 3 {
		t.Errorf("query.Days = %d, want 3", agg.gotQuery.Days)
	}
	if agg.gotQuery.MaxResults != 10 {
		t.Errorf("query.MaxResults = %d, want 10", agg.gotQuery.MaxResults)
	}
	if agg.gotQuery.IncludeHolidays != nil {
		t.Error("query.IncludeHolidays should be nil when not specified")
	}

	var result model.AggregationResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if len(result.Events) != 1 || result.Events[0].ID != "ev-1" {
		t.Errorf("events = %+v, want single ev-1", result.Events)
	}
}

func TestCalendarHandler_ListEvents_IncludeHolidaysParam(t *testing.T) {
	agg := &mockAggregator{result: &model.AggregationResult{}}
	h := newTestCalendarHandler(agg, &mockConnectionService{})

	req := authedRequest(http.MethodGet, "/api/calendar/events?include_holidays=false")
	w := httptest.NewRecorder()

	h.ListEvents(w, req)

	if agg.gotQuery.IncludeHolidays == nil || *agg.gotQuery.IncludeHolidays {
		t.Errorf("query.IncludeHolidays = %v, want pointer to false", agg.gotQuery.IncludeHolidays)
	}
}

func TestCalendarHandler_ListEvents_InvalidQuerySyntax(t *testing.T) {
	tests := []struct {
		name   string
		target string
	}{
		{"daysが整数でない", "/api/calendar/events?days=abc"},
		{"max_resultsが整数でない", "/api/calendar/events?max_results=ten"},
		{"include_holidaysが真偽値でない", "/api/calendar/events?include_holidays=maybe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := &mockAggregator{result: &model.AggregationResult{}}
			h := newTestCalendarHandler(agg, &mockConnectionService{})

			req := authedRequest(http.MethodGet, tt.target)
			w := httptest.NewRecorder()

			h.ListEvents(w, req)

			resp := w.Result()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
			}
			if body := decodeErrorBody(t, resp); body.Code != "INVALID_QUERY" {
				t.Errorf("code = %q, want INVALID_QUERY", body.Code)
			}
			if agg.callCount != 0 {
				t.Error("aggregator should not be called for syntax errors")
			}
		})
	}
}

func TestCalendarHandler_ListEvents_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"未接続は400", model.NewCalendarNotConnectedError(), http.StatusBadRequest, "CALENDAR_NOT_CONNECTED"},
		{"認可失効は401", model.NewAuthExpiredError(), http.StatusUnauthorized, "AUTH_EXPIRED"},
		{"プライマリ取得失敗は502", model.NewPrimaryFetchFailedError(), http.StatusBadGateway, "PRIMARY_FETCH_FAILED"},
		{"範囲外クエリは400", model.NewInvalidQueryError("days", "1から31の範囲で指定してください"), http.StatusBadRequest, "INVALID_QUERY"},
		{"その他のエラーは500", errors.New("unexpected"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := &mockAggregator{err: tt.err}
			h := newTestCalendarHandler(agg, &mockConnectionService{})

			req := authedRequest(http.MethodGet, "/api/calendar/events")
			w := httptest.NewRecorder()

			h.ListEvents(w, req)

			resp := w.Result()
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if body := decodeErrorBody(t, resp); body.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
			}
		})
	}
}

func TestCalendarHandler_ListEvents_Unauthenticated(t *testing.T) {
	h := newTestCalendarHandler(&mockAggregator{}, &mockConnectionService{})

	req := httptest.NewRequest(http.MethodGet, "/api/calendar/events", nil)
	w := httptest.NewRecorder()

	h.ListEvents(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}

// --- 接続フローのテスト ---

func TestCalendarHandler_Connect_RedirectsToConsentURL(t *testing.T) {
	conn := &mockConnectionService{consentURL: "https://accounts.google.com/o/oauth2/v2/auth"}
	h := newTestCalendarHandler(&mockAggregator{}, conn)

	req := authedRequest(http.MethodGet, "/api/calendar/connect")
	w := httptest.NewRecorder()

	h.Connect(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusTemporaryRedirect)
	}

	// stateがCookieとリダイレクト先の両方に含まれること
	var stateCookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == oauthStateCookie {
			stateCookie = c
		}
	}
	if stateCookie == nil || stateCookie.Value == "" {
		t.Fatal("state cookie not set")
	}
	location := resp.Header.Get("Location")
	if want := "state=" + stateCookie.Value; !strings.Contains(location, want) {
		t.Errorf("redirect location %q does not contain %q", location, want)
	}
}

func TestCalendarHandler_ConnectCallback_Success(t *testing.T) {
	conn := &mockConnectionService{}
	h := newTestCalendarHandler(&mockAggregator{}, conn)

	req := authedRequest(http.MethodGet, "/api/calendar/connect/callback?code=auth-code-123&state=state-abc")
	req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: "state-abc"})
	w := httptest.NewRecorder()

	h.ConnectCallback(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusTemporaryRedirect)
	}
	if conn.connectedCode != "auth-code-123" {
		t.Errorf("connected code = %q, want %q", conn.connectedCode, "auth-code-123")
	}
}

func TestCalendarHandler_ConnectCallback_StateMismatch(t *testing.T) {
	conn := &mockConnectionService{}
	h := newTestCalendarHandler(&mockAggregator{}, conn)

	req := authedRequest(http.MethodGet, "/api/calendar/connect/callback?code=auth-code-123&state=forged")
	req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: "state-abc"})
	w := httptest.NewRecorder()

	h.ConnectCallback(w, req)

	if w.Result().StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusBadRequest)
	}
	if conn.connectedCode != "" {
		t.Error("CompleteConnect should not be called on state mismatch")
	}
}

func TestCalendarHandler_ConnectCallback_MissingCode(t *testing.T) {
	h := newTestCalendarHandler(&mockAggregator{}, &mockConnectionService{})

	req := authedRequest(http.MethodGet, "/api/calendar/connect/callback?state=state-abc")
	req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: "state-abc"})
	w := httptest.NewRecorder()

	h.ConnectCallback(w, req)

	if w.Result().StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusBadRequest)
	}
}

// --- 接続状態と切断のテスト ---

func TestCalendarHandler_ConnectionStatus(t *testing.T) {
	conn := &mockConnectionService{
		status: &model.ConnectionStatus{Connected: true, CalendarID: "primary"},
	}
	h := newTestCalendarHandler(&mockAggregator{}, conn)

	req := authedRequest(http.MethodGet, "/api/calendar/connection")
	w := httptest.NewRecorder()

	h.ConnectionStatus(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var status model.ConnectionStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("failed to decode status: %v", err)
	}
	if !status.Connected || status.CalendarID != "primary" {
		t.Errorf("status = %+v, want connected with primary calendar", status)
	}
}

func TestCalendarHandler_Disconnect_Returns204(t *testing.T) {
	conn := &mockConnectionService{}
	h := newTestCalendarHandler(&mockAggregator{}, conn)

	req := authedRequest(http.MethodDelete, "/api/calendar/connection")
	w := httptest.NewRecorder()

	h.Disconnect(w, req)

	if w.Result().StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusNoContent)
	}
	if !conn.disconnected {
		t.Error("Disconnect should be called")
	}
}
