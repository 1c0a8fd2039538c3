package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"example.com/practice/internal/activity"
	"example.com/practice/internal/auth"
	"example.com/practice/internal/batch"
	"example.com/practice/internal/clock"
	"example.com/practice/internal/domain"
	"example.com/practice/internal/notify"
	"example.com/practice/internal/persistence/memory"
)

var (
	testNow     = time.Date(2025, 10, 29, 12, 0, 0, 0, time.UTC)
	testAuthCfg = auth.Config{Secret: "test-secret", Issuer: "i5e.identity"}
)

type stubRunner struct {
	calls  int
	report batch.Report
	err    error
}

func (s *stubRunner) RunOnce(context.Context) (batch.Report, error) {
	s.calls++
	return s.report, s.err
}

type testServer struct {
	router http.Handler
	store  *memory.Store
	runner *stubRunner
}

func newTestServer(t *testing.T, secret string) testServer {
	t.Helper()
	store := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, store.UpsertUser(ctx, notify.Recipient{UserID: "u1", Timezone: "UTC"}))
	for i, day := range []int{27, 28, 29} {
		_, err := store.InsertActivity(ctx, activity.Record{
			ID:          "p" + string(rune('0'+i)),
			UserID:      "u1",
			Source:      activity.SourcePose,
			ItemID:      "tree",
			ItemName:    "Tree",
			PerformedAt: time.Date(2025, 10, day, 8, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	runner := &stubRunner{report: batch.Report{RunID: "run-1", Users: 3}}
	svc := domain.NewService(store, domain.WithClock(clock.Fixed(testNow)), domain.WithLogger(logger))
	handler := NewHandler(svc,
		WithPreferences(store),
		WithTrigger(runner, secret),
		WithLogger(logger),
	)
	router := NewRouter(handler, RouterConfig{Auth: testAuthCfg, CORSAllowOrigins: []string{"*"}, Logger: logger})
	return testServer{router: router, store: store, runner: runner}
}

func token(t *testing.T, subject string, scopes ...string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":    subject,
		"iss":    testAuthCfg.Issuer,
		"exp":    time.Now().Add(time.Hour).Unix(),
		"scopes": strings.Join(scopes, " "),
	}).SignedString([]byte(testAuthCfg.Secret))
	require.NoError(t, err)
	return signed
}

func (s testServer) do(t *testing.T, method, path, bearer string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func TestSummaryEndpoint(t *testing.T) {
	srv := newTestServer(t, "s3cret")
	rec := srv.do(t, http.MethodGet, "/v1/users/u1/practice/summary?tz_offset=0", token(t, "u1", auth.ScopePracticeRead), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var summary domain.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	require.Equal(t, 3, summary.Practice.Current)
	require.True(t, summary.Practice.ActiveToday)
	require.Equal(t, 3, summary.Longest)
	require.Equal(t, 30, summary.Goal.Target)
}

func TestSummaryEndpointErrors(t *testing.T) {
	srv := newTestServer(t, "s3cret")

	rec := srv.do(t, http.MethodGet, "/v1/users/u1/practice/summary", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = srv.do(t, http.MethodGet, "/v1/users/u1/practice/summary", token(t, "u2", auth.ScopePracticeRead), nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = srv.do(t, http.MethodGet, "/v1/users/u1/practice/summary?tz_offset=abc", token(t, "u1", auth.ScopePracticeRead), nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(t, http.MethodGet, "/v1/users/u1/practice/summary?tz_offset=900", token(t, "u1", auth.ScopePracticeRead), nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(t, http.MethodGet, "/v1/users/ghost/practice/summary", token(t, "ops", auth.ScopePracticeAdmin), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.JSONEq(t, `{"type":"not_found","detail":"user not found"}`, rec.Body.String())
}

func TestHistoryAndMostCommonEndpoints(t *testing.T) {
	srv := newTestServer(t, "s3cret")
	bearer := token(t, "u1", auth.ScopePracticeRead)

	rec := srv.do(t, http.MethodGet, "/v1/users/u1/practice/history", bearer, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var history HistoryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	require.Len(t, history.Months, activity.HistoryMonths)
	require.Equal(t, "2025-10", history.Months[len(history.Months)-1].Month)
	require.Equal(t, 3, history.Months[len(history.Months)-1].Days)

	rec = srv.do(t, http.MethodGet, "/v1/users/u1/practice/most-common?limit=1", bearer, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var common MostCommonResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &common))
	require.Len(t, common.Items[activity.SourcePose], 1)
	require.Equal(t, 3, common.Items[activity.SourcePose][0].Count)
	require.Empty(t, common.Items[activity.SourceSeries])
}

func TestMostCommonDefaultsToTopThree(t *testing.T) {
	srv := newTestServer(t, "s3cret")
	ctx := context.Background()
	for i, item := range []string{"crow", "warrior", "lotus", "camel", "bridge"} {
		_, err := srv.store.InsertActivity(ctx, activity.Record{
			ID:          "extra-" + item,
			UserID:      "u1",
			Source:      activity.SourcePose,
			ItemID:      item,
			PerformedAt: time.Date(2025, 10, 20+i, 9, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)
	}

	rec := srv.do(t, http.MethodGet, "/v1/users/u1/practice/most-common", token(t, "u1", auth.ScopePracticeRead), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var common MostCommonResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &common))
	require.Len(t, common.Items[activity.SourcePose], activity.DefaultRankingLimit)
	require.Equal(t, "tree", common.Items[activity.SourcePose][0].ItemID)
	for source, items := range common.Items {
		require.LessOrEqual(t, len(items), activity.DefaultRankingLimit, source)
	}
}

func TestPreferencesEndpoints(t *testing.T) {
	srv := newTestServer(t, "s3cret")

	rec := srv.do(t, http.MethodGet, "/v1/users/u1/notification-preferences", token(t, "u1", auth.ScopePracticeRead), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"in_app":false,"email":false,"kinds":{},"reminder":{"days":null,"time":""}}`, rec.Body.String())

	body := `{"in_app":true,"kinds":{"daily_reminder":true},"reminder":{"days":[1,3],"time":"07:30"}}`
	rec = srv.do(t, http.MethodPut, "/v1/users/u1/notification-preferences", token(t, "u1", auth.ScopePracticeRead), strings.NewReader(body))
	require.Equal(t, http.StatusForbidden, rec.Code)

	writer := token(t, "u1", auth.ScopePracticeWrite)
	rec = srv.do(t, http.MethodPut, "/v1/users/u1/notification-preferences", writer, strings.NewReader(body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	prefs, err := srv.store.Preferences(context.Background(), "u1")
	require.NoError(t, err)
	require.NotNil(t, prefs)
	require.True(t, prefs.InApp)
	require.True(t, prefs.Enabled(notify.KindDailyReminder))
	require.Equal(t, "07:30", prefs.Reminder.Time)

	rec = srv.do(t, http.MethodPut, "/v1/users/u1/notification-preferences", writer,
		strings.NewReader(`{"kinds":{"daily_reminder":true},"reminder":{"time":"25:00"}}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(t, http.MethodPut, "/v1/users/u1/notification-preferences", writer,
		strings.NewReader(`{"kinds":{"weekly_digest":true}}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNotificationLogEndpoint(t *testing.T) {
	srv := newTestServer(t, "s3cret")
	ctx := context.Background()
	for i, value := range []int{10, 25} {
		require.NoError(t, srv.store.Append(ctx, notify.LogEntry{
			ID:      "n" + string(rune('0'+i)),
			UserID:  "u1",
			Trigger: notify.MilestoneTrigger(value),
			SentVia: []notify.Channel{notify.ChannelPush},
			SentAt:  testNow.Add(time.Duration(i) * time.Hour),
		}))
	}
	bearer := token(t, "u1", auth.ScopePracticeRead)

	rec := srv.do(t, http.MethodGet, "/v1/users/u1/notifications?limit=1", bearer, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var page NotificationLogResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Items, 1)
	require.Equal(t, 25, page.Items[0].Value)
	require.NotEmpty(t, page.NextCursor)

	rec = srv.do(t, http.MethodGet, "/v1/users/u1/notifications?limit=1&cursor="+page.NextCursor, bearer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page = NotificationLogResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Items, 1)
	require.Equal(t, 10, page.Items[0].Value)
	require.Equal(t, notify.KindProgressMilestone, page.Items[0].Kind)

	rec = srv.do(t, http.MethodGet, "/v1/users/u1/notifications?cursor=not-a-cursor!", bearer, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunNotificationsEndpoint(t *testing.T) {
	srv := newTestServer(t, "s3cret")

	req := httptest.NewRequest(http.MethodPost, "/v1/notifications/run", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Zero(t, srv.runner.calls)

	req = httptest.NewRequest(http.MethodPost, "/v1/notifications/run", nil)
	req.Header.Set(SchedulerSecretHeader, "s3cret")
	rec = httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, 1, srv.runner.calls)

	var resp RunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "run-1", resp.RunID)
	require.Equal(t, 3, resp.Users)

	srv.runner.err = errors.New("list users: connection refused")
	req = httptest.NewRequest(http.MethodPost, "/v1/notifications/run", nil)
	req.Header.Set(SchedulerSecretHeader, "s3cret")
	rec = httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRunNotificationsWithoutSecretIsConfigurationError(t *testing.T) {
	srv := newTestServer(t, "")

	req := httptest.NewRequest(http.MethodPost, "/v1/notifications/run", nil)
	req.Header.Set(SchedulerSecretHeader, "")
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.JSONEq(t, `{"type":"configuration_error","detail":"scheduler secret is not configured"}`, rec.Body.String())
	require.Zero(t, srv.runner.calls)
}

func TestHealthzSkipsAuth(t *testing.T) {
	srv := newTestServer(t, "s3cret")
	rec := srv.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
}
