package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"

	"github.com/alertwarden/alertwarden/internal/alerting"
	"github.com/alertwarden/alertwarden/internal/datastore/entities"
	"github.com/alertwarden/alertwarden/internal/datastore/repository"
	"github.com/alertwarden/alertwarden/internal/logger"
)

// testAPI wires a controller against an in-memory database.
type testAPI struct {
	echo      *echo.Echo
	rules     repository.AlertRuleRepository
	alerts    repository.AlertRepository
	channels  repository.ChannelRepository
	notifs    repository.NotificationRepository
	feed      *alerting.ChangeFeed
	lifecycle *alerting.LifecycleService
}

func newTestAPI(t *testing.T, apiKey string) *testAPI {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gorm_logger.Default.LogMode(gorm_logger.Silent),
	})
	require.NoError(t, err, "failed to open in-memory database")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&entities.AlertRule{},
		&entities.Alert{},
		&entities.NotificationChannel{},
		&entities.EscalationPolicy{},
		&entities.AlertRuleChannel{},
		&entities.AlertNotification{},
	))

	log := logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil)
	ruleRepo := repository.NewAlertRuleRepository(db)
	alertRepo := repository.NewAlertRepository(db)
	channelRepo := repository.NewChannelRepository(db)
	notifRepo := repository.NewNotificationRepository(db)

	feed := alerting.NewChangeFeed()
	t.Cleanup(feed.Stop)

	lifecycle := alerting.NewLifecycleService(alertRepo, feed, nil, log)
	rules := alerting.NewRuleService(ruleRepo, alertRepo, feed, nil, log)

	e := echo.New()
	New(e, Options{
		Rules:         rules,
		Lifecycle:     lifecycle,
		Channels:      channelRepo,
		Notifications: notifRepo,
		Feed:          feed,
		APIKey:        apiKey,
		Logger:        log,
	})

	return &testAPI{
		echo:      e,
		rules:     ruleRepo,
		alerts:    alertRepo,
		channels:  channelRepo,
		notifs:    notifRepo,
		feed:      feed,
		lifecycle: lifecycle,
	}
}

// request issues an HTTP request against the in-process router.
func (a *testAPI) request(method, path, team, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if team != "" {
		req.Header.Set(teamHeader, team)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	a.echo.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

const validRuleJSON = `{
	"name": "High CPU",
	"metric_name": "system.cpu_usage",
	"condition_type": "threshold",
	"threshold_value": 90,
	"threshold_operator": "greater_than",
	"window_reducer": "average",
	"evaluation_window_minutes": 5,
	"evaluation_frequency_minutes": 1,
	"consecutive_failures_required": 3,
	"severity": "high",
	"enabled": true,
	"created_by": "alice"
}`

func TestHealthAndSchema(t *testing.T) {
	a := newTestAPI(t, "")

	rec := a.request(http.MethodGet, "/api/v1/health", "", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = a.request(http.MethodGet, "/api/v1/schema", "", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	schema := decodeBody[map[string]any](t, rec)
	assert.Contains(t, schema, "operators")
	assert.Contains(t, schema, "metrics")
}

func TestRuleEndpoints_CRUD(t *testing.T) {
	a := newTestAPI(t, "")

	rec := a.request(http.MethodPost, "/api/v1/rules", "team-a", validRuleJSON, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[entities.AlertRule](t, rec)
	assert.Equal(t, "team-a", created.TeamID)
	assert.Equal(t, 15, created.CooldownMin)

	// Duplicate name in the same team
	rec = a.request(http.MethodPost, "/api/v1/rules", "team-a", validRuleJSON, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Same name in another team is fine
	rec = a.request(http.MethodPost, "/api/v1/rules", "team-b", validRuleJSON, nil)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = a.request(http.MethodGet, fmt.Sprintf("/api/v1/rules/%d", created.ID), "team-a", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Cross-team access is refused
	rec = a.request(http.MethodGet, fmt.Sprintf("/api/v1/rules/%d", created.ID), "team-b", "", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.request(http.MethodGet, "/api/v1/rules/9999", "team-a", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.request(http.MethodPatch, fmt.Sprintf("/api/v1/rules/%d/toggle", created.ID), "team-a", `{"enabled": false}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.request(http.MethodGet, "/api/v1/rules?enabled=false", "team-a", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	listed := decodeBody[map[string]any](t, rec)
	assert.EqualValues(t, 1, listed["count"])

	rec = a.request(http.MethodDelete, fmt.Sprintf("/api/v1/rules/%d", created.ID), "team-a", "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = a.request(http.MethodGet, fmt.Sprintf("/api/v1/rules/%d", created.ID), "team-a", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRuleEndpoints_ValidationErrors(t *testing.T) {
	a := newTestAPI(t, "")

	rec := a.request(http.MethodPost, "/api/v1/rules", "team-a", `{"name": ""}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.request(http.MethodPost, "/api/v1/rules", "team-a", `not json`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.request(http.MethodGet, "/api/v1/rules/abc", "team-a", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRuleEndpoints_ExplicitZeroCooldown(t *testing.T) {
	a := newTestAPI(t, "")

	body := `{
		"name": "No cooldown",
		"metric_name": "system.cpu_usage",
		"threshold_value": 95,
		"threshold_operator": "greater_than",
		"evaluation_window_minutes": 5,
		"evaluation_frequency_minutes": 1,
		"severity": "critical",
		"cooldown_minutes": 0,
		"enabled": true
	}`
	rec := a.request(http.MethodPost, "/api/v1/rules", "team-a", body, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[entities.AlertRule](t, rec)
	assert.Zero(t, created.CooldownMin, "explicit zero cooldown must not be replaced by the default")

	// Omitting the field on update falls back to the default.
	update := `{
		"name": "No cooldown",
		"metric_name": "system.cpu_usage",
		"threshold_value": 95,
		"threshold_operator": "greater_than",
		"evaluation_window_minutes": 5,
		"evaluation_frequency_minutes": 1,
		"severity": "critical",
		"enabled": true
	}`
	rec = a.request(http.MethodPut, fmt.Sprintf("/api/v1/rules/%d", created.ID), "team-a", update, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decodeBody[entities.AlertRule](t, rec)
	assert.Equal(t, 15, updated.CooldownMin)
}

func TestRuleEndpoints_DeleteBlockedByUnresolvedAlert(t *testing.T) {
	a := newTestAPI(t, "")

	rec := a.request(http.MethodPost, "/api/v1/rules", "team-a", validRuleJSON, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	rule := decodeBody[entities.AlertRule](t, rec)

	require.NoError(t, a.alerts.CreateAlert(t.Context(), &entities.Alert{
		AlertRuleID: rule.ID,
		TeamID:      "team-a",
		Severity:    alerting.SeverityHigh,
		Status:      alerting.StatusActive,
		TriggeredAt: time.Now().UTC(),
	}))

	rec = a.request(http.MethodDelete, fmt.Sprintf("/api/v1/rules/%d", rule.ID), "team-a", "", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAlertEndpoints_AcknowledgeAndResolve(t *testing.T) {
	a := newTestAPI(t, "")

	alert := &entities.Alert{
		AlertRuleID: 1,
		TeamID:      "team-a",
		Severity:    alerting.SeverityCritical,
		Status:      alerting.StatusActive,
		Message:     "High CPU: system.cpu_usage greater_than 90 (observed 97)",
		MetricValue: 97,
		TriggeredAt: time.Now().UTC(),
	}
	require.NoError(t, a.alerts.CreateAlert(t.Context(), alert))

	rec := a.request(http.MethodPost, fmt.Sprintf("/api/v1/alerts/%d/acknowledge", alert.ID), "team-a", `{"actor": "bob"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	acked := decodeBody[entities.Alert](t, rec)
	assert.Equal(t, alerting.StatusAcknowledged, acked.Status)
	assert.Equal(t, "bob", acked.AcknowledgedBy)

	// Acknowledging twice is an invalid transition
	rec = a.request(http.MethodPost, fmt.Sprintf("/api/v1/alerts/%d/acknowledge", alert.ID), "team-a", `{"actor": "bob"}`, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Actor is mandatory
	rec = a.request(http.MethodPost, fmt.Sprintf("/api/v1/alerts/%d/resolve", alert.ID), "team-a", `{}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.request(http.MethodPost, fmt.Sprintf("/api/v1/alerts/%d/resolve", alert.ID), "team-a", `{"actor": "bob"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resolved := decodeBody[entities.Alert](t, rec)
	assert.Equal(t, alerting.StatusResolved, resolved.Status)

	rec = a.request(http.MethodPost, fmt.Sprintf("/api/v1/alerts/%d/resolve", alert.ID), "team-a", `{"actor": "bob"}`, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Cross-team action is refused
	rec = a.request(http.MethodPost, fmt.Sprintf("/api/v1/alerts/%d/resolve", alert.ID), "team-b", `{"actor": "eve"}`, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAlertEndpoints_ListAndStatistics(t *testing.T) {
	a := newTestAPI(t, "")

	now := time.Now().UTC()
	for i, status := range []string{alerting.StatusActive, alerting.StatusActive, alerting.StatusResolved} {
		require.NoError(t, a.alerts.CreateAlert(t.Context(), &entities.Alert{
			AlertRuleID: uint(i + 1),
			TeamID:      "team-a",
			Severity:    alerting.SeverityHigh,
			Status:      status,
			TriggeredAt: now.Add(-time.Duration(i) * time.Minute),
		}))
	}

	rec := a.request(http.MethodGet, "/api/v1/alerts?status=active", "team-a", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	listed := decodeBody[map[string]any](t, rec)
	assert.EqualValues(t, 2, listed["count"])

	rec = a.request(http.MethodGet, "/api/v1/alerts?from=not-a-time", "team-a", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.request(http.MethodGet, "/api/v1/alerts/statistics?window_hours=24", "team-a", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decodeBody[alerting.Statistics](t, rec)
	assert.EqualValues(t, 3, stats.Total)
	assert.EqualValues(t, 2, stats.Active)

	rec = a.request(http.MethodGet, "/api/v1/alerts/statistics?window_hours=0", "team-a", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChannelEndpoints_CRUD(t *testing.T) {
	a := newTestAPI(t, "")

	body := `{
		"name": "ops-slack",
		"channel_type": "slack",
		"configuration": {"webhook_url": "https://hooks.slack.com/services/T/B/X"},
		"enabled": true
	}`
	rec := a.request(http.MethodPost, "/api/v1/channels", "team-a", body, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[entities.NotificationChannel](t, rec)
	assert.Equal(t, 60, created.MaxPerHour)
	assert.Equal(t, 500, created.MaxPerDay)

	// Unknown channel type
	rec = a.request(http.MethodPost, "/api/v1/channels", "team-a", `{"name": "x", "channel_type": "pager"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Email without recipients
	rec = a.request(http.MethodPost, "/api/v1/channels", "team-a", `{"name": "x", "channel_type": "email", "configuration": {}}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.request(http.MethodGet, fmt.Sprintf("/api/v1/channels/%d", created.ID), "team-b", "", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.request(http.MethodDelete, fmt.Sprintf("/api/v1/channels/%d", created.ID), "team-a", "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = a.request(http.MethodGet, fmt.Sprintf("/api/v1/channels/%d", created.ID), "team-a", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPolicyEndpoints_CRUD(t *testing.T) {
	a := newTestAPI(t, "")

	body := `{
		"name": "standard",
		"escalation_rules": [
			{"level": 1, "delay_minutes": 0, "channels": [1]},
			{"level": 2, "delay_minutes": 15, "contacts": ["lead@example.com"]}
		]
	}`
	rec := a.request(http.MethodPost, "/api/v1/policies", "team-a", body, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[entities.EscalationPolicy](t, rec)
	require.Len(t, created.Levels, 2)

	// Levels with a gap are rejected
	rec = a.request(http.MethodPost, "/api/v1/policies", "team-a", `{
		"name": "broken",
		"escalation_rules": [{"level": 2, "delay_minutes": 0, "channels": [1]}]
	}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.request(http.MethodGet, "/api/v1/policies", "team-a", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	listed := decodeBody[map[string]any](t, rec)
	assert.EqualValues(t, 1, listed["count"])

	rec = a.request(http.MethodDelete, fmt.Sprintf("/api/v1/policies/%d", created.ID), "team-a", "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestLinkEndpoints(t *testing.T) {
	a := newTestAPI(t, "")

	rec := a.request(http.MethodPost, "/api/v1/rules", "team-a", validRuleJSON, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	rule := decodeBody[entities.AlertRule](t, rec)

	channel := &entities.NotificationChannel{
		TeamID:      "team-a",
		Name:        "ops",
		ChannelType: alerting.ChannelTypeWebhook,
		Config:      entities.JSONMap{"url": "https://hooks.example.com/x"},
		Enabled:     true,
		MaxPerHour:  60,
		MaxPerDay:   500,
	}
	require.NoError(t, a.channels.CreateChannel(t.Context(), channel))

	otherTeamChannel := &entities.NotificationChannel{
		TeamID:      "team-b",
		Name:        "other",
		ChannelType: alerting.ChannelTypeWebhook,
		Config:      entities.JSONMap{"url": "https://hooks.example.com/y"},
		Enabled:     true,
		MaxPerHour:  60,
		MaxPerDay:   500,
	}
	require.NoError(t, a.channels.CreateChannel(t.Context(), otherTeamChannel))

	path := fmt.Sprintf("/api/v1/rules/%d/channels", rule.ID)

	rec = a.request(http.MethodPost, path, "team-a", fmt.Sprintf(`{"channel_id": %d}`, channel.ID), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	link := decodeBody[entities.AlertRuleChannel](t, rec)

	// Channel from another team cannot be linked
	rec = a.request(http.MethodPost, path, "team-a", fmt.Sprintf(`{"channel_id": %d}`, otherTeamChannel.ID), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Unknown channel
	rec = a.request(http.MethodPost, path, "team-a", `{"channel_id": 9999}`, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.request(http.MethodGet, path, "team-a", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	listed := decodeBody[map[string]any](t, rec)
	assert.EqualValues(t, 1, listed["count"])

	rec = a.request(http.MethodDelete, fmt.Sprintf("/api/v1/links/%d", link.ID), "team-a", "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestNotificationEndpoints_List(t *testing.T) {
	a := newTestAPI(t, "")

	for _, status := range []string{
		entities.NotificationStatusSent,
		entities.NotificationStatusSent,
		entities.NotificationStatusFailed,
	} {
		require.NoError(t, a.notifs.Append(t.Context(), &entities.AlertNotification{
			TeamID:    "team-a",
			AlertID:   1,
			ChannelID: 2,
			Status:    status,
		}))
	}

	rec := a.request(http.MethodGet, "/api/v1/notifications?status=sent", "team-a", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	listed := decodeBody[map[string]any](t, rec)
	assert.EqualValues(t, 2, listed["total"])

	rec = a.request(http.MethodGet, "/api/v1/notifications", "team-b", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	listed = decodeBody[map[string]any](t, rec)
	assert.EqualValues(t, 0, listed["total"])

	rec = a.request(http.MethodGet, "/api/v1/notifications?alert_id=abc", "team-a", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStreamChanges_DeliversTeamEvents(t *testing.T) {
	a := newTestAPI(t, "")

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/stream", nil).WithContext(ctx)
	req.Header.Set(teamHeader, "team-a")
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		a.echo.ServeHTTP(rec, req)
		close(done)
	}()

	// Give the handler time to subscribe before publishing.
	time.Sleep(100 * time.Millisecond)
	a.feed.Publish(&alerting.ChangeEvent{Type: alerting.ChangeAlertOpened, TeamID: "team-a", AlertID: 7})
	a.feed.Publish(&alerting.ChangeEvent{Type: alerting.ChangeAlertOpened, TeamID: "team-b", AlertID: 8})
	time.Sleep(200 * time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream handler did not exit after disconnect")
	}

	body := rec.Body.String()
	assert.Contains(t, body, "event: connected")
	assert.Contains(t, body, "event: alert.opened")
	assert.Contains(t, body, `"alert_id":7`)
	assert.NotContains(t, body, `"alert_id":8`)
}

func TestAuthMiddleware(t *testing.T) {
	a := newTestAPI(t, "secret-key")

	// Reads stay open
	rec := a.request(http.MethodGet, "/api/v1/rules", "team-a", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Mutations need the key
	rec = a.request(http.MethodPost, "/api/v1/rules", "team-a", validRuleJSON, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.request(http.MethodPost, "/api/v1/rules", "team-a", validRuleJSON, map[string]string{apiKeyHeader: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.request(http.MethodPost, "/api/v1/rules", "team-a", validRuleJSON, map[string]string{apiKeyHeader: "secret-key"})
	assert.Equal(t, http.StatusCreated, rec.Code)
}
