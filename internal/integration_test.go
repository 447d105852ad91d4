package internal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"factory-floor-backend/internal/analytics"
	"factory-floor-backend/internal/api"
	"factory-floor-backend/internal/auth"
	"factory-floor-backend/internal/hub"
	"factory-floor-backend/internal/lifecycle"
	"factory-floor-backend/internal/model"
	"factory-floor-backend/internal/store"
)

const testSecret = "integration-secret"

type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// newTestServer stands up the whole stack on an in-memory database: store,
// hub, controller, reports and the real router.
func newTestServer(t *testing.T, dsn string) *httptest.Server {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&model.Machine{},
		&model.Environment{},
		&model.Order{},
		&model.OrderStatusLog{},
		&model.QuantityUpdate{},
		&model.DowntimeEvent{},
		&model.WasteEvent{},
		&model.AlertSubscription{},
	))

	st := store.NewGormStore(db, store.DefaultTransitionTables())
	verifier := auth.NewVerifier(testSecret)
	eventHub := hub.New(verifier, nil, hub.Config{}, nopLogger{})
	ctrl := lifecycle.NewController(st, eventHub, nil, "high", nopLogger{})
	handler := api.NewHandler(st, ctrl, analytics.NewService(db), eventHub, nil)

	router := api.NewRouter(handler, verifier, api.RouterConfig{
		RateLimit: rate.Limit(1000),
		RateBurst: 1000,
		CacheTTL:  time.Nanosecond,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func tokenFor(t *testing.T, userID int64, username, role string) string {
	t.Helper()
	tok, err := auth.Sign(auth.Claims{UserID: userID, Username: username, Role: role}, testSecret, time.Hour)
	require.NoError(t, err)
	return tok
}

// call performs one API request and returns status and raw body.
func call(t *testing.T, srv *httptest.Server, method, path, token string, body any) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, srv.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	res, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	raw, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res.StatusCode, raw
}

func decode[T any](t *testing.T, raw []byte) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(raw, &out), "body: %s", raw)
	return out
}

type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func errorCode(t *testing.T, raw []byte) string {
	t.Helper()
	return decode[apiError](t, raw).Error.Code
}

type wsEvent struct {
	Type    string          `json:"type"`
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// dialEvents connects a websocket client subscribed to the given channel,
// with the welcome and confirmation already consumed.
func dialEvents(t *testing.T, srv *httptest.Server, token, channel string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + url.QueryEscape(token)
	conn, resp, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })

	require.Equal(t, "welcome", readWS(t, conn).Type)
	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": "subscribe",
		"data": map[string]any{"channels": []string{channel}},
	}))
	require.Equal(t, "subscription_confirmed", readWS(t, conn).Type)
	return conn
}

func readWS(t *testing.T, conn *websocket.Conn) wsEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var evt wsEvent
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &evt))
	return evt
}

// TestOrderLifecycleOverHTTP drives one order through its whole run against
// the real router and checks the websocket feed alongside.
func TestOrderLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t, "file:integration_lifecycle?mode=memory&cache=shared")
	admin := tokenFor(t, 1, "root", auth.RoleAdmin)
	operator := tokenFor(t, 4, "ines", auth.RoleOperator)

	status, raw := call(t, srv, http.MethodPost, "/api/machines", admin,
		map[string]any{"name": "CNC-01", "type": "cnc"})
	require.Equal(t, http.StatusCreated, status, "body: %s", raw)
	machine := decode[model.Machine](t, raw)

	feed := dialEvents(t, srv, operator, auth.ChannelProduction)

	var order, second model.Order
	t.Run("create and start", func(t *testing.T) {
		status, raw := call(t, srv, http.MethodPost, "/api/orders", operator,
			map[string]any{"product_name": "bracket", "target_quantity": 100})
		require.Equal(t, http.StatusCreated, status, "body: %s", raw)
		order = decode[model.Order](t, raw)
		assert.Equal(t, model.OrderPending, order.Status)
		assert.True(t, strings.HasPrefix(order.OrderNumber, "ORD-"), "order number %q", order.OrderNumber)

		status, raw = call(t, srv, http.MethodPost, fmt.Sprintf("/api/orders/%d/start", order.ID),
			operator, map[string]any{"machine_id": machine.ID})
		require.Equal(t, http.StatusOK, status, "body: %s", raw)
		order = decode[model.Order](t, raw)
		assert.Equal(t, model.OrderInProgress, order.Status)
		require.NotNil(t, order.MachineID)
		assert.Equal(t, machine.ID, *order.MachineID)
	})

	t.Run("machine is exclusive", func(t *testing.T) {
		status, raw := call(t, srv, http.MethodPost, "/api/orders", operator,
			map[string]any{"product_name": "flange", "target_quantity": 50})
		require.Equal(t, http.StatusCreated, status)
		second = decode[model.Order](t, raw)

		status, raw = call(t, srv, http.MethodPost, fmt.Sprintf("/api/orders/%d/start", second.ID),
			operator, map[string]any{"machine_id": machine.ID})
		assert.Equal(t, http.StatusConflict, status)
		assert.Equal(t, store.CodeConflict, errorCode(t, raw))
	})

	t.Run("pause resume report complete", func(t *testing.T) {
		status, raw := call(t, srv, http.MethodPost, fmt.Sprintf("/api/orders/%d/pause", order.ID),
			operator, map[string]any{"reason": "shift change"})
		require.Equal(t, http.StatusOK, status, "body: %s", raw)
		assert.Equal(t, model.OrderPaused, decode[model.Order](t, raw).Status)

		status, raw = call(t, srv, http.MethodPost, fmt.Sprintf("/api/orders/%d/resume", order.ID),
			operator, nil)
		require.Equal(t, http.StatusOK, status, "body: %s", raw)

		status, raw = call(t, srv, http.MethodPost, fmt.Sprintf("/api/orders/%d/quantity", order.ID),
			operator, map[string]any{"quantity": 40})
		require.Equal(t, http.StatusCreated, status, "body: %s", raw)

		status, raw = call(t, srv, http.MethodPost, fmt.Sprintf("/api/orders/%d/complete", order.ID),
			operator, map[string]any{"actual_quantity": 95, "quality_notes": "two rejects"})
		require.Equal(t, http.StatusOK, status, "body: %s", raw)
		order = decode[model.Order](t, raw)
		assert.Equal(t, model.OrderCompleted, order.Status)
		require.NotNil(t, order.EfficiencyPct)
		assert.Equal(t, 95.0, *order.EfficiencyPct)
		require.NotNil(t, order.CompleteTime)
	})

	t.Run("machine released", func(t *testing.T) {
		status, raw := call(t, srv, http.MethodGet, fmt.Sprintf("/api/machines/%d", machine.ID),
			operator, nil)
		require.Equal(t, http.StatusOK, status)
		var res struct {
			Status       model.MachineStatus `json:"status"`
			CurrentOrder *model.Order        `json:"current_order"`
		}
		require.NoError(t, json.Unmarshal(raw, &res))
		assert.Equal(t, model.MachineAvailable, res.Status)
		assert.Nil(t, res.CurrentOrder)
	})

	t.Run("detail carries the trail", func(t *testing.T) {
		status, raw := call(t, srv, http.MethodGet, fmt.Sprintf("/api/orders/%d", order.ID),
			operator, nil)
		require.Equal(t, http.StatusOK, status)
		var detail struct {
			Order           model.Order            `json:"order"`
			StatusLog       []model.OrderStatusLog `json:"status_log"`
			QuantityUpdates []model.QuantityUpdate `json:"quantity_updates"`
		}
		require.NoError(t, json.Unmarshal(raw, &detail))
		assert.Equal(t, model.OrderCompleted, detail.Order.Status)
		require.Len(t, detail.StatusLog, 5)
		assert.Equal(t, model.OrderCompleted, detail.StatusLog[4].ToStatus)
		require.Len(t, detail.QuantityUpdates, 1)
		assert.Equal(t, 40, detail.QuantityUpdates[0].Quantity)
	})

	t.Run("websocket feed saw the run", func(t *testing.T) {
		want := []string{
			lifecycle.EventOrderCreated,
			lifecycle.EventOrderStarted,
			lifecycle.EventOrderCreated, // the second order
			lifecycle.EventOrderPaused,
			lifecycle.EventOrderResumed,
			lifecycle.EventQuantityReported,
			lifecycle.EventOrderCompleted,
		}
		var got []string
		var completed wsEvent
		for range want {
			evt := readWS(t, feed)
			got = append(got, evt.Type)
			if evt.Type == lifecycle.EventOrderCompleted {
				completed = evt
			}
		}
		assert.Equal(t, want, got)

		var payload struct {
			ID            int64    `json:"id"`
			EfficiencyPct *float64 `json:"efficiency_pct"`
		}
		require.NoError(t, json.Unmarshal(completed.Data, &payload))
		assert.Equal(t, order.ID, payload.ID)
		require.NotNil(t, payload.EfficiencyPct)
		assert.Equal(t, 95.0, *payload.EfficiencyPct)
	})
}

func TestAuthAndRoleEnforcement(t *testing.T) {
	srv := newTestServer(t, "file:integration_auth?mode=memory&cache=shared")
	admin := tokenFor(t, 1, "root", auth.RoleAdmin)
	supervisor := tokenFor(t, 7, "maja", auth.RoleSupervisor)
	operator := tokenFor(t, 4, "ines", auth.RoleOperator)

	status, raw := call(t, srv, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status, "health needs no credentials, body: %s", raw)

	status, raw = call(t, srv, http.MethodGet, "/api/orders", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, auth.CodeUnauthorized, errorCode(t, raw))

	status, raw = call(t, srv, http.MethodPost, "/api/machines", operator,
		map[string]any{"name": "CNC-01"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, auth.CodeForbidden, errorCode(t, raw))

	status, _ = call(t, srv, http.MethodGet, "/api/analytics/oee", operator, nil)
	assert.Equal(t, http.StatusForbidden, status)
	status, raw = call(t, srv, http.MethodGet, "/api/analytics/oee", supervisor, nil)
	assert.Equal(t, http.StatusOK, status, "body: %s", raw)

	// Cancelling is a supervisor call; the machine comes back to the pool.
	status, raw = call(t, srv, http.MethodPost, "/api/machines", admin,
		map[string]any{"name": "CNC-01"})
	require.Equal(t, http.StatusCreated, status)
	machine := decode[model.Machine](t, raw)

	status, raw = call(t, srv, http.MethodPost, "/api/orders", operator,
		map[string]any{"product_name": "bracket", "target_quantity": 100})
	require.Equal(t, http.StatusCreated, status)
	order := decode[model.Order](t, raw)
	status, _ = call(t, srv, http.MethodPost, fmt.Sprintf("/api/orders/%d/start", order.ID),
		operator, map[string]any{"machine_id": machine.ID})
	require.Equal(t, http.StatusOK, status)

	status, raw = call(t, srv, http.MethodPost, fmt.Sprintf("/api/orders/%d/cancel", order.ID),
		operator, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, auth.CodeForbidden, errorCode(t, raw))

	status, raw = call(t, srv, http.MethodPost, fmt.Sprintf("/api/orders/%d/cancel", order.ID),
		supervisor, nil)
	require.Equal(t, http.StatusOK, status, "body: %s", raw)
	cancelled := decode[model.Order](t, raw)
	assert.Equal(t, model.OrderCancelled, cancelled.Status)
	assert.True(t, cancelled.Archived)

	status, raw = call(t, srv, http.MethodGet, fmt.Sprintf("/api/machines/%d", machine.ID),
		operator, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, model.MachineAvailable, decode[model.Machine](t, raw).Status)

	// Archived orders leave the default listing.
	status, raw = call(t, srv, http.MethodGet, "/api/orders", operator, nil)
	require.Equal(t, http.StatusOK, status)
	var listing struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(raw, &listing))
	assert.Zero(t, listing.Count)
}

func TestDowntimeFlowOverHTTP(t *testing.T) {
	srv := newTestServer(t, "file:integration_downtime?mode=memory&cache=shared")
	admin := tokenFor(t, 1, "root", auth.RoleAdmin)
	supervisor := tokenFor(t, 7, "maja", auth.RoleSupervisor)
	operator := tokenFor(t, 4, "ines", auth.RoleOperator)

	status, raw := call(t, srv, http.MethodPost, "/api/machines", admin,
		map[string]any{"name": "CNC-01"})
	require.Equal(t, http.StatusCreated, status)
	machine := decode[model.Machine](t, raw)
	status, raw = call(t, srv, http.MethodPost, "/api/orders", operator,
		map[string]any{"product_name": "bracket", "target_quantity": 100})
	require.Equal(t, http.StatusCreated, status)
	order := decode[model.Order](t, raw)
	status, _ = call(t, srv, http.MethodPost, fmt.Sprintf("/api/orders/%d/start", order.ID),
		operator, map[string]any{"machine_id": machine.ID})
	require.Equal(t, http.StatusOK, status)

	start := time.Now().Add(-time.Hour).UTC().Truncate(time.Second)
	status, raw = call(t, srv, http.MethodPost, "/api/downtime", operator, map[string]any{
		"order_id":   order.ID,
		"reason":     "spindle failure",
		"category":   "equipment",
		"severity":   "high",
		"start_time": start.Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, status, "body: %s", raw)
	event := decode[model.DowntimeEvent](t, raw)
	assert.Equal(t, model.ResolutionPending, event.ResolutionStatus)

	status, raw = call(t, srv, http.MethodPost, fmt.Sprintf("/api/downtime/%d/resolve", event.ID),
		supervisor, map[string]any{"resolution_status": "investigating"})
	require.Equal(t, http.StatusOK, status, "body: %s", raw)

	// The resolution never moves backwards.
	status, raw = call(t, srv, http.MethodPost, fmt.Sprintf("/api/downtime/%d/resolve", event.ID),
		supervisor, map[string]any{"resolution_status": "pending"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, store.CodeInvalidTransition, errorCode(t, raw))

	end := start.Add(45 * time.Minute)
	status, raw = call(t, srv, http.MethodPost, fmt.Sprintf("/api/downtime/%d/resolve", event.ID),
		supervisor, map[string]any{
			"resolution_status": "resolved",
			"resolution_notes":  "bearing replaced",
			"end_time":          end.Format(time.RFC3339),
		})
	require.Equal(t, http.StatusOK, status, "body: %s", raw)
	event = decode[model.DowntimeEvent](t, raw)
	assert.Equal(t, model.ResolutionResolved, event.ResolutionStatus)
	assert.Equal(t, 45, event.DurationMinutes)
	require.NotNil(t, event.ResolvedBy)
	assert.Equal(t, int64(7), *event.ResolvedBy)

	status, raw = call(t, srv, http.MethodGet,
		fmt.Sprintf("/api/downtime?order_id=%d&status=resolved", order.ID), operator, nil)
	require.Equal(t, http.StatusOK, status)
	var listing struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(raw, &listing))
	assert.Equal(t, 1, listing.Count)

	from := start.Add(-time.Hour)
	to := time.Now().Add(time.Hour).UTC()
	status, raw = call(t, srv, http.MethodGet,
		fmt.Sprintf("/api/analytics/downtime?from=%s&to=%s",
			url.QueryEscape(from.Format(time.RFC3339)), url.QueryEscape(to.Format(time.RFC3339))),
		supervisor, nil)
	require.Equal(t, http.StatusOK, status, "body: %s", raw)
	summary := decode[analytics.DowntimeSummary](t, raw)
	assert.Equal(t, 1, summary.TotalEvents)
	assert.Equal(t, 1, summary.ResolvedEvents)
	assert.Equal(t, 45.0, summary.ByCategory["equipment"])
	require.NotEmpty(t, summary.TopReasons)
	assert.Equal(t, "spindle failure", summary.TopReasons[0].Reason)

	status, raw = call(t, srv, http.MethodGet,
		fmt.Sprintf("/api/analytics/oee?from=%s&to=%s",
			url.QueryEscape(from.Format(time.RFC3339)), url.QueryEscape(to.Format(time.RFC3339))),
		supervisor, nil)
	require.Equal(t, http.StatusOK, status, "body: %s", raw)
	report := decode[analytics.OEEReport](t, raw)
	assert.Equal(t, 1, report.Incidents)
	assert.Equal(t, 45.0, report.DowntimeMinutes)
	assert.Greater(t, report.PlannedMinutes, 0.0)
}
