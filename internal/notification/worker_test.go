package notification

import (
	"bytes"
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// mockSender is a mock implementation of the Sender interface.
type mockSender struct {
	SendFunc func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

func (m *mockSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return m.SendFunc(payload, sub, options)
}

type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// A helper function to create a mock database connection.
func newTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

func TestWorkerPoolDispatch(t *testing.T) {
	db, _ := newTestDB(t)
	wp := NewWorkerPool(1, db, &webpush.Options{}, nopLogger{})

	wp.Dispatch(123)

	select {
	case job := <-wp.jobs:
		assert.Equal(t, int64(123), job)
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for job to be dispatched")
	}
}

func TestWorkerPoolDispatchNeverBlocks(t *testing.T) {
	db, _ := newTestDB(t)
	// No workers started, so the single-slot buffer fills immediately.
	wp := NewWorkerPool(1, db, &webpush.Options{}, nopLogger{})

	done := make(chan struct{})
	go func() {
		wp.Dispatch(1)
		wp.Dispatch(2)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("dispatch blocked on a full queue")
	}
	assert.Equal(t, int64(1), <-wp.jobs)
	assert.Len(t, wp.jobs, 0)
}

func TestEligibleMinSeverities(t *testing.T) {
	assert.Equal(t, []string{"low"}, eligibleMinSeverities("low"))
	assert.Equal(t, []string{"low", "medium", "high"}, eligibleMinSeverities("high"))
	assert.Equal(t, []string{"low", "medium", "high", "critical"}, eligibleMinSeverities("critical"))
	// Unknown severities fall back to the medium threshold.
	assert.Equal(t, []string{"low", "medium"}, eligibleMinSeverities("weird"))
}

func TestWorkerLogic(t *testing.T) {
	gormDB, mock := newTestDB(t)
	wp := NewWorkerPool(1, gormDB, &webpush.Options{}, nopLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wp.Start(ctx)

	expectEvent := func(eventID, orderID int64, reason, severity string) {
		mock.ExpectQuery(`SELECT \* FROM "downtime_events" WHERE "downtime_events"\."id" = \$1 ORDER BY "downtime_events"\."id" LIMIT \$[0-9]+`).
			WithArgs(eventID, 1).
			WillReturnRows(sqlmock.NewRows([]string{"id", "order_id", "reason", "severity", "duration_minutes", "start_time"}).
				AddRow(eventID, orderID, reason, severity, 45, time.Now()))
	}

	expectSubscriptions := func(severities []driver.Value, endpoint string) {
		mock.ExpectQuery(`SELECT \* FROM "alert_subscriptions" WHERE min_severity IN \(.+\)`).
			WithArgs(severities...).
			WillReturnRows(sqlmock.NewRows([]string{"endpoint", "p256dh", "auth", "user_id", "min_severity", "created_at"}).
				AddRow(endpoint, "test_p256dh", "test_auth", 7, "low", time.Now()))
	}

	t.Run("pages an eligible subscriber", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(1)

		eventID := int64(201)
		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				assert.Equal(t, "https://example.com/push", sub.Endpoint)
				var alert alertPayload
				assert.NoError(t, json.Unmarshal(payload, &alert))
				assert.Equal(t, "Downtime reported", alert.Title)
				assert.Equal(t, "belt snapped on order ORD-20260301-A1 (high severity)", alert.Body)
				assert.Equal(t, "high", alert.Severity)
				assert.Equal(t, eventID, alert.DowntimeID)
				wg.Done()
				return &http.Response{
					StatusCode: http.StatusCreated,
					Body:       io.NopCloser(bytes.NewBufferString("")),
				}, nil
			},
		}

		expectEvent(eventID, 11, "belt snapped", "high")
		expectSubscriptions([]driver.Value{"low", "medium", "high"}, "https://example.com/push")
		mock.ExpectQuery(`SELECT "order_number" FROM "production_orders" WHERE "production_orders"\."id" = \$1 ORDER BY "production_orders"\."id" LIMIT \$[0-9]+`).
			WithArgs(int64(11), 1).
			WillReturnRows(sqlmock.NewRows([]string{"order_number"}).AddRow("ORD-20260301-A1"))

		wp.Dispatch(eventID)
		wg.Wait()
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("deletes expired subscription", func(t *testing.T) {
		eventID := int64(202)
		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				return &http.Response{
					StatusCode: http.StatusGone,
					Body:       io.NopCloser(bytes.NewBufferString("")),
				}, nil
			},
		}

		expectEvent(eventID, 12, "power loss", "critical")
		expectSubscriptions([]driver.Value{"low", "medium", "high", "critical"}, "https://example.com/expired")
		mock.ExpectQuery(`SELECT "order_number" FROM "production_orders" WHERE "production_orders"\."id" = \$1 ORDER BY "production_orders"\."id" LIMIT \$[0-9]+`).
			WithArgs(int64(12), 1).
			WillReturnRows(sqlmock.NewRows([]string{"order_number"}).AddRow("ORD-20260301-B2"))

		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM "alert_subscriptions" WHERE "alert_subscriptions"\."endpoint" = \$1`).
			WithArgs("https://example.com/expired").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		wp.Dispatch(eventID)

		// A short sleep to allow the worker to process the job
		time.Sleep(100 * time.Millisecond)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("falls back to order ID when lookup fails", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(1)

		eventID := int64(203)
		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				var alert alertPayload
				assert.NoError(t, json.Unmarshal(payload, &alert))
				assert.Equal(t, "jam cleared late on order #13 (medium severity)", alert.Body)
				wg.Done()
				return &http.Response{
					StatusCode: http.StatusCreated,
					Body:       io.NopCloser(bytes.NewBufferString("")),
				}, nil
			},
		}

		expectEvent(eventID, 13, "jam cleared late", "medium")
		expectSubscriptions([]driver.Value{"low", "medium"}, "https://example.com/fallback")
		mock.ExpectQuery(`SELECT "order_number" FROM "production_orders" WHERE "production_orders"\."id" = \$1 ORDER BY "production_orders"\."id" LIMIT \$[0-9]+`).
			WithArgs(int64(13), 1).
			WillReturnError(fmt.Errorf("order not found"))

		wp.Dispatch(eventID)
		wg.Wait()
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
