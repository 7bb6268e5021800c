package handler

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pairchat/internal/testutil"
)

type fakeBroker struct {
	closed bool
}

func (b *fakeBroker) IsClosed() bool { return b.closed }

type readyResponse struct {
	Status string                       `json:"status"`
	Checks map[string]HealthCheckResult `json:"checks"`
}

func TestHealth_ReturnsOK(t *testing.T) {
	w := httptest.NewRecorder()
	Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	testutil.AssertStatusCode(t, w, http.StatusOK)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestReady(t *testing.T) {
	tests := []struct {
		name       string
		pingErr    error
		broker     BrokerStatus
		wantStatus int
		wantState  string
		wantRMQ    string
	}{
		{name: "all up", broker: &fakeBroker{}, wantStatus: http.StatusOK, wantState: "ready", wantRMQ: "up"},
		{name: "events disabled", broker: nil, wantStatus: http.StatusOK, wantState: "ready", wantRMQ: "disabled"},
		{name: "broker closed", broker: &fakeBroker{closed: true}, wantStatus: http.StatusServiceUnavailable, wantState: "not_ready", wantRMQ: "down"},
		{name: "database down", pingErr: errors.New("connection refused"), broker: &fakeBroker{}, wantStatus: http.StatusServiceUnavailable, wantState: "not_ready", wantRMQ: "up"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
			require.NoError(t, err)
			defer db.Close()
			mock.ExpectPing().WillReturnError(tt.pingErr)

			w := httptest.NewRecorder()
			Ready(db, tt.broker)(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			testutil.AssertStatusCode(t, w, tt.wantStatus)
			resp := testutil.DecodeJSON[readyResponse](t, w)
			assert.Equal(t, tt.wantState, resp.Status)
			assert.Equal(t, tt.wantRMQ, resp.Checks["rabbitmq"].Status)
			if tt.pingErr != nil {
				assert.Equal(t, "down", resp.Checks["database"].Status)
				assert.Equal(t, "connection refused", resp.Checks["database"].Error)
			} else {
				assert.Equal(t, "up", resp.Checks["database"].Status)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
