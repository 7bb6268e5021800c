package handler

import (
	"context"
	"database/sql"
	"net/http"
	"sync"
	"time"
)

const readinessTimeout = 5 * time.Second

// Health returns basic health check
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// HealthCheckResult represents the result of a health check
type HealthCheckResult struct {
	Status    string         `json:"status"`
	LatencyMs int64          `json:"latency_ms,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// BrokerStatus is satisfied by *messaging.RabbitMQ
type BrokerStatus interface {
	IsClosed() bool
}

// Ready reports readiness of the database and, when events are enabled, the
// broker. A nil broker is reported as disabled and does not fail readiness.
func Ready(db *sql.DB, broker BrokerStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		var (
			wg       sync.WaitGroup
			dbCheck  HealthCheckResult
			rmqCheck HealthCheckResult
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			dbCheck = checkDatabase(ctx, db)
		}()
		go func() {
			defer wg.Done()
			rmqCheck = checkBroker(broker)
		}()
		wg.Wait()

		response := map[string]any{
			"timestamp": time.Now().Format(time.RFC3339),
			"checks": map[string]HealthCheckResult{
				"database": dbCheck,
				"rabbitmq": rmqCheck,
			},
		}

		status := http.StatusOK
		response["status"] = "ready"
		if dbCheck.Status != "up" || rmqCheck.Status == "down" {
			status = http.StatusServiceUnavailable
			response["status"] = "not_ready"
		}

		writeJSON(w, status, response)
	}
}

func checkDatabase(ctx context.Context, db *sql.DB) HealthCheckResult {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	if err != nil {
		return HealthCheckResult{
			Status:    "down",
			LatencyMs: latency.Milliseconds(),
			Error:     err.Error(),
		}
	}

	stats := db.Stats()
	return HealthCheckResult{
		Status:    "up",
		LatencyMs: latency.Milliseconds(),
		Metadata: map[string]any{
			"connections_open":   stats.OpenConnections,
			"connections_in_use": stats.InUse,
			"connections_idle":   stats.Idle,
			"max_open":           stats.MaxOpenConnections,
		},
	}
}

func checkBroker(broker BrokerStatus) HealthCheckResult {
	if broker == nil {
		return HealthCheckResult{Status: "disabled"}
	}
	if broker.IsClosed() {
		return HealthCheckResult{
			Status: "down",
			Error:  "connection closed",
		}
	}
	return HealthCheckResult{Status: "up"}
}
