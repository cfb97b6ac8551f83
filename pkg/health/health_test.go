package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(context.Context) error { return nil }

func TestRun(t *testing.T) {
	t.Parallel()

	t.Run("no checks", func(t *testing.T) {
		t.Parallel()

		assert.Equal(t, StatusHealthy, Run(context.Background(), nil).Status)
	})

	t.Run("one failure marks the report unhealthy", func(t *testing.T) {
		t.Parallel()

		resp := Run(context.Background(), Checks{
			"db":    ok,
			"redis": func(context.Context) error { return errors.New("connection refused") },
		})
		assert.Equal(t, StatusUnhealthy, resp.Status)
		assert.Equal(t, Check{Status: StatusHealthy}, resp.Checks["db"])
		assert.Equal(t, Check{Status: StatusUnhealthy, Error: "connection refused"}, resp.Checks["redis"])
	})

	t.Run("timeout is shared by all checks", func(t *testing.T) {
		t.Parallel()

		slow := func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}
		resp := Run(context.Background(), Checks{"slow": slow}, WithTimeout(10*time.Millisecond))
		assert.Equal(t, StatusUnhealthy, resp.Status)
		assert.Contains(t, resp.Checks["slow"].Error, "deadline exceeded")
	})
}

func TestHandlers(t *testing.T) {
	t.Parallel()

	t.Run("liveness", func(t *testing.T) {
		t.Parallel()

		rec := httptest.NewRecorder()
		LivenessHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
	})

	t.Run("readiness healthy", func(t *testing.T) {
		t.Parallel()

		rec := httptest.NewRecorder()
		ReadinessHandler(Checks{"db": ok}, WithLogger(nil))(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	})

	t.Run("readiness unhealthy", func(t *testing.T) {
		t.Parallel()

		rec := httptest.NewRecorder()
		ReadinessHandler(Checks{"jobs": func(context.Context) error { return errors.New("not started") }})(
			rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

		var resp Response
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, StatusUnhealthy, resp.Status)
		assert.Equal(t, "not started", resp.Checks["jobs"].Error)
	})
}
