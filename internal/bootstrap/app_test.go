package bootstrap

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hospital-queue/internal/config"
	"hospital-queue/internal/core/domain"
	"hospital-queue/internal/pkg/jwt"
)

const testSecret = "test-secret"

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

type codeSink struct {
	mu   sync.Mutex
	last string
}

func (s *codeSink) SendOTP(ctx context.Context, phone, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = code
	return nil
}

func newTestApp(t *testing.T) (*App, *codeSink) {
	t.Helper()
	cfg := &config.Config{
		AppMode: "dev",
		JWT:     config.JWTConfig{Secret: testSecret, AccessTokenMins: 60},
		RateLimit: config.RateLimitConfig{
			Booking: 100,
			OTP:     100,
			Window:  time.Minute,
		},
		Queue: config.QueueConfig{NearlyTurnThreshold: 3},
	}
	sink := &codeSink{}
	a, err := New(context.Background(), cfg, MemoryStores(), zerolog.Nop(), WithOTPSender(sink))
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a, sink
}

func token(t *testing.T, userID uint, role domain.Role) string {
	t.Helper()
	tok, err := jwt.GenerateAccessToken(userID, "", string(role), testSecret, 60)
	require.NoError(t, err)
	return tok
}

func do(t *testing.T, a *App, method, path, bearer, body string) (int, envelope) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := a.Fiber.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp.StatusCode, env
}

func TestQueueFlowOverHTTP(t *testing.T) {
	a, _ := newTestApp(t)
	patient := token(t, 41, domain.RolePatient)
	staff := token(t, 900, domain.RoleStaff)

	// General Medicine of the first seeded hospital
	code, env := do(t, a, http.MethodPost, "/api/v1/queue/book", patient, `{"hospital_id":1,"department_id":2}`)
	require.Equal(t, http.StatusCreated, code, env.Error)
	var booked struct {
		TokenNumber int `json:"token_number"`
		Appointment struct {
			ID uint `json:"id"`
		} `json:"appointment"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &booked))
	assert.Equal(t, 1, booked.TokenNumber)

	code, _ = do(t, a, http.MethodGet, "/api/v1/queue/appointments/1/status", patient, "")
	assert.Equal(t, http.StatusOK, code)

	code, env = do(t, a, http.MethodPost, "/api/v1/staff/departments/2/call-next", staff, "")
	require.Equal(t, http.StatusOK, code, env.Error)

	// already serving token 1
	code, _ = do(t, a, http.MethodPost, "/api/v1/staff/departments/2/call-next", staff, "")
	assert.Equal(t, http.StatusConflict, code)

	code, env = do(t, a, http.MethodPatch, "/api/v1/staff/appointments/1/status", staff, `{"status":"completed"}`)
	require.Equal(t, http.StatusOK, code, env.Error)

	// terminal
	code, _ = do(t, a, http.MethodPost, "/api/v1/queue/appointments/1/cancel", patient, "")
	assert.Equal(t, http.StatusConflict, code)

	code, _ = do(t, a, http.MethodPost, "/api/v1/staff/departments/2/call-next", staff, "")
	assert.Equal(t, http.StatusConflict, code)

	code, env = do(t, a, http.MethodGet, "/api/v1/queue/my-appointments?page=1&limit=10", patient, "")
	require.Equal(t, http.StatusOK, code)
	var page struct {
		Items []json.RawMessage `json:"items"`
		Meta  struct {
			Total int64 `json:"total"`
		} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Len(t, page.Items, 1)
	assert.Equal(t, int64(1), page.Meta.Total)
}

func TestBookingErrorsOverHTTP(t *testing.T) {
	a, _ := newTestApp(t)
	patient := token(t, 41, domain.RolePatient)

	code, _ := do(t, a, http.MethodPost, "/api/v1/queue/book", patient, `{"hospital_id":1}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, a, http.MethodPost, "/api/v1/queue/book", patient, `{"hospital_id":1,"department_id":999}`)
	assert.Equal(t, http.StatusNotFound, code)

	// department of the second hospital
	code, _ = do(t, a, http.MethodPost, "/api/v1/queue/book", patient, `{"hospital_id":1,"department_id":7}`)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = do(t, a, http.MethodGet, "/api/v1/queue/appointments/abc/status", patient, "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAuthorization(t *testing.T) {
	a, _ := newTestApp(t)
	patient := token(t, 41, domain.RolePatient)

	code, _ := do(t, a, http.MethodPost, "/api/v1/queue/book", "", `{"hospital_id":1,"department_id":2}`)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = do(t, a, http.MethodPost, "/api/v1/queue/book", "garbage", `{"hospital_id":1,"department_id":2}`)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = do(t, a, http.MethodPost, "/api/v1/staff/departments/2/call-next", patient, "")
	assert.Equal(t, http.StatusForbidden, code)
}

func TestOTPLoginOverHTTP(t *testing.T) {
	a, sink := newTestApp(t)

	code, env := do(t, a, http.MethodPost, "/api/v1/auth/otp/request", "", `{"phone":"0812345678"}`)
	require.Equal(t, http.StatusOK, code, env.Error)

	code, _ = do(t, a, http.MethodPost, "/api/v1/auth/otp/verify", "", `{"phone":"0812345678","code":"abc"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	sink.mu.Lock()
	otp := sink.last
	sink.mu.Unlock()

	code, env = do(t, a, http.MethodPost, "/api/v1/auth/otp/verify", "", `{"phone":"0812345678","code":"`+otp+`","name":"Anan"}`)
	require.Equal(t, http.StatusOK, code, env.Error)
	var verified struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &verified))
	require.NotEmpty(t, verified.AccessToken)

	code, env = do(t, a, http.MethodPost, "/api/v1/queue/book", verified.AccessToken, `{"hospital_id":1,"department_id":3}`)
	assert.Equal(t, http.StatusCreated, code, env.Error)
}

func TestTriageOverHTTP(t *testing.T) {
	a, _ := newTestApp(t)

	code, env := do(t, a, http.MethodPost, "/api/v1/triage", "", `{"symptoms":"Severe chest pain and shortness of breath"}`)
	require.Equal(t, http.StatusOK, code, env.Error)
	var res struct {
		SeverityLevel           string `json:"severity_level"`
		NeedsImmediateAttention bool   `json:"needs_immediate_attention"`
		Source                  string `json:"source"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.True(t, res.NeedsImmediateAttention)
	assert.Equal(t, "rules", res.Source)

	code, _ = do(t, a, http.MethodPost, "/api/v1/triage", "", `{"symptoms":"   "}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestHealthAndDisplay(t *testing.T) {
	a, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	resp, err := a.Fiber.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health struct {
		Checks map[string]interface{} `json:"checks"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "memory", health.Checks["database"])
	assert.Equal(t, "disabled", health.Checks["triage_model"])

	code, env := do(t, a, http.MethodGet, "/api/v1/display/departments/2", "", "")
	require.Equal(t, http.StatusOK, code, env.Error)

	code, _ = do(t, a, http.MethodGet, "/api/v1/display/departments/999", "", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = do(t, a, http.MethodGet, "/api/v1/hospitals/1/departments", "", "")
	assert.Equal(t, http.StatusOK, code)

	code, _ = do(t, a, http.MethodGet, "/api/v1/nope", "", "")
	assert.Equal(t, http.StatusNotFound, code)
}
