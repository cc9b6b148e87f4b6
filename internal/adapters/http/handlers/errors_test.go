package handlers

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hospital-queue/internal/adapters/http/middleware"
	"hospital-queue/internal/core/domain"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newErrorApp(out *lockedBuffer, err error) *fiber.App {
	app := fiber.New()
	app.Use(requestid.New(requestid.Config{Generator: func() string { return "req-1" }}))
	app.Use(middleware.RequestLogger(zerolog.New(out)))
	app.Get("/", func(c *fiber.Ctx) error {
		return writeQueueError(c, err, "Failed to do thing")
	})
	return app
}

func TestWriteQueueError_StatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"validation", domain.Validationf("bad"), http.StatusBadRequest},
		{"otp", domain.ErrOTPInvalid, http.StatusBadRequest},
		{"not found", domain.NotFoundf("department 9"), http.StatusNotFound},
		{"transition", domain.ErrNoWaitingPatients, http.StatusConflict},
		{"conflict", domain.ErrConflict, http.StatusConflict},
		{"rate limited", domain.ErrRateLimited, http.StatusTooManyRequests},
		{"unauthorized", domain.ErrUnauthorized, http.StatusUnauthorized},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := newErrorApp(&lockedBuffer{}, tc.err)
			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tc.want, resp.StatusCode)
		})
	}
}

func TestWriteQueueError_LogsThroughRequestLogger(t *testing.T) {
	out := &lockedBuffer{}
	app := newErrorApp(out, errors.New("disk on fire"))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	logged := out.String()
	assert.Contains(t, logged, "disk on fire")
	assert.Contains(t, logged, "Failed to do thing")
	assert.Contains(t, logged, `"request_id":"req-1"`)
}
