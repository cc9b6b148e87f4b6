package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hospital-queue/internal/core/services"
)

func TestNewTelegramSender_RequiresCredentials(t *testing.T) {
	_, err := NewTelegramSender("", "123")
	assert.Error(t, err)
	_, err = NewTelegramSender("token", "")
	assert.Error(t, err)
}

func TestTelegramSender_Send(t *testing.T) {
	var got telegramMessage
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	sender, err := NewTelegramSender("abc", "-10042")
	require.NoError(t, err)
	sender.WithBaseURL(server.URL)

	err = sender.Send(context.Background(), services.PatientRef(7), services.SSEEvent{
		Event: services.EventEmergency,
		Data:  map[string]interface{}{"token_number": 12, "department_id": 3},
	})
	require.NoError(t, err)

	assert.Equal(t, "/botabc/sendMessage", path)
	assert.Equal(t, "-10042", got.ChatID)
	assert.True(t, strings.Contains(got.Text, "token 12"))
}

func TestTelegramSender_IgnoresUnselectedKinds(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	sender, err := NewTelegramSender("abc", "1")
	require.NoError(t, err)
	sender.WithBaseURL(server.URL)

	err = sender.Send(context.Background(), services.PatientRef(1), services.SSEEvent{Event: services.EventBooked})
	require.NoError(t, err)
	assert.False(t, called)
}

func TestTelegramSender_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
	}))
	defer server.Close()

	sender, err := NewTelegramSender("abc", "1", services.EventReady)
	require.NoError(t, err)
	sender.WithBaseURL(server.URL)

	err = sender.Send(context.Background(), services.DepartmentRef(2), services.SSEEvent{Event: services.EventReady})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}
