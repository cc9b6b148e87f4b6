package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"hospital-queue/internal/core/services"
)

const defaultTelegramBaseURL = "https://api.telegram.org"

// TelegramSender posts selected queue events to a staff chat.
type TelegramSender struct {
	botToken   string
	chatID     string
	kinds      map[services.EventKind]bool
	httpClient *http.Client
	baseURL    string
}

// NewTelegramSender creates a sender for the given event kinds.
// With no kinds it forwards emergencies only.
func NewTelegramSender(botToken, chatID string, kinds ...services.EventKind) (*TelegramSender, error) {
	if botToken == "" || chatID == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID must be set")
	}
	if len(kinds) == 0 {
		kinds = []services.EventKind{services.EventEmergency}
	}
	set := make(map[services.EventKind]bool, len(kinds))
	for _, k := range kinds {
		set[k] = true
	}

	return &TelegramSender{
		botToken: botToken,
		chatID:   chatID,
		kinds:    set,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL: defaultTelegramBaseURL,
	}, nil
}

// WithBaseURL points the sender at another API host
func (s *TelegramSender) WithBaseURL(u string) *TelegramSender {
	s.baseURL = u
	return s
}

// Name implements services.Channel
func (s *TelegramSender) Name() string { return "telegram" }

type telegramMessage struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Send implements services.Channel. Unselected event kinds are ignored.
func (s *TelegramSender) Send(ctx context.Context, recipientRef string, event services.SSEEvent) error {
	if !s.kinds[event.Event] {
		return nil
	}

	body, err := json.Marshal(telegramMessage{ChatID: s.chatID, Text: formatMessage(recipientRef, event)})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.baseURL, s.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var out telegramResponse
	_ = json.Unmarshal(respBody, &out)
	if resp.StatusCode != http.StatusOK || !out.OK {
		return fmt.Errorf("telegram API error (status %d): %s", resp.StatusCode, out.Description)
	}
	return nil
}

func formatMessage(recipientRef string, event services.SSEEvent) string {
	token := event.Data["token_number"]
	dept := event.Data["department_id"]
	switch event.Event {
	case services.EventEmergency:
		return fmt.Sprintf("🚨 EMERGENCY: token %v in department %v needs immediate attention (%s)", token, dept, recipientRef)
	case services.EventReady:
		return fmt.Sprintf("🔔 Token %v is now being served in department %v", token, dept)
	case services.EventNearlyTurn:
		return fmt.Sprintf("⏰ Token %v: %v patients ahead", token, event.Data["waiting_ahead"])
	default:
		return fmt.Sprintf("ℹ️ %s for %s: token %v", event.Event, recipientRef, token)
	}
}
