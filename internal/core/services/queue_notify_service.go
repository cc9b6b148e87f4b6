package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// EventKind names a queue notification
type EventKind string

const (
	EventBooked        EventKind = "booked"
	EventReady         EventKind = "ready"
	EventEmergency     EventKind = "emergency"
	EventStatusChanged EventKind = "status_changed"
	EventNearlyTurn    EventKind = "nearly_turn"
	EventQueueUpdate   EventKind = "queue_update"
)

// Recipient references
const (
	patientRefPrefix    = "patient:"
	departmentRefPrefix = "department:"
)

// PatientRef addresses a single patient
func PatientRef(patientID uint) string {
	return patientRefPrefix + strconv.FormatUint(uint64(patientID), 10)
}

// DepartmentRef addresses every display and client watching a department
func DepartmentRef(departmentID uint) string {
	return departmentRefPrefix + strconv.FormatUint(uint64(departmentID), 10)
}

// ParseRecipient splits a recipient reference into its kind and id.
func ParseRecipient(ref string) (kind string, id uint, err error) {
	parts := strings.SplitN(ref, ":", 2)
	if len(parts) != 2 {
		return "", 0, fmt.Errorf("malformed recipient %q", ref)
	}
	n, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("malformed recipient %q: %w", ref, err)
	}
	return parts[0], uint(n), nil
}

// ============================================================
// SSE Hub
// ============================================================

// SSEEvent represents a server-sent event
type SSEEvent struct {
	ID           string                 `json:"id"`
	Event        EventKind              `json:"event"`
	DepartmentID uint                   `json:"department_id,omitempty"`
	Data         map[string]interface{} `json:"data"`
	SentAt       time.Time              `json:"sent_at"`
}

// JSON encodes the event payload for the wire
func (e SSEEvent) JSON() []byte {
	b, _ := json.Marshal(e)
	return b
}

// SSEClient represents a connected SSE client
type SSEClient struct {
	ID           string
	PatientID    uint
	DepartmentID uint
	Channel      chan SSEEvent
	IsDisplay    bool // waiting-room screen, receives department broadcasts only
}

// NewSSEClient allocates a client with a buffered channel
func NewSSEClient(patientID, departmentID uint, isDisplay bool) *SSEClient {
	return &SSEClient{
		ID:           uuid.NewString(),
		PatientID:    patientID,
		DepartmentID: departmentID,
		Channel:      make(chan SSEEvent, 16),
		IsDisplay:    isDisplay,
	}
}

// SSEHub manages all SSE connections
type SSEHub struct {
	mu      sync.RWMutex
	clients map[string]*SSEClient
	log     zerolog.Logger
}

// NewSSEHub creates a new SSE hub
func NewSSEHub(log zerolog.Logger) *SSEHub {
	return &SSEHub{
		clients: make(map[string]*SSEClient),
		log:     log.With().Str("component", "sse").Logger(),
	}
}

// Register adds a new SSE client
func (h *SSEHub) Register(client *SSEClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
	h.log.Debug().
		Str("client_id", client.ID).
		Uint("patient_id", client.PatientID).
		Uint("department_id", client.DepartmentID).
		Bool("display", client.IsDisplay).
		Int("total", len(h.clients)).
		Msg("sse client registered")
}

// Unregister removes an SSE client
func (h *SSEHub) Unregister(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if client, ok := h.clients[clientID]; ok {
		close(client.Channel)
		delete(h.clients, clientID)
		h.log.Debug().Str("client_id", clientID).Int("total", len(h.clients)).Msg("sse client unregistered")
	}
}

// BroadcastToDepartment sends an event to all clients watching a department
func (h *SSEHub) BroadcastToDepartment(departmentID uint, event SSEEvent) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	event.DepartmentID = departmentID
	sent := 0
	for _, client := range h.clients {
		if client.DepartmentID != departmentID {
			continue
		}
		select {
		case client.Channel <- event:
			sent++
		default:
			h.log.Warn().Str("client_id", client.ID).Msg("sse channel full, dropping event")
		}
	}
	return sent
}

// SendToPatient sends an event to every non-display client of a patient
func (h *SSEHub) SendToPatient(patientID uint, event SSEEvent) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for _, client := range h.clients {
		if client.PatientID != patientID || client.IsDisplay {
			continue
		}
		select {
		case client.Channel <- event:
			sent++
		default:
			h.log.Warn().Uint("patient_id", patientID).Msg("sse channel full, dropping event")
		}
	}
	return sent
}

// GetClientCount returns the number of connected clients
func (h *SSEHub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ============================================================
// QueueNotifyService: SSE + outbound channels
// ============================================================

// Channel delivers a notification outside the process (pub/sub, chat bot).
type Channel interface {
	Name() string
	Send(ctx context.Context, recipientRef string, event SSEEvent) error
}

// QueueNotifyService implements Notifier. SSE delivery is immediate and
// non-blocking; outbound channels run in their own goroutines with a
// bounded timeout and failures are only logged.
type QueueNotifyService struct {
	Hub      *SSEHub
	channels []Channel
	timeout  time.Duration
	log      zerolog.Logger
	wg       sync.WaitGroup
}

// NewQueueNotifyService creates a new notification service
func NewQueueNotifyService(hub *SSEHub, log zerolog.Logger, channels ...Channel) *QueueNotifyService {
	l := log.With().Str("component", "notifier").Logger()
	if len(channels) == 0 {
		l.Info().Msg("no outbound notification channels configured, SSE only")
	}
	return &QueueNotifyService{
		Hub:      hub,
		channels: channels,
		timeout:  10 * time.Second,
		log:      l,
	}
}

// Notify dispatches an event to a recipient reference.
func (n *QueueNotifyService) Notify(ctx context.Context, recipientRef string, eventKind EventKind, payload map[string]interface{}) {
	event := SSEEvent{
		ID:     uuid.NewString(),
		Event:  eventKind,
		Data:   payload,
		SentAt: time.Now(),
	}

	kind, id, err := ParseRecipient(recipientRef)
	if err != nil {
		n.log.Warn().Err(err).Msg("notification dropped")
		return
	}

	switch kind {
	case "patient":
		n.Hub.SendToPatient(id, event)
	case "department":
		n.Hub.BroadcastToDepartment(id, event)
	default:
		n.log.Warn().Str("recipient", recipientRef).Msg("unknown recipient kind, skipping sse")
	}

	for _, ch := range n.channels {
		n.wg.Add(1)
		go func(ch Channel) {
			defer n.wg.Done()
			sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
			defer cancel()
			if err := ch.Send(sendCtx, recipientRef, event); err != nil {
				n.log.Warn().Err(err).
					Str("channel", ch.Name()).
					Str("recipient", recipientRef).
					Str("event", string(eventKind)).
					Msg("notification delivery failed")
			}
		}(ch)
	}
}

// Wait blocks until in-flight outbound deliveries finish.
func (n *QueueNotifyService) Wait() {
	n.wg.Wait()
}
