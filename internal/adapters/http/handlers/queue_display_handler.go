package handlers

import (
	"bufio"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"hospital-queue/internal/core/services"
	"hospital-queue/internal/pkg/response"
)

// heartbeatInterval keeps idle proxies from closing the stream
const heartbeatInterval = 30 * time.Second

// QueueDisplayHandler handles waiting-room display and live event streams
type QueueDisplayHandler struct {
	queueService *services.QueueService
	hub          *services.SSEHub
}

// NewQueueDisplayHandler creates a new display handler
func NewQueueDisplayHandler(queueService *services.QueueService, hub *services.SSEHub) *QueueDisplayHandler {
	return &QueueDisplayHandler{
		queueService: queueService,
		hub:          hub,
	}
}

// displayEntry is what a waiting-room screen shows per appointment
type displayEntry struct {
	TokenNumber int    `json:"token_number"`
	Status      string `json:"status"`
}

// GetDisplayData returns the current token and the line, without patient data
// @Summary Department display data
// @Tags Display
// @Produce json
// @Param id path int true "Department ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /display/departments/{id} [get]
func (h *QueueDisplayHandler) GetDisplayData(c *fiber.Ctx) error {
	departmentID, ok := paramID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid department ID")
	}

	dash, err := h.queueService.GetDashboard(c.UserContext(), departmentID)
	if err != nil {
		return writeQueueError(c, err, "Failed to get display data")
	}

	line := make([]displayEntry, 0, len(dash.WaitingList))
	for _, a := range dash.WaitingList {
		line = append(line, displayEntry{TokenNumber: a.TokenNumber, Status: string(a.Status)})
	}
	var serving *displayEntry
	if dash.Serving != nil {
		serving = &displayEntry{TokenNumber: dash.Serving.TokenNumber, Status: string(dash.Serving.Status)}
	}

	return response.Success(c, "Display data retrieved", fiber.Map{
		"department":    dash.Department.Name,
		"current_token": dash.Department.CurrentToken,
		"serving":       serving,
		"waiting":       line,
	})
}

// DisplaySSE streams department events to a waiting-room screen (public)
// @Summary Department event stream
// @Tags Display
// @Produce text/event-stream
// @Param id path int true "Department ID"
// @Router /display/departments/{id}/events [get]
func (h *QueueDisplayHandler) DisplaySSE(c *fiber.Ctx) error {
	departmentID, ok := paramID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid department ID")
	}
	if _, err := h.queueService.GetDepartment(c.UserContext(), departmentID); err != nil {
		return writeQueueError(c, err, "Failed to open stream")
	}

	return h.stream(c, services.NewSSEClient(0, departmentID, true))
}

// PatientSSE streams the caller's own events plus their department's
// @Summary Patient event stream
// @Tags Queue
// @Produce text/event-stream
// @Security BearerAuth
// @Param department_id query int false "Department to follow"
// @Router /queue/events [get]
func (h *QueueDisplayHandler) PatientSSE(c *fiber.Ctx) error {
	patientID, ok := currentUser(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}
	departmentID := uint(c.QueryInt("department_id", 0))

	return h.stream(c, services.NewSSEClient(patientID, departmentID, false))
}

func (h *QueueDisplayHandler) stream(c *fiber.Ctx, client *services.SSEClient) error {
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("Transfer-Encoding", "chunked")

	// c is recycled once the handler returns, so capture the logger now
	log := zerolog.Ctx(c.UserContext()).With().Str("client_id", client.ID).Logger()

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		h.hub.Register(client)
		defer h.hub.Unregister(client.ID)

		fmt.Fprintf(w, "event: connected\ndata: {\"client_id\":%q,\"department_id\":%d}\n\n", client.ID, client.DepartmentID)
		if err := w.Flush(); err != nil {
			return
		}

		heartbeat := time.NewTicker(heartbeatInterval)
		defer heartbeat.Stop()

		for {
			select {
			case event, ok := <-client.Channel:
				if !ok {
					return
				}
				writeSSEEvent(w, event)
				if err := w.Flush(); err != nil {
					log.Debug().Msg("sse client disconnected")
					return
				}

			case <-heartbeat.C:
				fmt.Fprintf(w, ": heartbeat\n\n")
				if err := w.Flush(); err != nil {
					log.Debug().Msg("sse client disconnected")
					return
				}
			}
		}
	})

	return nil
}

// writeSSEEvent writes a formatted SSE event to the writer
func writeSSEEvent(w *bufio.Writer, event services.SSEEvent) {
	fmt.Fprintf(w, "id: %s\n", event.ID)
	fmt.Fprintf(w, "event: %s\n", event.Event)
	fmt.Fprintf(w, "data: %s\n\n", event.JSON())
}
