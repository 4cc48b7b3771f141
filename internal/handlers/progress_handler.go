package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/xpanvictor/xscribe/pkg/Logger"
	"github.com/xpanvictor/xscribe/pkg/io/registry"
)

const writeWait = 10 * time.Second

// ProgressHandler streams job progress over a websocket
type ProgressHandler struct {
	registry registry.Registry
	logger   *Logger.Logger
	upgrader websocket.Upgrader
}

func NewProgressHandler(reg registry.Registry, logger *Logger.Logger) *ProgressHandler {
	return &ProgressHandler{
		registry: reg,
		logger:   logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// TODO: restrict origins once the web client has a fixed host
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// HandleJobProgress pushes {stage, label, progress} events until the job
// finishes, then sends a close frame.
// @Router /ws/jobs/{id} [get]
func (h *ProgressHandler) HandleJobProgress(c *gin.Context) {
	id, ok := parseID(c, "Job")
	if !ok {
		return
	}
	events, cancel, err := h.registry.Subscribe(id)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Job not found"})
		return
	}
	defer cancel()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// read pump: only used to notice the client going away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			h.logger.Debugf("progress client for job %s left", id)
			return
		case p, open := <-events:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !open {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job finished"))
				return
			}
			if err := conn.WriteJSON(p); err != nil {
				h.logger.Debugf("progress write for job %s failed: %v", id, err)
				return
			}
		}
	}
}

// progressValue is a float shared between a loader goroutine and readers.
type progressValue struct {
	mu sync.Mutex
	v  float64
}

func (p *progressValue) set(v float64) {
	p.mu.Lock()
	p.v = v
	p.mu.Unlock()
}

func (p *progressValue) get() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.v
}
