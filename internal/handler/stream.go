package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"schoolbus/internal/domain"
	"schoolbus/internal/middleware"
	"schoolbus/internal/service"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// StreamMessage is one frame pushed to a viewer.
type StreamMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// StreamHandler pushes a full snapshot to websocket viewers after every change.
type StreamHandler struct {
	viewer   *service.ViewerService
	sessions middleware.SessionResolver
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewStreamHandler creates a new StreamHandler.
func NewStreamHandler(viewer *service.ViewerService, sessions middleware.SessionResolver, logger *slog.Logger) *StreamHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamHandler{
		viewer:   viewer,
		sessions: sessions,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Riders handles GET /v1/stream/riders. With guardian_id the stream carries only
// that guardian's riders and requires the guardian's session.
func (h *StreamHandler) Riders(c *gin.Context) {
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	var (
		stream <-chan []*domain.Rider
		err    error
	)
	if guardianID := c.Query("guardian_id"); guardianID != "" {
		session, serr := h.sessions.Session(ctx, middleware.SessionToken(c))
		if serr != nil {
			respondError(c, serr)
			return
		}
		if session.Identity != guardianID {
			c.JSON(http.StatusForbidden, ErrorResponse{Error: "session does not match " + guardianID})
			return
		}
		stream, err = h.viewer.WatchGuardianRiders(ctx, guardianID)
	} else {
		stream, err = h.viewer.WatchRiders(ctx)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	pump(ctx, cancel, conn, h.logger, "riders", stream, toRiderResponses)
}

// Vehicles handles GET /v1/stream/vehicles.
func (h *StreamHandler) Vehicles(c *gin.Context) {
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	stream, err := h.viewer.WatchVehicles(ctx)
	if err != nil {
		respondError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	pump(ctx, cancel, conn, h.logger, "vehicles", stream, toVehicleResponses)
}

// pump writes every snapshot from stream to conn until the client goes away or
// the stream ends. The read loop only watches for close and pong frames.
func pump[T, R any](
	ctx context.Context,
	cancel context.CancelFunc,
	conn *websocket.Conn,
	logger *slog.Logger,
	kind string,
	stream <-chan T,
	convert func(T) R,
) {
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case snapshot, ok := <-stream:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(StreamMessage{Type: kind, Data: convert(snapshot)}); err != nil {
				logger.Debug("stream write failed", slog.String("stream", kind), slog.String("error", err.Error()))
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
