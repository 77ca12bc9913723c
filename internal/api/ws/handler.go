package ws

import (
	"net/http"
	"strings"
	"time"

	"github.com/GriffinCanCode/microhost/internal/shared/types"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = pongWait * 9 / 10
	maxMessage   = 4096
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in dev
	},
}

// EventSource publishes host events.
type EventSource interface {
	Subscribe(apps ...string) (<-chan types.Event, func())
}

// Metrics records stream activity.
type Metrics interface {
	IncWSConnections()
	DecWSConnections()
	RecordWSMessage(direction, msgType string)
}

type nopMetrics struct{}

func (nopMetrics) IncWSConnections()              {}
func (nopMetrics) DecWSConnections()              {}
func (nopMetrics) RecordWSMessage(string, string) {}

// Handler streams host events over WebSocket connections.
type Handler struct {
	events  EventSource
	metrics Metrics
	logger  *zap.Logger
}

// NewHandler creates a new WebSocket handler. metrics and logger may be nil.
func NewHandler(events EventSource, metrics Metrics, logger *zap.Logger) *Handler {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		events:  events,
		metrics: metrics,
		logger:  logger.Named("ws"),
	}
}

// HandleConnection upgrades the request and streams events until the client
// leaves. ?apps=a,b limits the stream to those apps.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	h.metrics.IncWSConnections()
	defer h.metrics.DecWSConnections()

	s := &stream{
		handler:  h,
		conn:     conn,
		incoming: make(chan types.WSMessage),
		closed:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	s.run(splitApps(c.Query("apps")))
}

// stream owns one connection. Only run writes to conn.
type stream struct {
	handler  *Handler
	conn     *websocket.Conn
	incoming chan types.WSMessage
	closed   chan struct{} // reader exited
	done     chan struct{} // writer exited
}

func (s *stream) run(apps []string) {
	defer close(s.done)
	go s.read()

	events, cancel := s.handler.events.Subscribe(apps...)
	defer func() { cancel() }()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	if err := s.send("system", gin.H{"message": "connected to microhost", "apps": apps}); err != nil {
		return
	}

	for {
		select {
		case event, ok := <-events:
			if !ok {
				s.close(websocket.CloseGoingAway, "host closed")
				return
			}
			if err := s.send(event.Type, event); err != nil {
				return
			}

		case msg := <-s.incoming:
			switch msg.Type {
			case "subscribe":
				cancel()
				apps = msg.Apps
				events, cancel = s.handler.events.Subscribe(apps...)
				if err := s.send("subscribed", gin.H{"apps": apps}); err != nil {
					return
				}
			case "ping":
				if err := s.send("pong", gin.H{}); err != nil {
					return
				}
			default:
				if err := s.sendError("unknown message type"); err != nil {
					return
				}
			}

		case <-ping.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-s.closed:
			return
		}
	}
}

// read forwards client messages until the connection fails.
func (s *stream) read() {
	defer close(s.closed)

	s.conn.SetReadLimit(maxMessage)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg types.WSMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.handler.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}
		s.handler.metrics.RecordWSMessage("in", msg.Type)

		select {
		case s.incoming <- msg:
		case <-s.done:
			return
		}
	}
}

func (s *stream) send(typ string, payload interface{}) error {
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	err := s.conn.WriteJSON(gin.H{
		"type":      typ,
		"payload":   payload,
		"timestamp": time.Now().Unix(),
	})
	if err == nil {
		s.handler.metrics.RecordWSMessage("out", typ)
	}
	return err
}

func (s *stream) sendError(msg string) error {
	return s.send("error", gin.H{"message": msg})
}

func (s *stream) close(code int, reason string) {
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(writeWait))
}

func splitApps(raw string) []string {
	var apps []string
	for _, name := range strings.Split(raw, ",") {
		if name = strings.TrimSpace(name); name != "" {
			apps = append(apps, name)
		}
	}
	return apps
}
