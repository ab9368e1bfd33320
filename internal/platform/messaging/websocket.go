package messaging

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"taskpipe/internal/shared/events"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxClientFrame = 512
)

// Gateway upgrades HTTP requests to websocket connections and streams every
// hub message addressed to the audiences named in the query string:
// audience_type+audience_id and/or one or more broadcast classes.
type Gateway struct {
	hub      *Hub
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewGateway(hub *Hub, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		logger: logger,
	}
}

// AudienceChannels resolves the realtime channels a connection asks for.
func AudienceChannels(r *http.Request) []string {
	query := r.URL.Query()
	var channels []string
	audienceType := strings.TrimSpace(query.Get("audience_type"))
	audienceID := strings.TrimSpace(query.Get("audience_id"))
	if audienceType != "" && audienceID != "" {
		channels = append(channels, events.AudienceChannel(audienceType, audienceID))
	}
	for _, raw := range query["broadcast"] {
		for _, class := range strings.Split(raw, ",") {
			if strings.TrimSpace(class) != "" {
				channels = append(channels, events.BroadcastChannel(class))
			}
		}
	}
	return channels
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	channels := AudienceChannels(r)
	if len(channels) == 0 {
		http.Error(w, "audience_type and audience_id or broadcast is required", http.StatusBadRequest)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed",
			"event", "realtime_ws_upgrade_failed",
			"module", "internal/platform/messaging",
			"layer", "platform",
			"error", err.Error(),
		)
		return
	}

	stream, cancel := g.hub.Subscribe(channels)
	defer cancel()
	g.logger.Info("websocket client connected",
		"event", "realtime_ws_connected",
		"module", "internal/platform/messaging",
		"layer", "platform",
		"channels", channels,
	)

	closed := make(chan struct{})
	go g.readPump(conn, closed)
	g.writePump(conn, stream, closed)
}

// readPump drains client frames so control messages are processed and a
// disconnect is noticed.
func (g *Gateway) readPump(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	conn.SetReadLimit(maxClientFrame)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (g *Gateway) writePump(conn *websocket.Conn, stream <-chan Message, closed <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case <-closed:
			return
		case msg, ok := <-stream:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg.Payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
