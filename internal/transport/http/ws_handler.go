package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/vouchchat-server/internal/config"
	"github.com/vovakirdan/vouchchat-server/internal/metrics"
	"github.com/vovakirdan/vouchchat-server/internal/session"
	"github.com/vovakirdan/vouchchat-server/internal/utils"
)

// WSHandler upgrades HTTP connections and runs a session for each of them.
type WSHandler struct {
	registry session.Registrar
	upgrader websocket.Upgrader
	cfg      *config.Config
	log      *zerolog.Logger
	metrics  *metrics.Metrics
	newID    func() string
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(registry session.Registrar, cfg *config.Config, logger *zerolog.Logger, m *metrics.Metrics) *WSHandler {
	return &WSHandler{
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*stdhttp.Request) bool { return true },
		},
		cfg:     cfg,
		log:     logger,
		metrics: m,
		newID:   utils.NewID,
	}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("ws upgrade error")
		return
	}

	id := h.newID()
	wire := newWSConn(conn, h.cfg.MaxMessageBytes, h.cfg.WriteTimeout)
	sess := session.New(id, wire, h.registry, h.sessionConfig(), h.log, h.metrics)

	h.log.Info().Str("client_id", id).Str("remote", r.RemoteAddr).Msg("client connected")
	err = sess.Run(r.Context())

	switch {
	case isNormalClose(err):
		h.log.Info().Str("client_id", id).Msg("client disconnected")
	case errors.Is(err, session.ErrHeartbeatTimeout):
		h.log.Info().Str("client_id", id).Msg("client dropped after heartbeat timeout")
	case errors.Is(err, session.ErrSlowClient):
		h.log.Warn().Str("client_id", id).Msg("slow client dropped")
	default:
		h.log.Warn().Err(err).Str("client_id", id).Msg("ws connection closed with error")
	}
}

func (h *WSHandler) sessionConfig() session.Config {
	return session.Config{
		HeartbeatInterval: h.cfg.HeartbeatInterval,
		ClientTimeout:     h.cfg.ClientTimeout,
		WriteTimeout:      h.cfg.WriteTimeout,
		MailboxSize:       h.cfg.SessionBuffer,
		OutboundSize:      h.cfg.SessionBuffer,
	}
}

func isNormalClose(err error) bool {
	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
		return true
	}
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived)
}
