package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/Huddle/internal/app/orch"
	"github.com/dkeye/Huddle/internal/config"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

const (
	defaultSendBuffer = 64
	defaultPingPeriod = 54 * time.Second
	writeWait         = 5 * time.Second
)

type SignalWSController struct {
	Orch    *orch.Orchestrator
	Limiter *RateLimiter
	// Typing has its own budget; frames over it are dropped silently.
	Typing *RateLimiter

	ReadLimit  int64
	PingPeriod time.Duration
	SendBuffer int
}

func NewSignalWSController(o *orch.Orchestrator, cfg *config.Config) *SignalWSController {
	return &SignalWSController{
		Orch:       o,
		Limiter:    NewRateLimiter(cfg.MessageRate.Limit, cfg.MessageRate.Interval),
		Typing:     NewRateLimiter(cfg.TypingRate.Limit, cfg.TypingRate.Interval),
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		SendBuffer: cfg.SendBuffer,
	}
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and serves the connection until either
// side closes it. Every socket gets its own connection id; the client token
// only ties sockets of one browser together in the logs.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	token := c.GetString("client_token")
	cid := core.ConnID(uuid.NewString())
	log.Info().Str("module", "signal").Str("conn", string(cid)).Str("token", token).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	buffer := ctl.SendBuffer
	if buffer <= 0 {
		buffer = defaultSendBuffer
	}
	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, buffer),
	}

	ctx, cancel := context.WithCancel(ctx)
	shutdown := func() {
		cancel()
		conn.Close()
	}
	ctl.Orch.Connect(cid, conn, shutdown, token)

	go ctl.writePump(ctx, cid, conn)
	go ctl.readPump(ctx, cid, conn, shutdown)
}

func (ctl *SignalWSController) pingPeriod() time.Duration {
	if ctl.PingPeriod > 0 {
		return ctl.PingPeriod
	}
	return defaultPingPeriod
}
