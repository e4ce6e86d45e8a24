package http

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/vouchchat-server/internal/config"
	"github.com/vovakirdan/vouchchat-server/internal/core"
	"github.com/vovakirdan/vouchchat-server/internal/metrics"
	"github.com/vovakirdan/vouchchat-server/internal/proto"
)

type testServer struct {
	*httptest.Server
	registry *core.Registry
	promReg  *prometheus.Registry
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.HeartbeatInterval = time.Minute
	cfg.ClientTimeout = 2 * time.Minute
	return cfg
}

func startTestServer(t *testing.T, cfg config.Config) *testServer {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	disabledLogger := zerolog.New(nil)
	promReg := prometheus.NewRegistry()
	m := metrics.New(metrics.WithRegistry(promReg))

	registry := core.NewRegistry(cfg.RegistryBuffer, &disabledLogger, m)
	go registry.Run(ctx)

	router := NewRouter(registry, &cfg, &disabledLogger, WithMetrics(m, promReg))
	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)

	return &testServer{Server: ts, registry: registry, promReg: promReg}
}

func (ts *testServer) wsURL() string {
	return strings.Replace(ts.URL, "http", "ws", 1) + "/ws"
}

type testPeer struct {
	t    *testing.T
	ctx  context.Context
	conn *websocket.Conn
	id   string
}

// dialPeer connects and consumes the id handshake.
func dialPeer(t *testing.T, ctx context.Context, ts *testServer) *testPeer {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, ts.wsURL(), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })

	p := &testPeer{t: t, ctx: ctx, conn: conn}
	frame := p.read()
	if frame.Kind != proto.FramePlain || len(frame.Plain) != 16 {
		t.Fatalf("expected id handshake, got %+v", frame)
	}
	p.id = frame.Plain
	return p
}

func (p *testPeer) read() proto.ServerFrame {
	p.t.Helper()
	typ, data, err := p.conn.Read(p.ctx)
	if err != nil {
		p.t.Fatalf("read: %v", err)
	}
	if typ != websocket.MessageText {
		p.t.Fatalf("unexpected message type %v", typ)
	}
	return proto.DecodeServerFrame(data)
}

// readUntil skips frames until match returns true.
func (p *testPeer) readUntil(match func(proto.ServerFrame) bool) proto.ServerFrame {
	p.t.Helper()
	for {
		frame := p.read()
		if match(frame) {
			return frame
		}
	}
}

func (p *testPeer) write(data []byte, err error) {
	p.t.Helper()
	if err != nil {
		p.t.Fatalf("encode: %v", err)
	}
	if err := p.conn.Write(p.ctx, websocket.MessageText, data); err != nil {
		p.t.Fatalf("write: %v", err)
	}
}

func isState(state, room string) func(proto.ServerFrame) bool {
	return func(f proto.ServerFrame) bool {
		return f.Kind == proto.FrameState && f.State == state && f.Room == room
	}
}

func isServerText(substr string) func(proto.ServerFrame) bool {
	return func(f proto.ServerFrame) bool {
		return f.Kind == proto.FrameText && f.Text.ID == core.ServerSender && strings.Contains(f.Text.Message, substr)
	}
}
