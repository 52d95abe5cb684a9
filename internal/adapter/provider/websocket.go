package provider

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hive-corporation/threatpulse/internal/core/ports"
	"github.com/hive-corporation/threatpulse/pkg/log"
)

const DefaultReconnectDelay = 5 * time.Second

// WebSocketSource keeps a client connection to a real-time feed and
// reconnects after a fixed delay whenever it drops.
type WebSocketSource struct {
	url            string
	header         http.Header
	dialer         *websocket.Dialer
	reconnectDelay time.Duration
	logger         log.Logger
}

func NewWebSocketSource(url string, header http.Header, reconnectDelay time.Duration, logger log.Logger) *WebSocketSource {
	if reconnectDelay <= 0 {
		reconnectDelay = DefaultReconnectDelay
	}
	return &WebSocketSource{
		url:            url,
		header:         header,
		dialer:         websocket.DefaultDialer,
		reconnectDelay: reconnectDelay,
		logger:         logger,
	}
}

func (s *WebSocketSource) Name() string {
	return "websocket"
}

// Listen dials once synchronously so a bad URL fails fast; afterwards the
// connection is maintained in the background until stop or ctx is done.
func (s *WebSocketSource) Listen(ctx context.Context, handler func(ports.Batch)) (func() error, error) {
	conn, _, err := s.dialer.DialContext(ctx, s.url, s.header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", s.url, err)
	}
	s.logger.Infof(ctx, "provider.WebSocketSource.Listen: connected to %s", s.url)

	ctx, cancel := context.WithCancel(ctx)

	var mu sync.Mutex
	current := conn

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			mu.Lock()
			c := current
			mu.Unlock()

			s.read(ctx, c, handler)
			c.Close()

			next, ok := s.reconnect(ctx)
			if !ok {
				return
			}
			mu.Lock()
			current = next
			mu.Unlock()
		}
	}()

	var once sync.Once
	return func() error {
		once.Do(func() {
			cancel()
			mu.Lock()
			current.Close()
			mu.Unlock()
			wg.Wait()
		})
		return nil
	}, nil
}

func (s *WebSocketSource) read(ctx context.Context, conn *websocket.Conn, handler func(ports.Batch)) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Warnf(ctx, "provider.WebSocketSource.read: connection lost: %v", err)
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		deliver(ctx, s.logger, "WebSocketSource", raw, handler)
	}
}

func (s *WebSocketSource) reconnect(ctx context.Context) (*websocket.Conn, bool) {
	for {
		select {
		case <-ctx.Done():
			return nil, false
		case <-time.After(s.reconnectDelay):
		}

		conn, _, err := s.dialer.DialContext(ctx, s.url, s.header)
		if err == nil {
			s.logger.Infof(ctx, "provider.WebSocketSource.reconnect: reconnected to %s", s.url)
			return conn, true
		}
		s.logger.Warnf(ctx, "provider.WebSocketSource.reconnect: %v", err)
	}
}
