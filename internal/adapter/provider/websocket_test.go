package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hive-corporation/threatpulse/internal/core/ports"
	"github.com/hive-corporation/threatpulse/pkg/log"
)

type batchRecorder struct {
	mu      sync.Mutex
	batches []ports.Batch
}

func (r *batchRecorder) handle(b ports.Batch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, b)
}

func (r *batchRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestWebSocketSource_ReceivesAndReconnects(t *testing.T) {
	var connections int32
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		n := atomic.AddInt32(&connections, 1)
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"system","data":"hello"}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"alert","data":{"id":"a`+string(rune('0'+n))+`"}}`))
		if n == 1 {
			conn.Close() // force a reconnect
			return
		}
		// keep the second connection open until the client leaves
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	src := NewWebSocketSource(url, nil, 20*time.Millisecond, log.NewNop())
	rec := &batchRecorder{}

	stop, err := src.Listen(context.Background(), rec.handle)
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}

	waitFor(t, func() bool { return rec.count() == 2 })
	if got := atomic.LoadInt32(&connections); got != 2 {
		t.Errorf("Expected 2 connections, got %d", got)
	}

	if err := stop(); err != nil {
		t.Errorf("stop returned error: %v", err)
	}
	stop()
}

func TestWebSocketSource_DialFailure(t *testing.T) {
	src := NewWebSocketSource("ws://127.0.0.1:1/feed", nil, 0, log.NewNop())

	if _, err := src.Listen(context.Background(), func(ports.Batch) {}); err == nil {
		t.Fatal("Expected dial error")
	}
}
