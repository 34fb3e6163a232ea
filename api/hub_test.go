package api

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"pricefuse/logger"
	"pricefuse/models"
)

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestLiveStreamBroadcast(t *testing.T) {
	srv, router := newTestRouter(t)

	ts := httptest.NewServer(router)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/live"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	waitFor(t, func() bool { return srv.hub.count() == 1 }, "client never registered with the hub")

	srv.hub.broadcast(liveFrame{
		Type: "composite",
		CompositeUpdate: models.CompositeUpdate{
			Asset:   "BTC",
			Version: 7,
			Health:  models.HealthDegraded,
		},
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame struct {
		Type    string              `json:"type"`
		Asset   string              `json:"asset"`
		Version uint64              `json:"version"`
		Health  models.HealthStatus `json:"health"`
	}
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}

	if frame.Type != "composite" {
		t.Errorf("frame type = %q, want composite", frame.Type)
	}
	if frame.Asset != "BTC" || frame.Version != 7 {
		t.Errorf("frame = %s v%d, want BTC v7", frame.Asset, frame.Version)
	}
	if frame.Health != models.HealthDegraded {
		t.Errorf("frame health = %q, want degraded", frame.Health)
	}
}

func TestHubDropsSlowClient(t *testing.T) {
	h := newHub(newTestEngine(t), 1, logger.GetLogger())

	c := &client{send: make(chan liveFrame, 1)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.broadcast(liveFrame{Type: "composite"})
	h.broadcast(liveFrame{Type: "composite"})

	if got := h.count(); got != 0 {
		t.Fatalf("clients = %d, want the stalled client dropped", got)
	}

	if _, ok := <-c.send; !ok {
		t.Fatal("expected the buffered frame to still be delivered")
	}
	if _, ok := <-c.send; ok {
		t.Fatal("expected a closed send channel after the drop")
	}
}

func TestHubRemoveIsIdempotent(t *testing.T) {
	h := newHub(newTestEngine(t), 4, logger.GetLogger())
	c := h.add(nil)

	h.remove(c)
	h.remove(c)

	if got := h.count(); got != 0 {
		t.Fatalf("clients = %d, want 0", got)
	}
	if _, ok := <-c.send; ok {
		t.Fatal("expected a closed send channel")
	}
}

func TestHubRunStopsOnContextCancel(t *testing.T) {
	h := newHub(newTestEngine(t), 4, logger.GetLogger())
	c := h.add(nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.run(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop on context cancellation")
	}

	if got := h.count(); got != 0 {
		t.Fatalf("clients = %d, want all disconnected", got)
	}
	if _, ok := <-c.send; ok {
		t.Fatal("expected closed client channels after shutdown")
	}
}
