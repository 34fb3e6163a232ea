package telemetry

import (
	"sync"
	"time"

	"pricefuse/models"
)

// Tracker accumulates one venue adapter's session counters. Adapters write
// from their read loops while the engine and API read snapshots, so all
// access goes through the mutex.
type Tracker struct {
	mu sync.Mutex

	venue models.VenueKey
	state models.ConnState

	sessionStart   time.Time
	connectedAt    time.Time
	connectedTotal time.Duration
	everConnected  bool

	lastMessageAt  time.Time
	messageCount   int64
	tradeCount     int64
	droppedCount   int64
	reconnectCount int64
	gapCount       int64
}

func NewTracker(venue models.VenueKey, now time.Time) *Tracker {
	return &Tracker{
		venue:        venue,
		state:        models.ConnDisconnected,
		sessionStart: now,
	}
}

func (t *Tracker) Venue() models.VenueKey {
	return t.venue
}

func (t *Tracker) MarkConnecting() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = models.ConnConnecting
}

// MarkConnected records a successful (re)connection. Every connection after
// the first one in a session counts as a reconnect.
func (t *Tracker) MarkConnected(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.everConnected {
		t.reconnectCount++
	}
	t.everConnected = true
	t.state = models.ConnConnected
	t.connectedAt = now
}

// MarkDisconnected banks the elapsed connected time so uptime keeps
// accumulating across reconnect cycles.
func (t *Tracker) MarkDisconnected(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bankConnectedLocked(now)
	t.state = models.ConnDisconnected
}

func (t *Tracker) MarkError(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bankConnectedLocked(now)
	t.state = models.ConnError
}

func (t *Tracker) bankConnectedLocked(now time.Time) {
	if !t.connectedAt.IsZero() {
		t.connectedTotal += now.Sub(t.connectedAt)
		t.connectedAt = time.Time{}
	}
}

func (t *Tracker) RecordMessage(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messageCount++
	t.lastMessageAt = now
}

func (t *Tracker) RecordTrade() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tradeCount++
}

func (t *Tracker) RecordDropped() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.droppedCount++
}

func (t *Tracker) AddGaps(n int) {
	if n <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.gapCount += int64(n)
}

func (t *Tracker) State() models.ConnState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Snapshot derives the telemetry readout at the given instant. Uptime is
// banked connected time plus the current spell, as a share of the session,
// capped at 100.
func (t *Tracker) Snapshot(now time.Time) models.VenueTelemetry {
	t.mu.Lock()
	defer t.mu.Unlock()

	connected := t.connectedTotal
	if !t.connectedAt.IsZero() && now.After(t.connectedAt) {
		connected += now.Sub(t.connectedAt)
	}

	elapsed := now.Sub(t.sessionStart)
	uptimePct := 0.0
	if elapsed > 0 {
		uptimePct = float64(connected) / float64(elapsed) * 100
		if uptimePct > 100 {
			uptimePct = 100
		}
		if uptimePct < 0 {
			uptimePct = 0
		}
	}

	staleness := now.Sub(t.sessionStart)
	if !t.lastMessageAt.IsZero() {
		staleness = now.Sub(t.lastMessageAt)
	}
	if staleness < 0 {
		staleness = 0
	}

	rate := 0.0
	if seconds := elapsed.Seconds(); seconds > 0 {
		rate = float64(t.messageCount) / seconds
	}

	return models.VenueTelemetry{
		Venue:            t.venue,
		State:            t.state,
		SessionStart:     t.sessionStart,
		ConnectedAt:      t.connectedAt,
		LastMessageAt:    t.lastMessageAt,
		StalenessSeconds: staleness.Seconds(),
		MessageCount:     t.messageCount,
		TradeCount:       t.tradeCount,
		DroppedCount:     t.droppedCount,
		ReconnectCount:   t.reconnectCount,
		GapCount:         t.gapCount,
		UptimePercent:    uptimePct,
		MessagesPerSec:   rate,
	}
}

// ResetSession starts a fresh session, used when the tracked asset changes.
// Counters and uptime begin from zero rather than continuing.
func (t *Tracker) ResetSession(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = models.ConnDisconnected
	t.sessionStart = now
	t.connectedAt = time.Time{}
	t.connectedTotal = 0
	t.everConnected = false
	t.lastMessageAt = time.Time{}
	t.messageCount = 0
	t.tradeCount = 0
	t.droppedCount = 0
	t.reconnectCount = 0
	t.gapCount = 0
}
