package registry

import (
	"testing"
	"time"

	"github.com/pulsewire/pulsewire-go/pkg/event"
)

func testConfig() Config {
	return Config{QueueCapacity: 8, IdleTimeout: time.Second}
}

func TestConnectAssignsID(t *testing.T) {
	reg := New(testConfig(), nil)

	conn := reg.Connect("", nil)
	if conn.ID == "" {
		t.Fatal("Connect without clientID should assign an ID")
	}

	named := reg.Connect("c1", nil)
	if named.ID != "c1" {
		t.Errorf("ID = %q, want c1", named.ID)
	}

	if reg.Count() != 2 {
		t.Errorf("Count = %d, want 2", reg.Count())
	}
}

func TestConnectEmitsConnectedEvent(t *testing.T) {
	reg := New(testConfig(), nil)
	conn := reg.Connect("c1", nil)

	select {
	case ev := <-conn.Events():
		if ev.Kind != event.KindConnected {
			t.Errorf("first event kind = %q, want %q", ev.Kind, event.KindConnected)
		}
		if ev.Data["connectionId"] != "c1" {
			t.Errorf("connectionId = %v, want c1", ev.Data["connectionId"])
		}
	default:
		t.Fatal("queue should hold the initial connected event")
	}
}

func TestConnectCollisionDisconnectsPrior(t *testing.T) {
	reg := New(testConfig(), nil)

	first := reg.Connect("c1", nil)
	second := reg.Connect("c1", nil)

	if !first.Closed() {
		t.Error("prior connection should be closed on ID collision")
	}
	if second.Closed() {
		t.Error("new connection should be open")
	}
	if reg.Count() != 1 {
		t.Errorf("Count = %d, want 1 (at most one connection per id)", reg.Count())
	}

	// The prior consumer observes end-of-stream after draining.
	drained := 0
	for range first.Events() {
		drained++
	}
	if drained != 1 { // the initial connected event
		t.Errorf("drained %d events from prior connection, want 1", drained)
	}
}

func TestDisconnectConnIgnoresReplacement(t *testing.T) {
	reg := New(testConfig(), nil)

	old := reg.Connect("c1", nil)
	replacement := reg.Connect("c1", nil)

	// The old handler's cleanup must not touch the replacement.
	if reg.DisconnectConn(old) {
		t.Error("DisconnectConn on a replaced connection should return false")
	}
	if reg.Count() != 1 {
		t.Fatalf("Count = %d, want 1 (replacement must stay registered)", reg.Count())
	}
	if cur, ok := reg.Get("c1"); !ok || cur != replacement {
		t.Fatal("registry should still hold the replacement connection")
	}
	if replacement.Closed() {
		t.Error("replacement should remain open")
	}

	if !reg.DisconnectConn(replacement) {
		t.Error("DisconnectConn on the live connection should return true")
	}
	if reg.Count() != 0 {
		t.Errorf("Count = %d, want 0", reg.Count())
	}
}

func TestDisconnectClosesQueue(t *testing.T) {
	reg := New(testConfig(), nil)
	conn := reg.Connect("c1", nil)

	if !reg.Disconnect("c1") {
		t.Fatal("Disconnect returned false for live connection")
	}
	if reg.Disconnect("c1") {
		t.Error("second Disconnect should return false")
	}

	// Drain: initial event then close.
	<-conn.Events()
	if _, ok := <-conn.Events(); ok {
		t.Error("queue should be closed after disconnect")
	}

	if err := conn.TrySend(event.New(event.KindCustom, "", nil)); err != ErrConnectionClosed {
		t.Errorf("TrySend after disconnect = %v, want ErrConnectionClosed", err)
	}
}

func TestQueueNeverExceedsCapacity(t *testing.T) {
	reg := New(Config{QueueCapacity: 2, IdleTimeout: time.Second}, nil)
	conn := reg.Connect("c1", nil)
	<-conn.Events() // drain connected event

	var full int
	for i := 0; i < 5; i++ {
		if err := conn.TrySend(event.New(event.KindCustom, "", nil)); err == ErrQueueFull {
			full++
		}
	}

	if conn.QueueLen() != 2 {
		t.Errorf("QueueLen = %d, want 2", conn.QueueLen())
	}
	if full != 3 {
		t.Errorf("full rejections = %d, want 3", full)
	}
	if conn.Dropped() != 3 {
		t.Errorf("Dropped = %d, want 3", conn.Dropped())
	}
}

func TestTopicSubscription(t *testing.T) {
	reg := New(testConfig(), nil)
	reg.Connect("c1", nil)

	if err := reg.SubscribeTopic("c1", "resources"); err != nil {
		t.Fatalf("SubscribeTopic: %v", err)
	}

	conn, _ := reg.Get("c1")
	if !conn.HasTopic("resources") {
		t.Error("connection should have topic after subscribe")
	}

	if err := reg.UnsubscribeTopic("c1", "resources"); err != nil {
		t.Fatalf("UnsubscribeTopic: %v", err)
	}
	if conn.HasTopic("resources") {
		t.Error("connection should not have topic after unsubscribe")
	}

	if err := reg.SubscribeTopic("nope", "resources"); err != ErrNotFound {
		t.Errorf("SubscribeTopic for unknown id = %v, want ErrNotFound", err)
	}
}

func TestEvictIdle(t *testing.T) {
	reg := New(Config{QueueCapacity: 8, IdleTimeout: 50 * time.Millisecond}, nil)

	idle := reg.Connect("idle", nil)
	reg.Connect("fresh", nil)

	// Age the idle connection past the timeout.
	idle.mu.Lock()
	idle.lastActivity = time.Now().Add(-time.Second)
	idle.mu.Unlock()

	evicted := reg.EvictIdle()
	if len(evicted) != 1 || evicted[0] != "idle" {
		t.Fatalf("EvictIdle = %v, want [idle]", evicted)
	}
	if !idle.Closed() {
		t.Error("evicted connection should be closed")
	}
	if reg.Count() != 1 {
		t.Errorf("Count = %d, want 1", reg.Count())
	}

	// Idempotent: another run evicts nothing new.
	if again := reg.EvictIdle(); len(again) != 0 {
		t.Errorf("second EvictIdle = %v, want none", again)
	}
}

func TestTouchPreventsEviction(t *testing.T) {
	reg := New(Config{QueueCapacity: 8, IdleTimeout: 50 * time.Millisecond}, nil)
	reg.Connect("c1", nil)

	time.Sleep(80 * time.Millisecond)
	reg.Touch("c1")

	if evicted := reg.EvictIdle(); len(evicted) != 0 {
		t.Errorf("touched connection was evicted: %v", evicted)
	}
}

func TestCloseAll(t *testing.T) {
	reg := New(testConfig(), nil)
	a := reg.Connect("a", nil)
	b := reg.Connect("b", nil)

	if n := reg.CloseAll(); n != 2 {
		t.Errorf("CloseAll = %d, want 2", n)
	}
	if !a.Closed() || !b.Closed() {
		t.Error("all connections should be closed")
	}
	if reg.Count() != 0 {
		t.Errorf("Count = %d, want 0", reg.Count())
	}
}
