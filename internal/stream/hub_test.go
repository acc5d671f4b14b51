package stream

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()

	h := NewHub(time.Hour, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)
	return h
}

func recv(t *testing.T, sub *Subscriber) Envelope {
	t.Helper()

	select {
	case env, ok := <-sub.C():
		require.True(t, ok, "subscriber channel closed")
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for envelope")
		return Envelope{}
	}
}

func assertNothing(t *testing.T, sub *Subscriber) {
	t.Helper()

	select {
	case env := <-sub.C():
		t.Fatalf("unexpected envelope %q", env.Type)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBroadcastReachesAllSubscribers(t *testing.T) {
	h := newTestHub(t)

	a := h.Subscribe(Identity{UserID: "u1", Role: RoleUser})
	b := h.Subscribe(Identity{})

	h.Broadcast("poll_result", map[string]string{"entity": "router/r1"})

	assert.Equal(t, "poll_result", recv(t, a).Type)
	assert.Equal(t, "poll_result", recv(t, b).Type)
}

func TestTargetedBroadcastAuthorization(t *testing.T) {
	h := newTestHub(t)

	admin := h.Subscribe(Identity{UserID: "root", Role: RoleAdmin})
	operator := h.Subscribe(Identity{UserID: "ops", Role: RoleOperator})
	listed := h.Subscribe(Identity{UserID: "u1", Role: RoleUser})
	unlisted := h.Subscribe(Identity{UserID: "u2", Role: RoleUser})
	anon := h.Subscribe(Identity{})

	h.BroadcastToAuthorized("alert_created", "payload", []string{"u1"})

	assert.Equal(t, "alert_created", recv(t, admin).Type)
	assert.Equal(t, "alert_created", recv(t, operator).Type)
	assert.Equal(t, "alert_created", recv(t, listed).Type)
	assertNothing(t, unlisted)
	assertNothing(t, anon)
}

func TestTargetedBroadcastEmptyAllowList(t *testing.T) {
	h := newTestHub(t)

	admin := h.Subscribe(Identity{UserID: "root", Role: RoleAdmin})
	user := h.Subscribe(Identity{UserID: "u1", Role: RoleUser})

	h.BroadcastToAuthorized("alert_created", "payload", nil)

	assert.Equal(t, "alert_created", recv(t, admin).Type)
	assertNothing(t, user)
}

func TestSlowSubscriberIsDropped(t *testing.T) {
	h := newTestHub(t)

	// Fill the slow subscriber's buffer without draining it; the overflowing
	// fanout must close its channel.
	slow := h.Subscribe(Identity{UserID: "slow", Role: RoleUser})
	for i := 0; i <= subscriberBuffer; i++ {
		h.Broadcast("tick", i)
	}

	deadline := time.After(2 * time.Second)
	dropped := false
	for !dropped {
		select {
		case _, ok := <-slow.C():
			dropped = !ok
		case <-deadline:
			t.Fatal("slow subscriber never dropped")
		}
	}

	// A subscriber that keeps up still receives later broadcasts.
	fast := h.Subscribe(Identity{UserID: "fast", Role: RoleUser})
	h.Broadcast("after", nil)
	for {
		env := recv(t, fast)
		if env.Type == "after" {
			break
		}
	}
}

func TestSubscribeReplaysHistory(t *testing.T) {
	h := newTestHub(t)

	h.Broadcast("first", 1)
	h.Broadcast("second", 2)

	// Give the hub loop a moment to consume the messages.
	time.Sleep(50 * time.Millisecond)

	sub := h.Subscribe(Identity{UserID: "late", Role: RoleUser})
	assert.Equal(t, "first", recv(t, sub).Type)
	assert.Equal(t, "second", recv(t, sub).Type)
}

func TestTargetedEventsNotInHistory(t *testing.T) {
	h := newTestHub(t)

	h.BroadcastToAuthorized("secret", "x", []string{"u1"})
	time.Sleep(50 * time.Millisecond)

	admin := h.Subscribe(Identity{UserID: "root", Role: RoleAdmin})
	assertNothing(t, admin)
}

func TestShutdownClosesSubscribers(t *testing.T) {
	h := NewHub(time.Hour, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	sub := h.Subscribe(Identity{UserID: "u1", Role: RoleUser})
	cancel()

	select {
	case _, ok := <-sub.C():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed on shutdown")
	}
}

func TestKeepaliveEnvelope(t *testing.T) {
	h := NewHub(50*time.Millisecond, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)

	sub := h.Subscribe(Identity{UserID: "u1", Role: RoleUser})
	env := recv(t, sub)
	assert.Equal(t, Keepalive, env.Type)
}

func TestHistoryRing(t *testing.T) {
	hist := NewHistory(3)
	for i := 0; i < 5; i++ {
		hist.Add(Envelope{Type: "e", Payload: i})
	}

	all := hist.All()
	require.Len(t, all, 3)
	assert.Equal(t, 2, all[0].Payload)
	assert.Equal(t, 4, all[2].Payload)

	recent := hist.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, 3, recent[0].Payload)
	assert.Equal(t, 4, recent[1].Payload)
}
