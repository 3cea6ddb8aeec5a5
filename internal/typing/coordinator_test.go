package typing

import (
	"context"
	"testing"
	"time"

	"github.com/storehive/assist/internal/domain"
	"github.com/storehive/assist/internal/transport"
)

func newCoordinatorPair(t *testing.T, timeout time.Duration) (*Coordinator, *Coordinator) {
	t.Helper()
	hub := transport.NewMemoryHub()

	user := NewCoordinator(hub.Connect(), "session-A", domain.RoleUser, timeout, nil)
	admin := NewCoordinator(hub.Connect(), "session-A", domain.RoleAdmin, timeout, nil)
	if err := user.Attach(); err != nil {
		t.Fatalf("user Attach failed: %v", err)
	}
	if err := admin.Attach(); err != nil {
		t.Fatalf("admin Attach failed: %v", err)
	}
	t.Cleanup(user.Disconnect)
	t.Cleanup(admin.Disconnect)
	return user, admin
}

func TestTypingSignalReachesCounterpart(t *testing.T) {
	t.Parallel()

	user, admin := newCoordinatorPair(t, time.Second)

	if err := admin.StartTyping(context.Background()); err != nil {
		t.Fatalf("StartTyping failed: %v", err)
	}
	if !user.IsRemoteTyping() {
		t.Error("user did not observe admin typing")
	}
	// The sender's own echo must not flip its remote flag.
	if admin.IsRemoteTyping() {
		t.Error("admin observed its own typing signal")
	}
}

func TestTypingStopsOnExplicitSignal(t *testing.T) {
	t.Parallel()

	user, admin := newCoordinatorPair(t, time.Second)

	if err := admin.StartTyping(context.Background()); err != nil {
		t.Fatalf("StartTyping failed: %v", err)
	}
	if err := admin.StopTyping(context.Background()); err != nil {
		t.Fatalf("StopTyping failed: %v", err)
	}
	if user.IsRemoteTyping() {
		t.Error("explicit stop did not clear remote typing")
	}
}

func TestTypingExpiresWithoutStop(t *testing.T) {
	t.Parallel()

	user, admin := newCoordinatorPair(t, 50*time.Millisecond)

	if err := admin.StartTyping(context.Background()); err != nil {
		t.Fatalf("StartTyping failed: %v", err)
	}
	if !user.IsRemoteTyping() {
		t.Fatal("user did not observe admin typing")
	}

	deadline := time.Now().Add(time.Second)
	for user.IsRemoteTyping() {
		if time.Now().After(deadline) {
			t.Fatal("remote typing never expired")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestTypingSignalResetsExpiry(t *testing.T) {
	t.Parallel()

	user, admin := newCoordinatorPair(t, 80*time.Millisecond)

	ctx := context.Background()
	if err := admin.StartTyping(ctx); err != nil {
		t.Fatalf("StartTyping failed: %v", err)
	}
	// Keep signalling within the window; the flag must stay up throughout.
	for i := 0; i < 4; i++ {
		time.Sleep(40 * time.Millisecond)
		if !user.IsRemoteTyping() {
			t.Fatal("remote typing expired despite continuous signals")
		}
		if err := admin.StartTyping(ctx); err != nil {
			t.Fatalf("StartTyping failed: %v", err)
		}
	}
}

func TestSupersededExpiryTimerCannotClearTyping(t *testing.T) {
	t.Parallel()

	hub := transport.NewMemoryHub()
	var changes []bool
	user := NewCoordinator(hub.Connect(), "session-A", domain.RoleUser, time.Hour, func(v bool) {
		changes = append(changes, v)
	})
	if err := user.Attach(); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	defer user.Disconnect()

	// Two signals in one burst arm the timer twice. The first timer can fire
	// after Stop missed it (its goroutine already running); replay that
	// callback with the superseded generation.
	user.setTyping()
	user.setTyping()
	user.expire(1)

	if !user.IsRemoteTyping() {
		t.Error("superseded expiry timer cleared an active typing state")
	}
	if len(changes) != 1 || !changes[0] {
		t.Errorf("expected the single true transition, got %v", changes)
	}

	// The live timer's generation still expires normally.
	user.expire(2)
	if user.IsRemoteTyping() {
		t.Error("current-generation expiry did not clear typing")
	}
}

func TestTypingIgnoresOtherSessions(t *testing.T) {
	t.Parallel()

	hub := transport.NewMemoryHub()
	user := NewCoordinator(hub.Connect(), "session-A", domain.RoleUser, time.Second, nil)
	if err := user.Attach(); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	defer user.Disconnect()

	other := NewCoordinator(hub.Connect(), "session-B", domain.RoleAdmin, time.Second, nil)
	if err := other.StartTyping(context.Background()); err != nil {
		t.Fatalf("StartTyping failed: %v", err)
	}
	if user.IsRemoteTyping() {
		t.Error("typing from another session leaked through")
	}
}

func TestTypingOnChangeTransitionsOnly(t *testing.T) {
	t.Parallel()

	hub := transport.NewMemoryHub()
	var changes []bool
	user := NewCoordinator(hub.Connect(), "session-A", domain.RoleUser, time.Second, func(v bool) {
		changes = append(changes, v)
	})
	if err := user.Attach(); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	defer user.Disconnect()

	admin := NewCoordinator(hub.Connect(), "session-A", domain.RoleAdmin, time.Second, nil)
	ctx := context.Background()

	// Repeated starts are one logical transition.
	for i := 0; i < 3; i++ {
		if err := admin.StartTyping(ctx); err != nil {
			t.Fatalf("StartTyping failed: %v", err)
		}
	}
	if err := admin.StopTyping(ctx); err != nil {
		t.Fatalf("StopTyping failed: %v", err)
	}

	want := []bool{true, false}
	if len(changes) != len(want) {
		t.Fatalf("expected transitions %v, got %v", want, changes)
	}
	for i := range want {
		if changes[i] != want[i] {
			t.Fatalf("expected transitions %v, got %v", want, changes)
		}
	}
}

func TestDisconnectIdempotentAndSilent(t *testing.T) {
	t.Parallel()

	user, admin := newCoordinatorPair(t, time.Second)

	if err := admin.StartTyping(context.Background()); err != nil {
		t.Fatalf("StartTyping failed: %v", err)
	}

	user.Disconnect()
	user.Disconnect() // second call must be a no-op
	if user.IsRemoteTyping() {
		t.Error("Disconnect did not clear remote typing")
	}

	// A detached coordinator observes nothing further.
	if err := admin.StartTyping(context.Background()); err != nil {
		t.Fatalf("StartTyping failed: %v", err)
	}
	if user.IsRemoteTyping() {
		t.Error("detached coordinator still receives signals")
	}
}
