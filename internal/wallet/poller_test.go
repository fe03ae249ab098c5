package wallet

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Klingon-tech/shieldwallet/internal/signer"
)

func waitForEvent(t *testing.T, events <-chan Event, kind EventKind) Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Kind == kind {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", kind)
		}
	}
}

func TestPoller_RecoversInBackground(t *testing.T) {
	env := newTestEnv(true)
	fundNote(env.signer, env.ledger, kindA, 10, 0)
	events, unsubscribe := env.core.Subscribe(16)
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewPoller(env.core, 10*time.Millisecond).Run(ctx) }()

	ev := waitForEvent(t, events, EventRecoveryFinished)
	if ev.Recovery == nil || ev.Recovery.Added != 1 {
		t.Errorf("recovery result = %+v", ev.Recovery)
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run() = %v, want context.Canceled", err)
	}
	if bal, _ := env.core.Balance(context.Background(), kindA); bal != 10 {
		t.Errorf("Balance() = %d, want 10", bal)
	}
}

func TestPoller_KeepsRunningWhenSignerIsDown(t *testing.T) {
	env := newTestEnv(true)
	fundNote(env.signer, env.ledger, kindA, 10, 0)
	env.signer.failRecover = signer.ErrSignerUnreachable
	events, unsubscribe := env.core.Subscribe(16)
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go NewPoller(env.core, 10*time.Millisecond).Run(ctx)

	waitForEvent(t, events, EventRecoveryFailed)
	waitForEvent(t, events, EventRecoveryFailed)
}

func TestNewPoller_DefaultInterval(t *testing.T) {
	p := NewPoller(newTestEnv(true).core, 0)
	if p.interval != DefaultPollInterval {
		t.Errorf("interval = %v, want %v", p.interval, DefaultPollInterval)
	}
}
