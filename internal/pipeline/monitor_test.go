package pipeline

import (
	"context"
	stderrors "errors"
	"testing"
	"time"
)

func TestMonitor_NotifiesOnTransitionsOnly(t *testing.T) {
	m := NewMonitor(staticProber{}, time.Hour)

	var got []bool
	unsubscribe := m.Subscribe(func(online bool) { got = append(got, online) })

	m.Set(true)
	m.Set(false)
	m.Set(false)
	m.Set(true)
	unsubscribe()
	m.Set(false)

	if len(got) != 2 || got[0] != false || got[1] != true {
		t.Fatalf("transitions = %v, want [false true]", got)
	}
}

func TestMonitor_Check(t *testing.T) {
	prober := &toggleProber{err: stderrors.New("unreachable")}
	m := NewMonitor(prober, time.Hour)

	if m.Check(context.Background()) {
		t.Fatal("Check should report offline when the probe fails")
	}
	prober.err = nil
	if !m.Check(context.Background()) {
		t.Fatal("Check should report online when the probe succeeds")
	}
}

func TestMonitor_ForcedOffline(t *testing.T) {
	m := NewOfflineMonitor()
	m.Set(true)
	if m.Online() {
		t.Fatal("forced-offline monitor went online")
	}
	if m.Check(context.Background()) {
		t.Fatal("forced-offline monitor probed online")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m.Run(ctx)
}

type toggleProber struct{ err error }

func (p *toggleProber) Ping(context.Context) error { return p.err }
