package system

import (
	"context"
	"errors"
	"testing"
)

func TestManagerOrder(t *testing.T) {
	var events []string
	record := func(name string) Func {
		return Func{
			ServiceName: name,
			StartFunc:   func(context.Context) error { events = append(events, "start "+name); return nil },
			StopFunc:    func(context.Context) error { events = append(events, "stop "+name); return nil },
		}
	}

	m := NewManager()
	for _, n := range []string{"a", "b"} {
		if err := m.Register(record(n)); err != nil {
			t.Fatalf("register %s: %v", n, err)
		}
	}
	if err := m.Register(record("a")); err == nil {
		t.Fatalf("duplicate names must be rejected")
	}

	ctx := context.Background()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	want := []string{"start a", "start b", "stop b", "stop a"}
	if len(events) != len(want) {
		t.Fatalf("events = %v", events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events = %v, want %v", events, want)
		}
	}
}

func TestManagerRollsBackOnStartFailure(t *testing.T) {
	stopped := false
	m := NewManager()
	_ = m.Register(Func{ServiceName: "ok", StopFunc: func(context.Context) error { stopped = true; return nil }})
	_ = m.Register(Func{ServiceName: "bad", StartFunc: func(context.Context) error { return errors.New("boom") }})

	if err := m.Start(context.Background()); err == nil {
		t.Fatalf("expected start error")
	}
	if !stopped {
		t.Fatalf("started services should be stopped after a failure")
	}
}
