package power

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/dokzlo13/ideapadd/internal/eventbus"
)

type fakeSource struct {
	initial bool
	changes []bool
}

func (f *fakeSource) OnBattery(context.Context) (bool, error) { return f.initial, nil }

func (f *fakeSource) Watch(ctx context.Context, fn func(bool)) error {
	for _, c := range f.changes {
		fn(c)
	}
	<-ctx.Done()
	return nil
}

type recorder struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (r *recorder) Publish(e eventbus.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) sources() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.String("source"))
	}
	return out
}

func TestWatcher_PublishesTransitionsOnly(t *testing.T) {
	src := &fakeSource{initial: false, changes: []bool{false, true, true, false}}
	rec := &recorder{}
	w := NewWatcher(src, rec, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for len(rec.sources()) < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	got := rec.sources()
	want := []string{"ac", "battery", "ac"}
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, got[i], want[i])
		}
	}
	if onBattery, known := w.Current(); !known || onBattery {
		t.Errorf("Current() = %v, %v", onBattery, known)
	}
}

func TestOnBatteryChange(t *testing.T) {
	tests := []struct {
		name   string
		sig    *dbus.Signal
		want   bool
		wantOK bool
	}{
		{
			name: "on battery",
			sig: &dbus.Signal{
				Path: upowerPath,
				Name: propsInterface + ".PropertiesChanged",
				Body: []interface{}{upowerInterface, map[string]dbus.Variant{"OnBattery": dbus.MakeVariant(true)}, []string{}},
			},
			want: true, wantOK: true,
		},
		{
			name: "other property",
			sig: &dbus.Signal{
				Path: upowerPath,
				Name: propsInterface + ".PropertiesChanged",
				Body: []interface{}{upowerInterface, map[string]dbus.Variant{"LidIsClosed": dbus.MakeVariant(true)}, []string{}},
			},
		},
		{
			name: "other interface",
			sig: &dbus.Signal{
				Path: upowerPath,
				Name: propsInterface + ".PropertiesChanged",
				Body: []interface{}{"org.freedesktop.UPower.Device", map[string]dbus.Variant{"OnBattery": dbus.MakeVariant(true)}, []string{}},
			},
		},
		{name: "nil", sig: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := onBatteryChange(tt.sig)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("onBatteryChange() = %v, %v; want %v, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

// droppingSource loses its connection after the first read and only watches
// again once reconnected.
type droppingSource struct {
	mu         sync.Mutex
	connected  bool
	reconnects int
}

func (d *droppingSource) OnBattery(context.Context) (bool, error) { return false, nil }

func (d *droppingSource) Watch(ctx context.Context, fn func(bool)) error {
	d.mu.Lock()
	connected := d.connected
	d.mu.Unlock()
	if !connected {
		return errors.New("system bus connection closed")
	}
	fn(true)
	<-ctx.Done()
	return nil
}

func (d *droppingSource) Reconnect() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected = true
	d.reconnects++
	return nil
}

func TestWatcher_ReconnectsAfterDroppedWatch(t *testing.T) {
	src := &droppingSource{}
	rec := &recorder{}
	w := NewWatcher(src, rec, nil)
	w.retry = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for len(rec.sources()) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	got := rec.sources()
	if len(got) != 2 || got[0] != "ac" || got[1] != "battery" {
		t.Fatalf("events = %v, want [ac battery]", got)
	}
	src.mu.Lock()
	defer src.mu.Unlock()
	if src.reconnects != 1 {
		t.Errorf("reconnects = %d, want 1", src.reconnects)
	}
}
