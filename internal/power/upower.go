package power

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	upowerService   = "org.freedesktop.UPower"
	upowerPath      = dbus.ObjectPath("/org/freedesktop/UPower")
	upowerInterface = "org.freedesktop.UPower"
	propsInterface  = "org.freedesktop.DBus.Properties"
	onBatteryProp   = "OnBattery"
)

var errClosed = errors.New("upower: closed")

// UPower reads the OnBattery property from the system bus
type UPower struct {
	mu     sync.Mutex
	conn   *dbus.Conn
	obj    dbus.BusObject
	closed bool
}

// NewUPower opens a private system bus connection
func NewUPower() (*UPower, error) {
	u := &UPower{}
	if err := u.connect(); err != nil {
		return nil, err
	}
	return u, nil
}

// connect dials the system bus; u.mu must be held or u unshared
func (u *UPower) connect() error {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return fmt.Errorf("connect system bus: %w", err)
	}
	u.conn = conn
	u.obj = conn.Object(upowerService, upowerPath)
	return nil
}

func (u *UPower) current() (*dbus.Conn, dbus.BusObject) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.conn, u.obj
}

// Reconnect replaces a connection the bus has dropped. A live connection is
// kept as is.
func (u *UPower) Reconnect() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return errClosed
	}
	if u.conn != nil && u.conn.Connected() {
		return nil
	}
	if u.conn != nil {
		u.conn.Close()
	}
	return u.connect()
}

// OnBattery returns the current power source
func (u *UPower) OnBattery(ctx context.Context) (bool, error) {
	_, obj := u.current()
	var v dbus.Variant
	err := obj.CallWithContext(ctx, propsInterface+".Get", 0, upowerInterface, onBatteryProp).Store(&v)
	if err != nil {
		return false, fmt.Errorf("get %s.%s: %w", upowerInterface, onBatteryProp, err)
	}
	onBattery, ok := v.Value().(bool)
	if !ok {
		return false, fmt.Errorf("unexpected %s type %s", onBatteryProp, v.Signature())
	}
	return onBattery, nil
}

// Watch calls fn for every OnBattery change until ctx is done
func (u *UPower) Watch(ctx context.Context, fn func(onBattery bool)) error {
	opts := []dbus.MatchOption{
		dbus.WithMatchObjectPath(upowerPath),
		dbus.WithMatchInterface(propsInterface),
		dbus.WithMatchMember("PropertiesChanged"),
	}
	conn, _ := u.current()
	if err := conn.AddMatchSignalContext(ctx, opts...); err != nil {
		return fmt.Errorf("add match: %w", err)
	}
	defer conn.RemoveMatchSignal(opts...)

	signals := make(chan *dbus.Signal, 8)
	conn.Signal(signals)
	defer conn.RemoveSignal(signals)

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig, ok := <-signals:
			if !ok {
				return fmt.Errorf("system bus connection closed")
			}
			if onBattery, ok := onBatteryChange(sig); ok {
				fn(onBattery)
			}
		}
	}
}

// Close closes the bus connection; Reconnect fails afterwards
func (u *UPower) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.closed = true
	return u.conn.Close()
}

// onBatteryChange extracts OnBattery from a PropertiesChanged signal
func onBatteryChange(sig *dbus.Signal) (bool, bool) {
	if sig == nil || sig.Path != upowerPath || sig.Name != propsInterface+".PropertiesChanged" {
		return false, false
	}
	if len(sig.Body) < 2 {
		return false, false
	}
	iface, ok := sig.Body[0].(string)
	if !ok || iface != upowerInterface {
		return false, false
	}
	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return false, false
	}
	v, ok := changed[onBatteryProp]
	if !ok {
		return false, false
	}
	onBattery, ok := v.Value().(bool)
	return onBattery, ok
}
