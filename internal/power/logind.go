package power

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/NamanBalaji/updater/internal/logger"
)

const (
	login1Dest      = "org.freedesktop.login1"
	login1Path      = dbus.ObjectPath("/org/freedesktop/login1")
	login1Inhibit   = "org.freedesktop.login1.Manager.Inhibit"
	dbusCallTimeout = 5 * time.Second
)

// Logind takes "sleep" block inhibitor locks from systemd-logind.
type Logind struct {
	conn *dbus.Conn
	who  string
}

// NewLogind connects to the system bus.
func NewLogind(who string) (*Logind, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect system bus: %w", err)
	}

	return &Logind{conn: conn, who: who}, nil
}

// Inhibit takes a lock that lasts until the returned func closes its descriptor.
func (l *Logind) Inhibit(why string) (func() error, error) {
	ctx, cancel := context.WithTimeout(context.Background(), dbusCallTimeout)
	defer cancel()

	var fd dbus.UnixFD

	obj := l.conn.Object(login1Dest, login1Path)
	if err := obj.CallWithContext(ctx, login1Inhibit, 0, "sleep", l.who, why, "block").Store(&fd); err != nil {
		return nil, fmt.Errorf("inhibit sleep: %w", err)
	}

	logger.Debugf("Took logind sleep inhibitor: %s", why)

	f := os.NewFile(uintptr(fd), "logind-inhibit")

	return func() error {
		logger.Debugf("Releasing logind sleep inhibitor")
		return f.Close()
	}, nil
}

// Close disconnects from the system bus.
func (l *Logind) Close() error {
	return l.conn.Close()
}

// NewInhibitor returns a logind inhibitor, or Nop when disabled or when the
// system bus is unavailable.
func NewInhibitor(disabled bool, who string) Inhibitor {
	if disabled {
		return Nop{}
	}

	l, err := NewLogind(who)
	if err != nil {
		logger.Warnf("Sleep inhibitor unavailable, continuing without it: %v", err)
		return Nop{}
	}

	return l
}
