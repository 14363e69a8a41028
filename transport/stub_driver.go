package transport

import (
	"github.com/keepQASSA/system-bt"
	uuid "github.com/satori/go.uuid"
)

// StubDriver is a no-op Transport for platforms cmd/btstackd runs on without
// a native BLE/L2CAP backend wired in, grounded on krd/bluetooth_linux.go's
// NewBluetoothDriver stub: it satisfies the interface so the daemon links
// and starts, but never actually opens a channel. A real deployment swaps
// this for a platform driver behind the same Transport interface.
type StubDriver struct {
	events  Events
	nextH   Handle
	service uuid.UUID
}

// NewStubDriver derives a per-process service correlation id the way
// pair.go's PairingSecret.DeriveUUID derives one from the pairing key,
// here seeded from a fresh random UUID since there is no paired key yet.
func NewStubDriver(events Events) *StubDriver {
	return &StubDriver{events: events, nextH: 1, service: uuid.NewV4()}
}

func (d *StubDriver) ServiceUUID() uuid.UUID { return d.service }

func (d *StubDriver) Open(peer btstack.Address, psm PSM) (Handle, error) {
	h := d.nextH
	d.nextH++
	return h, btstack.NewError(btstack.TransportLost, errNoBackend)
}

func (d *StubDriver) Write(h Handle, data []byte) error {
	return btstack.NewError(btstack.TransportLost, errNoBackend)
}

func (d *StubDriver) MTU(h Handle) (uint16, error) {
	return 0, btstack.NewError(btstack.TransportLost, errNoBackend)
}

func (d *StubDriver) Close(h Handle) error {
	return nil
}

var errNoBackend = stubErr("no native transport backend wired into this build")

type stubErr string

func (e stubErr) Error() string { return string(e) }
