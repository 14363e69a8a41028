package btstack

import "fmt"

// Address is a 6-byte Bluetooth device address (BD_ADDR), little-endian on
// the wire. It identifies the peer a CCB or PCB is bound to.
type Address [6]byte

func (a Address) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", a[5], a[4], a[3], a[2], a[1], a[0])
}

// IsZero reports whether the address is the unset value, used by pool code
// to recognize a freshly allocated, not-yet-bound control block.
func (a Address) IsZero() bool {
	return a == Address{}
}
