package avdtp

import "github.com/keepQASSA/system-bt"

func testAddr() btstack.Address {
	return btstack.Address{0x11, 0x22, 0x33, 0x44, 0x55, 0x66}
}
