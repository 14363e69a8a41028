package smp

import (
	"errors"
	"time"
)

// defines an SMP pairing engine configuration range
const (
	// DelayedAuthTailMin/Max bound the tail timer §4.3.3 schedules once
	// key distribution completes in both directions; the spec leaves the
	// exact value unspecified beyond "on the order of 500ms" (§9 open
	// question (b)), so it is exposed as configuration.
	DelayedAuthTailMin = 100 * time.Millisecond
	DelayedAuthTailMax = 5 * time.Second

	// MinEncryptionKeySizeFloor/Ceiling bound the configurable minimum
	// acceptable negotiated key size (§3 PCB: "negotiated encryption key
	// size (7..16 bytes)").
	MinEncryptionKeySizeFloor   = 7
	MinEncryptionKeySizeCeiling = 16
)

// Config defines an SMP pairing engine configuration. The default is
// applied for each unspecified value.
type Config struct {
	// DelayedAuthTail is the tail timer before declaring pairing success
	// once both key-distribution masks reach zero (§4.3.3).
	DelayedAuthTail time.Duration

	// MinEncryptionKeySize is the smallest negotiated key size this engine
	// will accept; a smaller negotiated size fails with ENC_KEY_SIZE.
	MinEncryptionKeySize int

	// SecureConnectionsOnlyModeRequired gates the policy check in §4.3.2:
	// if set, any non-SC or SC_JUSTWORKS model selection fails immediately
	// with PAIR_AUTH_FAIL.
	SecureConnectionsOnlyModeRequired bool
}

// Valid applies the default for each unspecified value and range-checks
// the rest.
func (c *Config) Valid() error {
	if c == nil {
		return errors.New("smp: invalid pointer")
	}

	if c.DelayedAuthTail == 0 {
		c.DelayedAuthTail = 500 * time.Millisecond
	} else if c.DelayedAuthTail < DelayedAuthTailMin || c.DelayedAuthTail > DelayedAuthTailMax {
		return errors.New("smp: DelayedAuthTail not in [100ms, 5s]")
	}

	if c.MinEncryptionKeySize == 0 {
		c.MinEncryptionKeySize = MinEncryptionKeySizeFloor
	} else if c.MinEncryptionKeySize < MinEncryptionKeySizeFloor || c.MinEncryptionKeySize > MinEncryptionKeySizeCeiling {
		return errors.New("smp: MinEncryptionKeySize not in [7, 16]")
	}

	return nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		DelayedAuthTail:      500 * time.Millisecond,
		MinEncryptionKeySize: MinEncryptionKeySizeFloor,
	}
}
