package avdtp

import (
	"errors"
	"time"
)

// defines an AVDTP signaling engine configuration range
const (
	// Retransmit count range [0, 15], default 1. §4.2 "may be retransmitted
	// up to a configured count".
	RetransmitCountMin = 0
	RetransmitCountMax = 15

	// Response timer range [1, 30]s, default 3s. §4.2 "response-timer fires
	// are terminal".
	ResponseTimeoutMin = 1 * time.Second
	ResponseTimeoutMax = 30 * time.Second

	// Retransmit timer range [1, 30]s, default 2s.
	RetransmitTimeoutMin = 1 * time.Second
	RetransmitTimeoutMax = 30 * time.Second

	// Idle timer range [1, 300]s, default 60s. Fires when a CCB has had no
	// signaling traffic; §3 "destroyed when channel closes".
	IdleTimeoutMin = 1 * time.Second
	IdleTimeoutMax = 300 * time.Second

	// Reassembly buffer cap range [48, 65535] bytes, default
	// 2048. §4.2 "Inbound fragments accumulate into a single buffer whose
	// capacity is the transport's maximum."
	ReassemblyBufferMin = 48
	ReassemblyBufferMax = 65535
)

// Config defines an AVDTP signaling engine configuration. The default is
// applied for each unspecified value.
type Config struct {
	// RetransmitCount is how many times a command awaiting response may be
	// retransmitted on retransmit-timer fires before raising a transport
	// failure to the owning SCB/CCB.
	RetransmitCount int

	// ResponseTimeout bounds commands that don't use retransmission
	// (discover, get-capabilities, security-control).
	ResponseTimeout time.Duration

	// RetransmitTimeout bounds commands that do use retransmission.
	RetransmitTimeout time.Duration

	// IdleTimeout tears the CCB down after this much signaling silence.
	IdleTimeout time.Duration

	// ReassemblyBufferSize is the largest reassembled message this CCB will
	// accept; a CONT/END that would exceed it discards the in-progress
	// buffer (§4.2).
	ReassemblyBufferSize int
}

// Valid applies the default for each unspecified value and range-checks
// the rest.
func (c *Config) Valid() error {
	if c == nil {
		return errors.New("avdtp: invalid pointer")
	}

	if c.RetransmitCount == 0 {
		c.RetransmitCount = 1
	} else if c.RetransmitCount < RetransmitCountMin || c.RetransmitCount > RetransmitCountMax {
		return errors.New("avdtp: RetransmitCount not in [0, 15]")
	}

	if c.ResponseTimeout == 0 {
		c.ResponseTimeout = 3 * time.Second
	} else if c.ResponseTimeout < ResponseTimeoutMin || c.ResponseTimeout > ResponseTimeoutMax {
		return errors.New("avdtp: ResponseTimeout not in [1, 30]s")
	}

	if c.RetransmitTimeout == 0 {
		c.RetransmitTimeout = 2 * time.Second
	} else if c.RetransmitTimeout < RetransmitTimeoutMin || c.RetransmitTimeout > RetransmitTimeoutMax {
		return errors.New("avdtp: RetransmitTimeout not in [1, 30]s")
	}

	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	} else if c.IdleTimeout < IdleTimeoutMin || c.IdleTimeout > IdleTimeoutMax {
		return errors.New("avdtp: IdleTimeout not in [1, 300]s")
	}

	if c.ReassemblyBufferSize == 0 {
		c.ReassemblyBufferSize = 2048
	} else if c.ReassemblyBufferSize < ReassemblyBufferMin || c.ReassemblyBufferSize > ReassemblyBufferMax {
		return errors.New("avdtp: ReassemblyBufferSize not in [48, 65535]")
	}

	return nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		RetransmitCount:      1,
		ResponseTimeout:      3 * time.Second,
		RetransmitTimeout:    2 * time.Second,
		IdleTimeout:          60 * time.Second,
		ReassemblyBufferSize: 2048,
	}
}
