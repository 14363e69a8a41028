package avdtp

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/op/go-logging"
)

func testLog() *logging.Logger {
	return logging.MustGetLogger("avdtp_test")
}

func TestFragmentReassemblyRoundTrip(t *testing.T) {
	mtus := []uint16{48, 23, 17}
	sizes := []int{1, 10, 45, 46, 47, 200, 513}

	for _, mtu := range mtus {
		for _, size := range sizes {
			body := make([]byte, size)
			rng := rand.New(rand.NewSource(int64(mtu)*10000 + int64(size)))
			rng.Read(body)

			sender := newCCB(1, testAddr(), 1, mtu, testLog())
			receiver := newCCB(2, testAddr(), 2, mtu, testLog())

			original := buildSingle(5, PacketSingle, MsgCommand, SigSetConfiguration, body)
			sender.startMessage(original, true)

			var got []byte
			for {
				frag := sender.nextFragment()
				if frag == nil {
					break
				}
				if out := receiver.asmbl(frag, 4096); out != nil {
					got = out
				}
			}

			if !bytes.Equal(got, original) {
				t.Fatalf("mtu=%d size=%d: round trip mismatch: got %d bytes, want %d bytes", mtu, size, len(got), len(original))
			}
		}
	}
}

func TestAsmblDropsUndersizedFragment(t *testing.T) {
	c := newCCB(1, testAddr(), 1, 48, testLog())
	if out := c.asmbl([]byte{}, 4096); out != nil {
		t.Fatal("expected nil on empty fragment")
	}
}

func TestAsmblContWithNoStartIsDropped(t *testing.T) {
	c := newCCB(1, testAddr(), 1, 48, testLog())
	cont := []byte{byte(PacketCont) << 2, 0xAA}
	if out := c.asmbl(cont, 4096); out != nil {
		t.Fatal("CONT with no in-progress buffer must be dropped")
	}
}

func TestAsmblEndWithNoStartIsDropped(t *testing.T) {
	c := newCCB(1, testAddr(), 1, 48, testLog())
	end := []byte{byte(PacketEnd) << 2, 0xAA}
	if out := c.asmbl(end, 4096); out != nil {
		t.Fatal("END with no in-progress buffer must be dropped")
	}
}

func TestAsmblOverflowDiscardsBuffer(t *testing.T) {
	c := newCCB(1, testAddr(), 1, 48, testLog())
	start := []byte{byte(PacketStart) << 2, 3, byte(SigOpen)}
	if out := c.asmbl(start, 4); out != nil {
		t.Fatal("START should never itself return a completed message")
	}
	if !c.in.active {
		t.Fatal("expected in-progress reassembly after START")
	}
	cont := []byte{byte(PacketCont) << 2, 1, 2, 3, 4, 5}
	if out := c.asmbl(cont, 4); out != nil {
		t.Fatal("overflowing CONT must not return a message")
	}
	if c.in.active {
		t.Fatal("overflow must discard the in-progress buffer")
	}
}

func TestMsgIndBoundarySignalID(t *testing.T) {
	c := newCCB(1, testAddr(), 1, 48, testLog())
	for _, bad := range []SignalID{0, 14, 255} {
		buf := buildSingle(1, PacketSingle, MsgCommand, bad, nil)
		_, reject, ok := c.msgInd(buf)
		if ok {
			t.Fatalf("signal %d: expected not ok", bad)
		}
		if reject != bad&0x3F { // only the low 6 bits of the signal id go on the wire
			t.Fatalf("signal %d: expected reject signal echoed, got %d", bad, reject)
		}
	}
}

func TestMsgIndDropsMismatchedResponse(t *testing.T) {
	c := newCCB(1, testAddr(), 1, 48, testLog())
	c.outstanding = &outstandingCmd{label: 2, signal: SigOpen}
	buf := buildSingle(9, PacketSingle, MsgResponseAccept, SigOpen, nil)
	_, _, ok := c.msgInd(buf)
	if ok {
		t.Fatal("response with wrong label must be dropped")
	}
}
