package avdtp

import (
	"sync"

	"github.com/keepQASSA/system-bt"
	"github.com/keepQASSA/system-bt/transport"
	"github.com/op/go-logging"
)

// Handle addresses one CCB or SCB by small integer, per the §9 design note
// replacing the source's file-scope control blocks with a process-wide,
// handle-based subsystem: callers never hold a pointer to a ccb/scb, they
// hold a Handle and look it up through the owning Manager on every use.
type Handle uint16

// InvalidHandle is never returned as a live allocation.
const InvalidHandle Handle = 0

// outstandingCmd is the one command a CCB may have in flight, mutually
// exclusive with its slot in cmdQueue (§3 CCB entity).
type outstandingCmd struct {
	label       byte
	signal      SignalID
	seid        byte // SCB events extract this from the command for rsp routing
	retries     int
	usesRetrans bool
	buf         []byte // original packed command, kept for retransmission
}

// reassembly is the in-progress inbound reassembly buffer (§4.2 asmbl).
type reassembly struct {
	active bool
	buf    []byte
}

// fragmentSrc is the outbound message currently being fragmented (§4.2
// send). header carries the label/msg-type bits (packet-type bits are
// overwritten per fragment); body is whatever remains unsent. started
// distinguishes the first fragment (which may be SINGLE or START) from
// later ones (always CONT or END).
type fragmentSrc struct {
	active  bool
	header  byte
	signal  byte
	body    []byte
	started bool
	isCmd   bool
}

// ccb is one Control Channel Block: one AVDTP signaling session to one
// peer (§3). Grounded on EnclaveClient's mutex-guarded single control
// block shape, re-architected per §9 to be addressed by Handle from the
// owning Manager rather than held by pointer.
type ccb struct {
	sync.Mutex

	handle    Handle
	peer      btstack.Address
	th        transport.Handle
	peerMTU   uint16
	congested bool

	label byte // 4-bit transaction label counter, monotonically incremented mod 16

	out        fragmentSrc
	in         reassembly
	cmdQueue   [][]byte
	rspQueue   [][]byte
	outstanding *outstandingCmd

	idleTimer       transport.TimerHandle
	retransmitTimer transport.TimerHandle
	responseTimer   transport.TimerHandle

	scbs map[byte]Handle // SEID -> scb handle, bound to this CCB

	log *logging.Logger
}

func newCCB(handle Handle, peer btstack.Address, th transport.Handle, peerMTU uint16, log *logging.Logger) *ccb {
	return &ccb{
		handle:  handle,
		peer:    peer,
		th:      th,
		peerMTU: peerMTU,
		scbs:    make(map[byte]Handle),
		log:     log,
	}
}

// nextLabel returns the next transaction label and advances the counter
// (§3 "4-bit transaction label counter").
func (c *ccb) nextLabel() byte {
	l := c.label
	c.label = (c.label + 1) & 0x0F
	return l
}

// scb is one Stream Control Block: one local Stream End Point for a
// stream's lifetime (§3).
type scb struct {
	sync.Mutex

	handle  Handle
	seid    byte // 1..62
	inUse   bool
	ccb     Handle // owning CCB, referenced by id per §9 to avoid cycles
	cfg     []ConfigElement
	bound   bool
}

// seidPoolSize is the fixed SCB pool size (§3: SEID 1..62).
const seidPoolSize = 62
