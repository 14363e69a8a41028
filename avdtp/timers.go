package avdtp

import "github.com/keepQASSA/system-bt/transport"

// Timer slot assignment: each ccb owns three logical timer handles, minted
// from its own Handle so the Manager's shared transport.Timer can
// distinguish them without a separate id space (§3: "Timer storage is
// owned by the CCB/PCB that schedules it").
const (
	timerSlotIdle = iota
	timerSlotRetransmit
	timerSlotResponse
	timerSlotsPerCCB
)

func timerHandle(ccb Handle, slot int) transport.TimerHandle {
	return transport.TimerHandle(uint32(ccb)*timerSlotsPerCCB + uint32(slot))
}

// armIdle (re)starts the idle timer; called whenever signaling traffic
// flows on this CCB.
func (m *Manager) armIdle(c *ccb) {
	h := timerHandle(c.handle, timerSlotIdle)
	m.timer.SetOneshot(h, int(m.cfg.IdleTimeout.Milliseconds()), func() {
		m.onIdleTimeout(c.handle)
	})
}

// armCompletionTimer starts either the retransmit or response timer for
// the command just fully sent, per §4.2: "On completion of a command
// message, start a timer: the response timer if the signal doesn't use
// retransmit ... otherwise the retransmit timer. delay-report uses no
// timer."
func (m *Manager) armCompletionTimer(c *ccb) {
	out := c.outstanding
	if out == nil || out.signal == SigDelayReport {
		return
	}
	if out.usesRetrans {
		h := timerHandle(c.handle, timerSlotRetransmit)
		m.timer.SetOneshot(h, int(m.cfg.RetransmitTimeout.Milliseconds()), func() {
			m.onRetransmitTimeout(c.handle)
		})
		return
	}
	h := timerHandle(c.handle, timerSlotResponse)
	m.timer.SetOneshot(h, int(m.cfg.ResponseTimeout.Milliseconds()), func() {
		m.onResponseTimeout(c.handle)
	})
}

// cancelAllTimers stops all three of c's timers; called on receipt of a
// matching response and on any cancellation (§4.2, §5).
func (m *Manager) cancelAllTimers(c *ccb) {
	m.timer.Cancel(timerHandle(c.handle, timerSlotIdle))
	m.timer.Cancel(timerHandle(c.handle, timerSlotRetransmit))
	m.timer.Cancel(timerHandle(c.handle, timerSlotResponse))
}
