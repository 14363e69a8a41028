// Command btstackd is the host-side daemon: it owns the process-wide
// avdtp.Manager and smp.Engine and wires them to a transport driver and
// timer source, the way krd owns the enclave client and control server.
package main

import (
	"flag"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/op/go-logging"

	"github.com/keepQASSA/system-bt"
	"github.com/keepQASSA/system-bt/avdtp"
	"github.com/keepQASSA/system-bt/smp"
	"github.com/keepQASSA/system-bt/smp/smptest"
	"github.com/keepQASSA/system-bt/transport"
)

func useSyslog() bool {
	env := os.Getenv("BTSTACKD_SYSLOG")
	if env != "" {
		return env == "true" || env == "1"
	}
	return true
}

func main() {
	ioCap := flag.Int("iocap", int(smp.IONoInputNoOutput), "local IO capability (0=DisplayOnly 1=DisplayYesNo 2=KeyboardOnly 3=NoInputNoOutput 4=KeyboardDisplay)")
	mitm := flag.Bool("mitm", false, "request MITM protection during pairing")
	bonding := flag.Bool("bonding", true, "request bonding (persist keys) during pairing")
	scOnly := flag.Bool("sc-only", false, "refuse any pairing that doesn't reach Secure Connections")
	flag.Parse()

	btstack.SetupLogging("btstackd", logging.INFO, useSyslog())
	log := btstack.NewLogger("btstackd")

	defer func() {
		if x := recover(); x != nil {
			log.Errorf("run time panic: %v", x)
			log.Error(string(debug.Stack()))
			panic(x)
		}
	}()

	avdtpTimer := transport.NewSystemTimer()
	smpTimer := transport.NewSystemTimer()

	sink := &loggingSink{log: btstack.NewLogger("avdtp")}
	_, err := avdtp.NewManager(avdtp.DefaultConfig(), transport.NewStubDriver(nil), avdtpTimer, sink, btstack.NewLogger("avdtp"))
	if err != nil {
		log.Fatalf("avdtp.NewManager: %v", err)
	}

	policy := &headlessPolicy{
		ioCap:   smp.IOCapability(*ioCap),
		mitm:    *mitm,
		bonding: *bonding,
		log:     btstack.NewLogger("smp"),
	}
	cfg := smp.DefaultConfig()
	cfg.SecureConnectionsOnlyModeRequired = *scOnly
	_, err = smp.NewEngine(cfg, smptest.Provider{}, transport.NewStubDriver(nil), smpTimer, policy, btstack.NewLogger("smp"), btstack.Address{})
	if err != nil {
		log.Fatalf("smp.NewEngine: %v", err)
	}

	log.Noticef("btstackd launched: iocap=%v mitm=%v bonding=%v sc-only=%v", policy.ioCap, policy.mitm, policy.bonding, *scOnly)
	log.Notice("no native L2CAP/BLE backend is wired into this build; the signaling and pairing engines are ready but idle")

	stopSignal := make(chan os.Signal, 1)
	signal.Notify(stopSignal, os.Interrupt, syscall.SIGHUP, syscall.SIGQUIT, syscall.SIGTERM)
	sig, ok := <-stopSignal
	if ok {
		log.Notice("stopping with signal", sig)
	}
}

// loggingSink is the daemon's EventSink: it has no SEP/application logic of
// its own yet, so it just traces classified events the way krd's
// controlServer traces enclave requests before a real media/profile layer
// is wired in.
type loggingSink struct {
	log *logging.Logger
}

func (s *loggingSink) OnCCBEvent(ev avdtp.Event) { s.log.Debugf("ccb event: %+v", ev) }
func (s *loggingSink) OnSCBEvent(ev avdtp.Event) { s.log.Debugf("scb event: %+v", ev) }
func (s *loggingSink) OnTransportFailure(ccb avdtp.Handle, signal avdtp.SignalID) {
	s.log.Warningf("ccb %d: transport failure on signal %v", ccb, signal)
}
func (s *loggingSink) OnConnect(ccb avdtp.Handle, peer btstack.Address) {
	s.log.Noticef("ccb %d: connected to %v", ccb, peer)
}
func (s *loggingSink) OnDisconnect(ccb avdtp.Handle) {
	s.log.Noticef("ccb %d: disconnected", ccb)
}

// headlessPolicy is the daemon's default smp.AppCallback: no display or
// keyboard is attached to the process, so it always answers with the
// configured IO capability and auto-accepts numeric comparison, matching a
// headless peripheral's usual JustWorks/NumericCompare posture. A real
// deployment with a console or companion UI would replace this with one
// that actually prompts, the way kr's confirmOrFatal prompts over stdin.
type headlessPolicy struct {
	ioCap   smp.IOCapability
	mitm    bool
	bonding bool
	log     *logging.Logger
}

func (p *headlessPolicy) IOCapRequest(peer btstack.Address) (smp.IOCapability, smp.OOBDataFlag, smp.AuthReq, byte, smp.KeyDistMask, smp.KeyDistMask) {
	authReq := smp.AuthReqSC
	if p.bonding {
		authReq |= smp.AuthReqBonding
	}
	if p.mitm {
		authReq |= smp.AuthReqMITM
	}
	return p.ioCap, smp.OOBNotPresent, authReq, 16, smp.KeyDistENC | smp.KeyDistID, smp.KeyDistENC | smp.KeyDistID
}

func (p *headlessPolicy) PasskeyRequest(peer btstack.Address) uint32 {
	p.log.Warningf("%v: passkey entry requested but no input device is attached; returning 0", peer)
	return 0
}

func (p *headlessPolicy) PasskeyNotify(peer btstack.Address, passkey uint32) {
	p.log.Noticef("%v: passkey %06d (no display attached to show it)", peer, passkey)
}

func (p *headlessPolicy) NumericComparison(peer btstack.Address, value uint32) bool {
	p.log.Noticef("%v: auto-confirming numeric comparison %06d (headless policy)", peer, value)
	return true
}

func (p *headlessPolicy) OOBRequest(peer btstack.Address) ([16]byte, bool) {
	return [16]byte{}, false
}

func (p *headlessPolicy) PairingComplete(peer btstack.Address, success bool, reason smp.ReasonCode, level smp.SecurityLevel) {
	if success {
		p.log.Noticef("%v: pairing complete, security level %v", peer, level)
	} else {
		p.log.Warningf("%v: pairing failed, reason %v", peer, reason)
	}
}

// DerivedLinkKey receives a BR/EDR link key derived from this LE bond. No
// BR/EDR security database is wired into this build, so it's only logged;
// a real host would hand this to the classic-pairing key store, gated by
// smp.CheckCrossTransportPolicy against whatever key it already holds.
func (p *headlessPolicy) DerivedLinkKey(peer btstack.Address, linkKey [16]byte) {
	p.log.Noticef("%v: derived BR/EDR link key from LE bond (no key store wired in to persist it)", peer)
}
