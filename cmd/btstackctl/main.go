// Command btstackctl is the operator CLI for btstackd, the way kr is the
// operator CLI for krd: it has no daemon RPC of its own to talk to yet (no
// control socket is wired up), so its commands either print configuration
// or drive the engines directly in-process for a live demonstration.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli"

	"github.com/keepQASSA/system-bt"
	"github.com/keepQASSA/system-bt/avdtp"
	"github.com/keepQASSA/system-bt/smp"
	"github.com/keepQASSA/system-bt/smp/smptest"
	"github.com/keepQASSA/system-bt/transport"
)

func PrintErr(msg string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, msg+"\n", args...)
}

func configCommand(c *cli.Context) error {
	ac := avdtp.DefaultConfig()
	sc := smp.DefaultConfig()
	color.Green("avdtp.Config")
	fmt.Printf("  RetransmitCount:      %d\n", ac.RetransmitCount)
	fmt.Printf("  ResponseTimeout:      %s\n", ac.ResponseTimeout)
	fmt.Printf("  RetransmitTimeout:    %s\n", ac.RetransmitTimeout)
	fmt.Printf("  IdleTimeout:          %s\n", ac.IdleTimeout)
	fmt.Printf("  ReassemblyBufferSize: %d\n", ac.ReassemblyBufferSize)
	color.Green("smp.Config")
	fmt.Printf("  DelayedAuthTail:      %s\n", sc.DelayedAuthTail)
	fmt.Printf("  MinEncryptionKeySize: %d\n", sc.MinEncryptionKeySize)
	fmt.Printf("  SecureConnectionsOnlyModeRequired: %v\n", sc.SecureConnectionsOnlyModeRequired)
	return nil
}

// simulatePolicy answers every IOCapRequest identically and auto-accepts
// numeric comparison, just enough to drive a JustWorks pairing end to end
// for the demo command.
type simulatePolicy struct {
	name string
	done chan smp.ReasonCode
}

func (p *simulatePolicy) IOCapRequest(peer btstack.Address) (smp.IOCapability, smp.OOBDataFlag, smp.AuthReq, byte, smp.KeyDistMask, smp.KeyDistMask) {
	return smp.IONoInputNoOutput, smp.OOBNotPresent, smp.AuthReqBonding, 16, smp.KeyDistENC | smp.KeyDistID, smp.KeyDistENC | smp.KeyDistID
}
func (p *simulatePolicy) PasskeyRequest(peer btstack.Address) uint32        { return 0 }
func (p *simulatePolicy) PasskeyNotify(peer btstack.Address, passkey uint32) {}
func (p *simulatePolicy) NumericComparison(peer btstack.Address, value uint32) bool {
	return true
}
func (p *simulatePolicy) OOBRequest(peer btstack.Address) ([16]byte, bool) { return [16]byte{}, false }
func (p *simulatePolicy) PairingComplete(peer btstack.Address, success bool, reason smp.ReasonCode, level smp.SecurityLevel) {
	color.Cyan("%s: pairing complete with %v (success=%v level=%v)", p.name, peer, success, level)
	p.done <- reason
}
func (p *simulatePolicy) DerivedLinkKey(peer btstack.Address, linkKey [16]byte) {
	color.Cyan("%s: derived BR/EDR link key from LE bond with %v", p.name, peer)
}

type engineEvents struct{ e *smp.Engine }

func (v engineEvents) OnConnectCfm(h transport.Handle, ok bool)              {}
func (v engineEvents) OnConnectInd(h transport.Handle, peer btstack.Address) {}
func (v engineEvents) OnData(h transport.Handle, data []byte)               { v.e.Receive(h, data) }
func (v engineEvents) OnCongested(h transport.Handle, congested bool)       {}
func (v engineEvents) OnDisconnect(h transport.Handle)                      {}

func simulateCommand(c *cli.Context) error {
	addrA := btstack.Address{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}
	addrB := btstack.Address{0x11, 0x12, 0x13, 0x14, 0x15, 0x16}

	policyA := &simulatePolicy{name: "central", done: make(chan smp.ReasonCode, 1)}
	policyB := &simulatePolicy{name: "peripheral", done: make(chan smp.ReasonCode, 1)}

	ta, tb := transport.NewPair(200, nil, nil)
	timerA, timerB := transport.NewSystemTimer(), transport.NewSystemTimer()
	log := btstack.NewLogger("btstackctl")

	engA, err := smp.NewEngine(smp.DefaultConfig(), smptest.Provider{}, ta, timerA, policyA, log, addrA)
	if err != nil {
		return err
	}
	engB, err := smp.NewEngine(smp.DefaultConfig(), smptest.Provider{}, tb, timerB, policyB, log, addrB)
	if err != nil {
		return err
	}
	ta.SetEvents(engineEvents{engA})
	tb.SetEvents(engineEvents{engB})
	engA.Open(addrB, 1)
	engB.Open(addrA, 1)

	color.Yellow("starting JustWorks pairing simulation between %v and %v", addrA, addrB)
	if err := engA.StartPairing(); err != nil {
		return err
	}

	timeout := time.After(5 * time.Second)
	for i := 0; i < 2; i++ {
		select {
		case <-policyA.done:
		case <-policyB.done:
		case <-timeout:
			return fmt.Errorf("simulation timed out waiting for both sides to complete")
		}
	}
	color.Green("simulation complete")
	return nil
}

func main() {
	app := cli.NewApp()
	app.Name = "btstackctl"
	app.Usage = "inspect and exercise the btstackd signaling and pairing engines"
	app.Version = "0.1.0"
	app.Commands = []cli.Command{
		{
			Name:   "config",
			Usage:  "Print the effective avdtp and smp default configuration.",
			Action: configCommand,
		},
		{
			Name:   "simulate",
			Usage:  "Run an in-process JustWorks pairing between two engines and report the outcome.",
			Action: simulateCommand,
		},
	}
	if err := app.Run(os.Args); err != nil {
		PrintErr("%v", err)
		os.Exit(1)
	}
}
