// Package report renders decoded frames as human readable text.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/lorawan-server/lrwphy/pkg/lorawan"
)

// Options controls the rendering
type Options struct {
	// Verbose adds explanatory text under header fields and MAC commands
	Verbose bool

	// Object is the application codec output, printed after FRMPayload
	Object map[string]interface{}
}

type printer struct {
	w       io.Writer
	verbose bool
	err     error
}

func (p *printer) printf(format string, args ...interface{}) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format+"\n", args...)
}

func (p *printer) detail(text string) {
	if p.verbose && text != "" {
		p.printf("        %s", text)
	}
}

// Render writes the report of f
func Render(w io.Writer, f *lorawan.Frame, opts Options) error {
	if f == nil {
		return nil
	}
	p := &printer{w: w, verbose: opts.Verbose}

	mhdr := mhdrByte(f.MHDR)
	raw := append(append([]byte{mhdr}, f.Body...), f.MIC...)
	p.printf("=== PHYPayload ===")
	p.printf("[x %s]", spaced(raw))

	p.printf("## MHDR           [x%02x] [b%08b]", mhdr, mhdr)
	p.printf("  MType         : %s [b%03b]", f.MHDR.MType, byte(f.MHDR.MType))
	p.printf("  RFU           : [b%03b]", f.MHDR.RFU)
	p.printf("  Major         : %s [b%02b]", f.MHDR.Major, byte(f.MHDR.Major))
	p.printf("  Direction     : %s", f.Direction)

	switch {
	case f.JoinRequest != nil:
		renderJoinRequest(p, f.JoinRequest)
	case f.JoinAccept != nil:
		renderJoinAccept(p, f.JoinAccept)
	case f.MACPayload != nil:
		renderMACPayload(p, f.Direction, f.MACPayload)
	default:
		p.printf("## Body         : %s", f.Body)
	}

	if len(opts.Object) > 0 {
		b, err := json.MarshalIndent(opts.Object, "  ", "  ")
		if err != nil {
			return err
		}
		p.printf("## Object")
		p.printf("  %s", b)
	}

	p.printf("## MIC          : x%s", f.MIC)
	return p.err
}

// RenderError writes the error trailer
func RenderError(w io.Writer, err error) error {
	if err == nil {
		return nil
	}
	_, werr := fmt.Fprintf(w, "ERROR [%s]: %v\n", lorawan.ErrorKind(err), err)
	return werr
}

func renderJoinRequest(p *printer, jr *lorawan.JoinRequestPayload) {
	p.printf("## JoinReq")
	p.printf("  AppEUI        : %s", jr.AppEUI)
	p.printf("  DevEUI        : %s", jr.DevEUI)
	p.printf("  DevNonce      : %d [x%04x]", jr.DevNonce, jr.DevNonce)
}

func renderJoinAccept(p *printer, ja *lorawan.JoinAcceptPayload) {
	p.printf("## JoinAccept   (%s)", encryptionState(ja.Decrypted, false))
	p.printf("  AppNonce      : %s", ja.AppNonce)
	p.printf("  NetID         : %s", ja.NetID)
	p.printf("  DevAddr       : %s", ja.DevAddr)
	p.printf("  DLSettings")
	p.printf("    OptNeg      : %t", ja.DLSettings.OptNeg)
	p.printf("    RX1DROffset : %d", ja.DLSettings.RX1DROffset)
	p.detail("offset between the uplink data rate and the RX1 downlink data rate")
	p.printf("    RX2DataRate : %d", ja.DLSettings.RX2DataRate)
	p.printf("  RxDelay       : %d s", ja.RxDelaySeconds())
	if ja.CFList != nil {
		p.printf("  CFList        : [x%s] type %d", ja.CFList.Raw, ja.CFList.Type)
		for i, freq := range ja.CFList.Frequencies {
			p.printf("    Freq%d       : %d Hz", i+1, freq)
		}
	}
}

func renderMACPayload(p *printer, dir lorawan.Direction, m *lorawan.MACPayload) {
	h := m.FHDR
	p.printf("## MACPayload")
	p.printf("  FHDR")
	p.printf("    DevAddr     : %s", h.DevAddr)
	fctrl := fctrlByte(h.FCtrl, dir)
	p.printf("    FCtrl       : [x%02x] [b%08b]", fctrl, fctrl)
	p.printf("      ADR       : %s", flag(h.FCtrl.ADR))
	if dir == lorawan.Uplink {
		p.printf("      ADRACKReq : %s", flag(h.FCtrl.ADRACKReq))
		p.printf("      ACK       : %s", flag(h.FCtrl.ACK))
		p.printf("      ClassB    : %s", flag(h.FCtrl.ClassB))
	} else {
		p.printf("      RFU       : %s", flag(h.FCtrl.RFU))
		p.printf("      ACK       : %s", flag(h.FCtrl.ACK))
		p.printf("      FPending  : %s", flag(h.FCtrl.FPending))
	}
	p.printf("      FOptsLen  : %d", h.FCtrl.FOptsLen)
	p.printf("    FCnt        : %d (32-bit %d)", h.FCnt, m.FCnt32)

	if len(h.FOpts) > 0 {
		p.printf("    FOpts       : [x%s]", h.FOpts)
		renderCommands(p, h.FOptsCommands)
	}

	if m.FPort == nil {
		return
	}
	p.printf("## FPort        : %d", *m.FPort)
	if len(m.FRMPayload) > 0 {
		p.printf("## FRMPayload   : %s (%s)", m.FRMPayload, encryptionState(m.Decrypted, m.TestPayload))
	}
	if len(m.MACCommands) > 0 {
		renderCommands(p, m.MACCommands)
	}
}

func renderCommands(p *printer, cmds []lorawan.MACCommand) {
	p.printf("## MAC Command (No. CMD (CID DIR) [MSG])")
	for i, c := range cmds {
		if len(c.Raw) == 0 {
			p.printf("  %02d. %s (x%s %slink)", i+1, c.Name, c.CID, c.Direction)
		} else {
			p.printf("  %02d. %s (x%s %slink) [%s]", i+1, c.Name, c.CID, c.Direction, c.Raw)
		}
		p.detail(commandHelp[c.Name])
		renderFields(p, c.Payload)
		if p.verbose {
			renderDerived(p, c.Payload)
		}
	}
}

// renderDerived prints values computed from the raw command fields
func renderDerived(p *printer, payload interface{}) {
	switch pl := payload.(type) {
	case *lorawan.LinkADRReqPayload:
		p.printf("      %-18s: %v", "EnabledChannels", pl.EnabledChannels())
	case *lorawan.DutyCycleReqPayload:
		p.printf("      %-18s: 1/%d (%g)", "AggregatedDC", uint32(1)<<pl.MaxDCycle, pl.AggregatedDutyCycle())
	case *lorawan.RXTimingSetupReqPayload:
		p.printf("      %-18s: %d s", "RX1Delay", pl.Seconds())
	case *lorawan.TXParamSetupReqPayload:
		p.printf("      %-18s: %d dBm", "MaxEIRPLimit", pl.MaxEIRPdBm())
	case *lorawan.DeviceModePayload:
		p.printf("      %-18s: %s", "DeviceClass", pl.ClassName())
	}
}

// renderFields prints the exported fields of a command payload struct
func renderFields(p *printer, payload interface{}) {
	if payload == nil {
		return
	}
	v := reflect.Indirect(reflect.ValueOf(payload))
	if v.Kind() != reflect.Struct {
		return
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if !t.Field(i).IsExported() {
			continue
		}
		p.printf("      %-18s: %v", t.Field(i).Name, v.Field(i).Interface())
	}
}

func mhdrByte(h lorawan.MHDR) byte {
	return byte(h.MType)<<5 | (h.RFU&0x07)<<2 | byte(h.Major)&0x03
}

func fctrlByte(c lorawan.FCtrl, dir lorawan.Direction) byte {
	b := c.FOptsLen & 0x0F
	if c.ADR {
		b |= 0x80
	}
	if c.ACK {
		b |= 0x20
	}
	if dir == lorawan.Uplink {
		if c.ADRACKReq {
			b |= 0x40
		}
		if c.ClassB {
			b |= 0x10
		}
	} else {
		if c.RFU {
			b |= 0x40
		}
		if c.FPending {
			b |= 0x10
		}
	}
	return b
}

func encryptionState(decrypted, test bool) string {
	switch {
	case test:
		return "test payload"
	case decrypted:
		return "decrypted"
	default:
		return "encrypted"
	}
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func spaced(b []byte) string {
	parts := make([]string, len(b))
	for i := range b {
		parts[i] = fmt.Sprintf("%02x", b[i])
	}
	return strings.Join(parts, " ")
}
