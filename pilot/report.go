package pilot

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"

	"nodepilot/node"
)

// Reporter writes the line-oriented lifecycle report operators and scripts
// read from standard output. It is safe for concurrent use.
type Reporter struct {
	mu   sync.Mutex
	w    io.Writer
	crlf bool
}

// NewReporter returns a Reporter writing to w.
func NewReporter(w io.Writer) *Reporter {
	if w == nil {
		w = io.Discard
	}
	return &Reporter{w: w}
}

// setRawTerminal switches line endings to CRLF while the terminal has output
// post-processing disabled.
func (r *Reporter) setRawTerminal(raw bool) {
	r.mu.Lock()
	r.crlf = raw
	r.mu.Unlock()
}

func (r *Reporter) raw() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.crlf
}

// TerminalWriter wraps w, typically the log output sharing the terminal, so
// it also ends lines with CRLF while the terminal is raw.
func (r *Reporter) TerminalWriter(w io.Writer) io.Writer {
	return terminalWriter{r: r, w: w}
}

type terminalWriter struct {
	r *Reporter
	w io.Writer
}

func (t terminalWriter) Write(p []byte) (int, error) {
	if !t.r.raw() || bytes.IndexByte(p, '\n') < 0 {
		return t.w.Write(p)
	}
	if _, err := t.w.Write(bytes.ReplaceAll(p, []byte("\n"), []byte("\r\n"))); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (r *Reporter) line(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	end := "\n"
	if r.crlf {
		end = "\r\n"
	}
	fmt.Fprintf(r.w, format+end, args...)
}

// Prompt writes s without a line terminator.
func (r *Reporter) Prompt(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprint(r.w, s)
}

func (r *Reporter) NodeID(id node.NodeID) {
	r.line("NODE_ID: %s", id)
}

func (r *Reporter) ConnectionString(id node.NodeID, addr string) {
	r.line("CONNECTION_STRING: %s@%s", id, addr)
}

func (r *Reporter) ChannelPending(ev node.ChannelPending) {
	r.line("CHANNEL_PENDING: %s from counterparty %s", ev.ChannelID, ev.CounterpartyNodeID)
}

func (r *Reporter) ChannelReady(ev node.ChannelReady) {
	counterparty := "unknown"
	if ev.CounterpartyNodeID != nil {
		counterparty = ev.CounterpartyNodeID.String()
	}
	r.line("CHANNEL_READY: %s from counterparty %s", ev.ChannelID, counterparty)
}

func (r *Reporter) CreatedOffer(offer node.Offer) {
	r.line("CREATED_OFFER: %s", offer)
}

func (r *Reporter) PaymentReceived(ev node.PaymentReceived) {
	id := "none"
	if ev.PaymentID != nil {
		id = ev.PaymentID.String()
	}
	r.line("PAYMENT_RECEIVED: with id %s, hash %s, amount_msat %d", id, ev.PaymentHash, ev.AmountMsat)
}

func (r *Reporter) ShutdownRequested(trigger string) {
	r.line("SHUTDOWN: %s received, stopping node", strings.TrimSpace(trigger))
}

func (r *Reporter) Stopped() {
	r.line("SHUTDOWN: node stopped")
}
