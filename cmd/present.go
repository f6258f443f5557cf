package cmd

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/harismuzaffer/antfleet/internal/ferrors"
	"github.com/harismuzaffer/antfleet/internal/registry"
)

// newResultTable returns a table with the styling shared across every
// command's output.
func newResultTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	return t
}

// printBatchResult renders a per-service batch outcome: which services
// succeeded, and the cause recorded for each one that failed.
func printBatchResult(w io.Writer, op string, result *ferrors.BatchResult) {
	if result == nil {
		fmt.Fprintf(w, "%s produced no result\n", op)
		return
	}

	t := newResultTable(w)
	t.AppendHeader(table.Row{text.FgHiCyan.Sprint("SERVICE"), text.FgHiCyan.Sprint("OUTCOME")})
	for _, name := range result.Succeeded {
		t.AppendRow(table.Row{name, text.FgHiGreen.Sprint("ok")})
	}
	for name, err := range result.Failed {
		t.AppendRow(table.Row{name, text.FgHiRed.Sprint(failureMessage(err))})
	}
	t.Render()

	fmt.Fprintf(w, "\n%s %s %d succeeded, %d failed\n",
		text.FgHiBlue.Sprint(op+":"), text.FgHiWhite.Sprint(""), len(result.Succeeded), len(result.Failed))
}

// failureMessage renders a per-service batch failure, calling out an
// identity mismatch specially since it means the service is running on
// the new binary but has silently changed (or never reported) its peer
// id rather than merely having failed to start.
func failureMessage(err error) string {
	if mismatch, ok := errAs[*ferrors.IdentityMismatchError](err); ok {
		return fmt.Sprintf("identity mismatch: %s", mismatch.Error())
	}
	if _, ok := errAs[*ferrors.PreconditionError](err); ok {
		return fmt.Sprintf("precondition failed: %s", err.Error())
	}
	return err.Error()
}

// printRegistryStatus renders the full fleet as a table: node services
// first, then the faucet and daemon singletons if present.
func printRegistryStatus(w io.Writer, reg *registry.Registry) {
	t := newResultTable(w)
	t.AppendHeader(table.Row{
		text.FgHiCyan.Sprint("SERVICE"),
		text.FgHiCyan.Sprint("STATUS"),
		text.FgHiCyan.Sprint("VERSION"),
		text.FgHiCyan.Sprint("PEER ID"),
		text.FgHiCyan.Sprint("PID"),
	})

	for _, n := range reg.ActiveNodes() {
		peerID := ""
		if n.PeerID != nil {
			peerID = *n.PeerID
		}
		pid := ""
		if n.PID != nil {
			pid = fmt.Sprintf("%d", *n.PID)
		}
		t.AppendRow(table.Row{n.ServiceName, colorizeStatus(n.Status), n.Version, peerID, pid})
	}
	if reg.Faucet != nil {
		f := reg.Faucet
		pid := ""
		if f.PID != nil {
			pid = fmt.Sprintf("%d", *f.PID)
		}
		t.AppendRow(table.Row{f.ServiceName, colorizeStatus(f.Status), f.Version, "", pid})
	}
	if reg.Daemon != nil {
		d := reg.Daemon
		pid := ""
		if d.PID != nil {
			pid = fmt.Sprintf("%d", *d.PID)
		}
		t.AppendRow(table.Row{d.ServiceName, colorizeStatus(d.Status), d.Version, "", pid})
	}

	t.Render()
	fmt.Fprintf(w, "\n%s %s\n", text.FgHiBlue.Sprint("NAT status:"), reg.NatStatus())
}

func colorizeStatus(s registry.ServiceStatus) string {
	switch s {
	case registry.StatusRunning:
		return text.FgHiGreen.Sprint(s)
	case registry.StatusStopped:
		return text.FgHiYellow.Sprint(s)
	case registry.StatusRemoved:
		return text.FgHiBlack.Sprint(s)
	default:
		return text.FgHiWhite.Sprint(s)
	}
}
