// Package notify renders periodic status reports to the console.
package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/iDechart/polymarket-arbitrage/internal/ports"
)

// Console implements ports.Notifier by printing formatted status tables.
type Console struct {
	out     io.Writer
	compact bool
}

// NewConsole creates a notifier writing to stdout.
func NewConsole(compact bool) *Console {
	return &Console{out: os.Stdout, compact: compact}
}

// NewConsoleWriter creates a notifier for tests.
func NewConsoleWriter(w io.Writer, compact bool) *Console {
	return &Console{out: w, compact: compact}
}

// Notify prints the status report in the configured mode.
func (c *Console) Notify(_ context.Context, report ports.StatusReport) error {
	now := time.Now().Format("15:04:05")

	if c.compact {
		fmt.Fprintf(c.out, "[%s] pnl:%s exposure:%s orders:%v filled:%v dropped:%v kill:%v\n",
			now,
			fmtNum(report.Portfolio["total_pnl"]),
			fmtNum(report.Risk["global_exposure"]),
			report.Engine["open_orders"],
			report.Engine["orders_filled"],
			report.Engine["signals_dropped"],
			report.Risk["kill_switch_triggered"],
		)
		return nil
	}

	fmt.Fprintf(c.out, "\n[%s] status report\n", now)
	c.printSection("ENGINE", report.Engine)
	c.printSection("RISK", report.Risk)
	c.printSection("PORTFOLIO", report.Portfolio)
	c.printSection("TIMING", report.Timing)
	return nil
}

// printSection renders one snapshot map as a two-column table with sorted
// keys so output is stable.
func (c *Console) printSection(title string, fields map[string]any) {
	if len(fields) == 0 {
		return
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintf(c.out, "-- %s --\n", title)
	table := tablewriter.NewWriter(c.out)
	table.Header("Field", "Value")
	for _, k := range keys {
		table.Append(k, fmtNum(fields[k]))
	}
	table.Render()
}

// fmtNum renders floats with two decimals and passes everything else
// through.
func fmtNum(v any) string {
	switch n := v.(type) {
	case float64:
		return fmt.Sprintf("%.2f", n)
	case float32:
		return fmt.Sprintf("%.2f", n)
	default:
		return fmt.Sprintf("%v", v)
	}
}
