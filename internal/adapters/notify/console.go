package notify

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/gridbot/internal/engine"
)

// Console prints run reports to stdout.
type Console struct {
	out io.Writer
}

// NewConsole creates a notifier writing to stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout}
}

// NewConsoleWriter creates a notifier for tests.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w}
}

// PrintSummary renders the end-of-run report.
func (c *Console) PrintSummary(symbol string, initialCapital float64, bars int, s engine.Summary) {
	fmt.Fprintf(c.out, "\n[%s] %s — %d bars processed\n",
		time.Now().Format("15:04:05"), symbol, bars)

	table := tablewriter.NewWriter(c.out)
	table.Header("Metric", "Value")
	table.Append("Initial capital", fmt.Sprintf("$%.2f", initialCapital))
	table.Append("Final equity", fmt.Sprintf("$%.2f", s.FinalEquity))
	table.Append("Return", fmt.Sprintf("%.2f%%", returnPct(initialCapital, s.FinalEquity)))
	table.Append("Available capital", fmt.Sprintf("$%.2f", s.AvailableCapital))
	table.Append("Reserve capital", fmt.Sprintf("$%.2f", s.ReserveCapital))
	table.Append("Futures margin", fmt.Sprintf("$%.2f", s.FuturesMargin))
	table.Append("Realized grid pnl", fmt.Sprintf("$%.2f", s.RealizedGridProfit))
	table.Append("Realized hedge pnl", fmt.Sprintf("$%.2f", s.RealizedHedgeProfit))
	table.Append("Unrealized pnl", fmt.Sprintf("$%.2f", s.UnrealizedPnL))
	table.Append("Open positions", fmt.Sprintf("%d", s.OpenPositions))
	table.Append("Filled grid levels", fmt.Sprintf("%d", s.FilledLevels))
	table.Append("Hedge open", fmt.Sprintf("%t", s.HedgeOpen))
	table.Render()

	total := s.RealizedGridProfit + s.RealizedHedgeProfit
	switch {
	case total > 0:
		fmt.Fprintf(c.out, "\n  Net realized: +$%.2f (grid $%.2f, hedge $%.2f)\n\n",
			total, s.RealizedGridProfit, s.RealizedHedgeProfit)
	case total < 0:
		fmt.Fprintf(c.out, "\n  Net realized: -$%.2f — review parameters before going live\n\n", -total)
	default:
		fmt.Fprintf(c.out, "\n  No realized pnl — run was too short or no levels traded\n\n")
	}
}

// PrintProgress emits a compact one-liner for long backtests.
func (c *Console) PrintProgress(bars int, price, equity float64) {
	fmt.Fprintf(c.out, "[%s] bar %d | price $%.2f | equity $%.2f\n",
		time.Now().Format("15:04:05"), bars, price, equity)
}

func returnPct(initial, final float64) float64 {
	if initial <= 0 {
		return 0
	}
	return (final - initial) / initial * 100
}
