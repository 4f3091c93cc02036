package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "niftybot",
	Short: "A unit-allocated NIFTY options paper-trading bot",
	Long: `Niftybot paper-trades NIFTY index options on 15-minute bars.

Capital is split into independent units that rotate through entries, so
one bad streak never sinks the whole book. Signals come from an
EMA/RSI/ADX confluence over the spot index; fills are simulated against
real option premiums when live data is available and a pricing model
when it is not.

It provides tools for:
  - Live paper trading against the Dhan data API
  - Backtesting the same engine over historical candles
  - Journaling trades, equity and daily summaries to SQLite/Postgres/CSV
  - A read-only JSON/WebSocket dashboard over the journal
  - Telegram alerts for entries, exits and risk breaches`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}
