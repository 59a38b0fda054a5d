package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "papertrader",
	Short: "A simulated FX trading-account engine with realistic frictions",
	Long: `Papertrader maintains a virtual trading account: it fills orders under
realistic slippage, spread, commission and swap, tracks stop-loss and
take-profit levels against incoming price ticks, and gates live execution
through a configurable risk shield.

It provides tools for:
  - Serving the engine over a websocket hub for dashboards and bots
  - Running scripted simulations from a config file
  - Journaling trades and equity curves to CSV or SQLite
  - Scoring trade signals into verification levels`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}
