package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fxlab/papertrader/config"
	"github.com/fxlab/papertrader/market"
	"github.com/fxlab/papertrader/paper"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a scripted simulation from a config file",
	Long: `Run a paper trade through a scripted sequence of price steps.

The config file specifies the account, frictions, and a simulation section
with the symbol, initial price, lot size, stop/target distances and the
price steps to play back.

Example:
  papertrader run --config examples/basic.yaml`,
	RunE: runRun,
}

var runConfigPath string

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runConfigPath, "config", "f", "", "path to config file (YAML or JSON) (required)")
	runCmd.MarkFlagRequired("config")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(runConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	sim := cfg.Simulation
	fmt.Printf("Running simulation with config: %s\n", runConfigPath)
	fmt.Printf("  Account: %s (Balance: $%.2f %s)\n", cfg.Account.ID, cfg.Account.Balance, cfg.Account.Currency)
	fmt.Printf("  Trade: BUY %s %.2f lots @ %.5f (stop %.0f pips, target %.0f pips)\n",
		sim.Symbol, sim.LotSize, sim.InitialPrice, sim.StopPips, sim.TargetPips)
	fmt.Println()

	j, err := newJournal(cfg.Journal)
	if err != nil {
		return fmt.Errorf("create journal: %w", err)
	}
	defer j.Close()

	engine := paper.NewEngine(
		paper.Account{
			ID:       cfg.Account.ID,
			Currency: cfg.Account.Currency,
			Balance:  cfg.Account.Balance,
		},
		paper.Friction{
			SlippageMinPips:  cfg.Friction.SlippageMinPips,
			SlippageMaxPips:  cfg.Friction.SlippageMaxPips,
			SpreadPips:       cfg.Friction.SpreadPips,
			CommissionPerLot: cfg.Friction.CommissionPerLot,
			SwapPerLotDay:    cfg.Friction.SwapPerLotDay,
			Leverage:         cfg.Friction.Leverage,
		},
		j,
	)

	pip := market.PipSize(sim.Symbol)
	pos, err := engine.Open(paper.OrderRequest{
		Symbol:     sim.Symbol,
		Side:       paper.Buy,
		Price:      sim.InitialPrice,
		LotSize:    sim.LotSize,
		StopLoss:   sim.InitialPrice - sim.StopPips*pip,
		TakeProfit: sim.InitialPrice + sim.TargetPips*pip,
	})
	if err != nil {
		return fmt.Errorf("open position: %w", err)
	}
	fmt.Printf("Opened %s: fill %.5f (requested %.5f)\n\n", pos.ID, pos.EntryPrice, sim.InitialPrice)

	for i, step := range sim.PriceSteps {
		if err := engine.Tick(sim.Symbol, step.Price); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
		acct := engine.Account()
		fmt.Printf("  step %2d: price %.5f  balance %.2f  equity %.2f\n",
			i+1, step.Price, acct.Balance, acct.Equity)
	}

	m := engine.Metrics()
	fmt.Println()
	fmt.Printf("Final balance: $%.2f (P/L %.2f, %.2f%%)\n", m.Balance, m.ProfitLoss, m.ProfitLossPercent)
	fmt.Printf("Closed trades: %d (win rate %.1f%%, profit factor %.2f)\n", m.TotalTrades, m.WinRate, m.ProfitFactor)
	fmt.Printf("Open positions: %d (unrealized %.2f)\n", m.OpenPositions, m.UnrealizedPL)

	return nil
}
