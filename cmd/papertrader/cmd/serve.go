package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/fxlab/papertrader/config"
	"github.com/fxlab/papertrader/journal"
	"github.com/fxlab/papertrader/paper"
	"github.com/fxlab/papertrader/risk"
	"github.com/fxlab/papertrader/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the paper-trading engine over a websocket hub",
	Long: `Start the engine and expose it on a websocket endpoint.

Clients send open-position, close-position, close-all-positions, price-tick,
update-risk-settings and verify-signal frames and receive trade-executed,
trade-rejected, position-closed, risk-stats-update, risk-settings-updated and
signal-verified events.

Example:
  papertrader serve --config papertrader.yaml`,
	RunE: runServe,
}

var serveConfigPath string

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "f", "", "path to config file (YAML or JSON)")
}

func runServe(cmd *cobra.Command, args []string) error {
	// .env overrides for addr and db path; absence is not an error.
	_ = godotenv.Load()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	var cfg *config.Config
	var err error
	if serveConfigPath != "" {
		cfg, err = config.LoadFromFile(serveConfigPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	} else {
		cfg = config.Default()
	}

	j, err := newJournal(cfg.Journal)
	if err != nil {
		return fmt.Errorf("create journal: %w", err)
	}
	defer j.Close()

	// A restarted server lost its in-memory history; report what the journal
	// knows about today so operators can judge the drawdown headroom.
	if sj, ok := j.(*journal.SQLiteJournal); ok {
		dayStart := time.Now().UTC().Truncate(24 * time.Hour)
		if trades, err := sj.TradesClosedSince(dayStart); err == nil {
			var realized float64
			for _, t := range trades {
				realized += t.RealizedProfit
			}
			log.Info().
				Int("trades", len(trades)).
				Float64("realized", realized).
				Msg("journaled trades closed today")
		}
	}

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
		paper.WithLogger(log),
	)

	shield := risk.NewShield(cfg.Risk)
	hub := server.NewHub(log)
	gw := server.NewGateway(engine, shield, hub, log)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.Handler(gw))
	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":      "healthy",
			"connections": hub.ClientCount(),
		})
	})
	mux.HandleFunc("/api/metrics", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(engine.Metrics())
	})
	mux.HandleFunc("/api/positions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(engine.OpenPositions())
	})
	mux.HandleFunc("/api/history", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(engine.History())
	})
	mux.HandleFunc("/api/prices", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(gw.Prices().Snapshot())
	})
	mux.HandleFunc("/api/equity-curve", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(engine.EquityCurve())
	})

	log.Info().
		Str("addr", cfg.Server.Addr).
		Str("account", cfg.Account.ID).
		Float64("balance", cfg.Account.Balance).
		Msg("papertrader listening")

	return http.ListenAndServe(cfg.Server.Addr, mux)
}

func newJournal(jc config.JournalConfig) (journal.Journal, error) {
	switch jc.Type {
	case "csv":
		return journal.NewCSV(jc.TradesFile, jc.EquityFile)
	case "sqlite":
		return journal.NewSQLite(jc.DBPath)
	default:
		return journal.Nop{}, nil
	}
}
