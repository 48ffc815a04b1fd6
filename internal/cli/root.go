// Package cli provides the optrisk command-line interface.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rzzdr/options-risk-engine/config"
	"github.com/rzzdr/options-risk-engine/internal/pricing"
	"github.com/rzzdr/options-risk-engine/internal/risk"
	"github.com/rzzdr/options-risk-engine/internal/scenario"
	"github.com/rzzdr/options-risk-engine/pkg/models"
	"github.com/rzzdr/options-risk-engine/pkg/utils/errors"
	"github.com/rzzdr/options-risk-engine/pkg/utils/logger"
)

// Version of the CLI
const Version = "1.0.0"

// App holds what the commands share once the configuration is loaded
type App struct {
	Config     *config.Config
	Calculator *risk.Calculator
	JSON       bool
}

// legsFile is the document read by the leg commands
type legsFile struct {
	Underlying   string             `json:"underlying"`
	Spot         float64            `json:"spot"`
	LotSize      int                `json:"lotSize"`
	RiskFreeRate *float64           `json:"riskFreeRate"`
	AsOf         time.Time          `json:"asOf"`
	TargetDate   time.Time          `json:"targetDate"`
	Grid         *scenario.Grid     `json:"grid"`
	Legs         []models.OptionLeg `json:"legs"`
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	app := &App{}

	rootCmd := &cobra.Command{
		Use:   "optrisk",
		Short: "Options strategy margin and risk calculator",
		Long: `optrisk prices option legs with Black-76 and reports the scenario margin,
payoff metrics and scenario grid of a strategy.

Leg commands read a JSON document from a file, or from stdin when the file is "-".`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			if path == "" {
				path = config.GetConfigPath()
			}
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				cfg.App.LogLevel = "debug"
			}
			logger.Init(cfg.LoggerConfig())

			app.Config = cfg
			app.Calculator = risk.NewCalculator(cfg.CalculatorConfig(), pricing.Black76Pricer{})
			app.JSON, _ = cmd.Flags().GetBool("json")
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "", "path to configuration file")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newMarginCmd(app))
	rootCmd.AddCommand(newMetricsCmd(app))
	rootCmd.AddCommand(newEvaluateCmd(app))
	rootCmd.AddCommand(newScenariosCmd(app))
	rootCmd.AddCommand(newPriceCmd(app))

	return rootCmd
}

// Execute runs the CLI and returns the process exit code
func Execute() int {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
		return 1
	}
	return 0
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "optrisk v%s\n", Version)
		},
	}
}

func readLegs(cmd *cobra.Command, name string) (*legsFile, error) {
	var r io.Reader
	if name == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(name)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to open %s", name)
		}
		defer f.Close()
		r = f
	}

	var doc legsFile
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, errors.InvalidArgumentf("malformed legs document: %v", err)
	}
	if doc.Spot <= 0 {
		return nil, errors.InvalidArgument("spot must be positive")
	}
	for i, leg := range doc.Legs {
		if leg.Action == "" || leg.OptionType == "" || leg.Strike <= 0 || leg.Lots < 0 {
			return nil, errors.InvalidArgumentf("invalid leg %d", i)
		}
	}
	doc.Underlying = strings.ToUpper(doc.Underlying)
	return &doc, nil
}

func (a *App) market(doc *legsFile) models.MarketContext {
	m := models.MarketContext{
		Spot:         doc.Spot,
		RiskFreeRate: a.Calculator.RiskFreeRate(),
		LotSize:      doc.LotSize,
		AsOf:         doc.AsOf,
	}
	if doc.RiskFreeRate != nil {
		m.RiskFreeRate = *doc.RiskFreeRate
	}
	if m.LotSize <= 0 {
		m.LotSize = a.Calculator.LotSize(doc.Underlying)
	}
	if m.AsOf.IsZero() {
		m.AsOf = a.Calculator.Now()
	}
	return m
}

func (a *App) print(cmd *cobra.Command, v interface{}, text func(w io.Writer)) error {
	if a.JSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(cmd.OutOrStdout())
	return nil
}
