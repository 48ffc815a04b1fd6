package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rzzdr/options-risk-engine/internal/margin"
	"github.com/rzzdr/options-risk-engine/internal/pricing"
	"github.com/rzzdr/options-risk-engine/internal/risk"
	"github.com/rzzdr/options-risk-engine/pkg/models"
	"github.com/rzzdr/options-risk-engine/pkg/utils/errors"
)

func newMarginCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "margin <legs.json>",
		Short: "Compute the margin of a strategy",
		Example: `  optrisk margin strangle.json
  optrisk margin --model approx - < strangle.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			model, _ := cmd.Flags().GetString("model")
			if model != margin.ModelScenario && model != margin.ModelApprox {
				return errors.InvalidArgumentf("unknown margin model %q", model)
			}
			doc, err := readLegs(cmd, args[0])
			if err != nil {
				return err
			}

			result := app.Calculator.Margin(doc.Legs, app.market(doc), doc.Grid, model)
			return app.print(cmd, result, func(w io.Writer) {
				fmt.Fprintf(w, "SPAN margin:     %.2f\n", result.SpanMargin)
				fmt.Fprintf(w, "Exposure margin: %.2f\n", result.ExposureMargin)
				fmt.Fprintf(w, "Total margin:    %.2f\n", result.TotalMargin)
				if ws := result.WorstScenario; ws != nil {
					fmt.Fprintf(w, "Worst scenario:  spot %+.0f%% vol %+.0f%% at %.2f (P&L %.2f)\n",
						ws.SpotMove*100, ws.VolShift*100, ws.Spot, ws.PnL)
				}
			})
		},
	}
	cmd.Flags().String("model", margin.ModelScenario, "margin model: scenario or approx")
	return cmd
}

func formatBound(v float64, unlimited bool) string {
	if unlimited {
		return "unlimited"
	}
	return fmt.Sprintf("%.2f", v)
}

func printMetrics(w io.Writer, m models.StrategyMetrics) {
	fmt.Fprintf(w, "Max profit:  %s\n", formatBound(m.MaxProfit, m.IsMaxProfitUnlimited))
	fmt.Fprintf(w, "Max loss:    %s\n", formatBound(m.MaxLoss, m.IsMaxLossUnlimited))
	fmt.Fprintf(w, "ROI:         %.2f%%\n", m.ROI)
	fmt.Fprintf(w, "POP:         %.2f%%\n", m.POP)
	be := make([]string, len(m.BreakevenPoints))
	for i, p := range m.BreakevenPoints {
		be[i] = fmt.Sprintf("%.2f", p)
	}
	fmt.Fprintf(w, "Breakevens:  %s\n", strings.Join(be, ", "))
}

func newMetricsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "metrics <legs.json>",
		Short: "Compute max profit, max loss, POP and breakevens",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readLegs(cmd, args[0])
			if err != nil {
				return err
			}
			m := app.Calculator.Metrics(doc.Legs, app.market(doc))
			return app.print(cmd, m, func(w io.Writer) { printMetrics(w, m) })
		},
	}
}

func newEvaluateCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate <legs.json>",
		Short: "Compute the full risk report of a strategy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			model, _ := cmd.Flags().GetString("model")
			if model != margin.ModelScenario && model != margin.ModelApprox {
				return errors.InvalidArgumentf("unknown margin model %q", model)
			}
			doc, err := readLegs(cmd, args[0])
			if err != nil {
				return err
			}
			report := app.Calculator.Evaluate(risk.Request{
				Underlying:  doc.Underlying,
				Legs:        doc.Legs,
				Market:      app.market(doc),
				Target:      doc.TargetDate,
				Grid:        doc.Grid,
				MarginModel: model,
			})
			return app.print(cmd, report, func(w io.Writer) {
				fmt.Fprintf(w, "Underlying:  %s @ %.2f (lot %d)\n", report.Underlying, report.Spot, report.LotSize)
				fmt.Fprintf(w, "Investment:  %.2f\n", report.TotalInvestment)
				fmt.Fprintf(w, "Margin:      %.2f\n", report.Margin.TotalMargin)
				printMetrics(w, report.Metrics)
			})
		},
	}
	cmd.Flags().String("model", margin.ModelScenario, "margin model: scenario or approx")
	return cmd
}

func newScenariosCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scenarios",
		Short: "List the scenario grid applied to a spot",
		RunE: func(cmd *cobra.Command, args []string) error {
			spot, _ := cmd.Flags().GetFloat64("spot")
			if spot <= 0 {
				return errors.InvalidArgument("--spot must be positive")
			}
			scenarios := app.Config.Grid().Scenarios(spot)
			return app.print(cmd, scenarios, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "#\tSPOT MOVE\tVOL SHIFT\tSPOT")
				for _, s := range scenarios {
					fmt.Fprintf(tw, "%d\t%+.1f%%\t%+.1f%%\t%.2f\n", s.Index, s.SpotMove*100, s.VolShift*100, s.Spot)
				}
				tw.Flush()
			})
		},
	}
	cmd.Flags().Float64("spot", 0, "underlying spot price")
	return cmd
}

type priceOutput struct {
	Price   float64       `json:"price"`
	Forward float64       `json:"forward"`
	Years   float64       `json:"years"`
	Greeks  models.Greeks `json:"greeks"`
}

func newPriceCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "price",
		Short:   "Price one option with Black-76",
		Example: `  optrisk price --type CE --spot 17500 --strike 17600 --days 7 --vol 0.14`,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			typ, _ := flags.GetString("type")
			spot, _ := flags.GetFloat64("spot")
			strike, _ := flags.GetFloat64("strike")
			days, _ := flags.GetFloat64("days")
			vol, _ := flags.GetFloat64("vol")
			q, _ := flags.GetFloat64("dividend-yield")

			var optionType models.OptionType
			if err := optionType.UnmarshalText([]byte(typ)); err != nil {
				return errors.InvalidArgumentf("unknown option type %q", typ)
			}
			if spot <= 0 || strike <= 0 || vol <= 0 {
				return errors.InvalidArgument("spot, strike and vol must be positive")
			}

			rate := app.Calculator.RiskFreeRate()
			if flags.Changed("rate") {
				rate, _ = flags.GetFloat64("rate")
			}
			years := max(days/365, pricing.MinTimeToExpiry)
			in := pricing.Input{
				Type:       optionType,
				Forward:    pricing.Forward(spot, rate, q, years),
				Strike:     strike,
				Years:      years,
				Rate:       rate,
				Volatility: vol,
			}
			out := priceOutput{Price: pricing.Black76(in), Forward: in.Forward, Years: years, Greeks: pricing.Greeks(in)}
			return app.print(cmd, out, func(w io.Writer) {
				fmt.Fprintf(w, "Price:   %.4f (forward %.2f, %.4f years)\n", out.Price, out.Forward, out.Years)
				fmt.Fprintf(w, "Delta:   %.4f\n", out.Greeks.Delta)
				fmt.Fprintf(w, "Gamma:   %.6f\n", out.Greeks.Gamma)
				fmt.Fprintf(w, "Theta:   %.4f\n", out.Greeks.Theta)
				fmt.Fprintf(w, "Vega:    %.4f\n", out.Greeks.Vega)
				fmt.Fprintf(w, "Rho:     %.4f\n", out.Greeks.Rho)
			})
		},
	}
	cmd.Flags().String("type", "CE", "option type: CE or PE")
	cmd.Flags().Float64("spot", 0, "underlying spot price")
	cmd.Flags().Float64("strike", 0, "strike price")
	cmd.Flags().Float64("days", 7, "calendar days to expiry")
	cmd.Flags().Float64("vol", 0.2, "annualized implied volatility")
	cmd.Flags().Float64("rate", 0, "risk-free rate (default from config)")
	cmd.Flags().Float64("dividend-yield", 0, "continuous dividend yield")
	return cmd
}
