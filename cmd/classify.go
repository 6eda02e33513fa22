package main

import (
	"context"
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/company-aggregator/internal/classify"
	"github.com/sells-group/company-aggregator/internal/resilience"
)

var (
	classifyEmployees string
	classifyMarketCap string
	classifyFormat    string
)

type classifyOutput struct {
	Classification string `json:"classification" yaml:"classification"`
}

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Classify a company by employees and market cap",
	Long:  "Applies the size policy to the given values. An omitted flag is treated as a missing value.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkFormat(classifyFormat); err != nil {
			return err
		}
		if err := cfg.Validate("classify"); err != nil {
			return err
		}

		var employees, marketCap *string
		if cmd.Flags().Changed("employees") {
			employees = &classifyEmployees
		}
		if cmd.Flags().Changed("market-cap") {
			marketCap = &classifyMarketCap
		}

		c := newClassifier(cfg, resilience.FromRetryConfig(
			cfg.Retry.MaxAttempts,
			cfg.Retry.InitialBackoffMs,
			cfg.Retry.MaxBackoffMs,
			cfg.Retry.Multiplier,
			cfg.Retry.JitterFraction,
		))
		return runClassify(cmd.Context(), c, employees, marketCap, cmd.OutOrStdout())
	},
}

func runClassify(ctx context.Context, c classify.Classifier, employees, marketCap *string, w io.Writer) error {
	tier, err := c.Classify(ctx, employees, marketCap)
	if err != nil {
		return eris.Wrap(err, "classify")
	}
	return writeOutput(w, classifyFormat, classifyOutput{Classification: tier.String()})
}

func init() {
	classifyCmd.Flags().StringVar(&classifyEmployees, "employees", "", "employee count, e.g. \"220000\"")
	classifyCmd.Flags().StringVar(&classifyMarketCap, "market-cap", "", "market capitalization, e.g. \"3 trillion\"")
	classifyCmd.Flags().StringVar(&classifyFormat, "format", formatJSON, "output format: json or yaml")
	rootCmd.AddCommand(classifyCmd)
}
