package main

import (
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/company-aggregator/internal/model"
	"github.com/sells-group/company-aggregator/internal/pipeline"
)

// Output formats accepted by --format.
const (
	formatJSON = "json"
	formatYAML = "yaml"
)

var (
	lookupFormat  string
	lookupVerbose bool
)

// lookupReport is the --verbose output: the result plus run details.
type lookupReport struct {
	model.Result `yaml:",inline"`

	RunID        string                     `json:"run_id" yaml:"run_id"`
	ResolvedName string                     `json:"resolved_name" yaml:"resolved_name"`
	FactsA       *model.CompanyFacts        `json:"facts_provider_a,omitempty" yaml:"facts_provider_a,omitempty"`
	FactsB       *model.CompanyFacts        `json:"facts_provider_b,omitempty" yaml:"facts_provider_b,omitempty"`
	Provenance   []pipeline.FieldProvenance `json:"provenance,omitempty" yaml:"provenance,omitempty"`
	Agreement    float64                    `json:"agreement" yaml:"agreement"`
	Stages       []model.StageResult        `json:"stages" yaml:"stages"`
	TotalTokens  int64                      `json:"total_tokens" yaml:"total_tokens"`
	CostUSD      float64                    `json:"cost_usd" yaml:"cost_usd"`
}

var lookupCmd = &cobra.Command{
	Use:   "lookup <company name or ticker>",
	Short: "Run one lookup and print the result",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkFormat(lookupFormat); err != nil {
			return err
		}
		env, err := initAggregator(cfg, "lookup")
		if err != nil {
			return err
		}
		return runLookup(cmd.Context(), env.Pipeline, strings.Join(args, " "), cmd.OutOrStdout())
	},
}

func runLookup(ctx context.Context, p *pipeline.Pipeline, input string, w io.Writer) error {
	state, err := p.Invoke(ctx, input)
	if err != nil {
		return eris.Wrapf(err, "lookup %q", input)
	}

	result, err := state.Result()
	if err != nil {
		return eris.Wrap(err, "lookup result")
	}

	zap.L().Info("lookup complete",
		zap.String("run_id", state.RunID),
		zap.String("company", state.ResolvedName),
		zap.String("classification", result.Classification),
		zap.Int64("total_tokens", state.TotalTokens()),
		zap.Float64("cost_usd", state.CostUSD),
	)

	if !lookupVerbose {
		return writeOutput(w, lookupFormat, result)
	}
	prov := pipeline.BuildProvenance(*state.FactsProviderA, *state.FactsProviderB)
	return writeOutput(w, lookupFormat, lookupReport{
		Result:       result,
		RunID:        state.RunID,
		ResolvedName: state.ResolvedName,
		FactsA:       state.FactsProviderA,
		FactsB:       state.FactsProviderB,
		Provenance:   prov,
		Agreement:    pipeline.Agreement(prov),
		Stages:       state.Stages,
		TotalTokens:  state.TotalTokens(),
		CostUSD:      state.CostUSD,
	})
}

func checkFormat(format string) error {
	switch format {
	case formatJSON, formatYAML:
		return nil
	default:
		return eris.Errorf("unknown format %q (want json or yaml)", format)
	}
}

func writeOutput(w io.Writer, format string, v any) error {
	if format == formatYAML {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return eris.Wrap(err, "encode yaml")
		}
		return enc.Close()
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	lookupCmd.Flags().StringVar(&lookupFormat, "format", formatJSON, "output format: json or yaml")
	lookupCmd.Flags().BoolVarP(&lookupVerbose, "verbose", "v", false, "include provider facts, stages and cost")
	rootCmd.AddCommand(lookupCmd)
}
