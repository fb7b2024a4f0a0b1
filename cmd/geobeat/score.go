package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/DecentralizedGeo/geobeat-sub000/internal/domain"
	"github.com/DecentralizedGeo/geobeat-sub000/internal/ingest"
	"github.com/DecentralizedGeo/geobeat-sub000/internal/observability"
	"github.com/DecentralizedGeo/geobeat-sub000/internal/pipeline"
	"github.com/DecentralizedGeo/geobeat-sub000/internal/scoring"
)

var (
	scoreInput         string
	scoreFormat        string
	scoreNetwork       string
	scorePolicy        string
	scorePolicyVersion string
	scoreFilter        string
	scoreSeed          uint64
	scorePermutations  int
	scoreCapturedAt    string
)

// errScoreFailed marks a run whose failure report was already printed.
var errScoreFailed = errors.New("scoring failed")

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score one snapshot file",
	Long: `Score a node snapshot read from a CSV or JSON file and print the
composite score as JSON.

On failure the failed sub-indices and their causes are printed and the
command exits with status 1; no partial score is shown.

Examples:
  geobeat score --input nodes.csv --network ethereum --policy gdi-v0-absolute
  geobeat score --input nodes.json --network filecoin --policy gdi-v0-relative --filter 'country != "US"'`,
	RunE: runScore,
}

func init() {
	rootCmd.AddCommand(scoreCmd)

	f := scoreCmd.Flags()
	f.StringVarP(&scoreInput, "input", "i", "", "snapshot file (.csv or .json, - for stdin)")
	f.StringVar(&scoreFormat, "format", "", "input format: csv or json (default: from the file extension)")
	f.StringVarP(&scoreNetwork, "network", "n", "", "network name")
	f.StringVarP(&scorePolicy, "policy", "p", "", "scoring policy ID (default: scoring.default_policy)")
	f.StringVar(&scorePolicyVersion, "policy-version", "", "policy version (default: latest)")
	f.StringVar(&scoreFilter, "filter", "", "CEL node filter applied before scoring")
	f.Uint64Var(&scoreSeed, "seed", 0, "permutation seed (default: engine.seed)")
	f.IntVar(&scorePermutations, "permutations", 0, "Moran's I permutations (default: engine.permutations)")
	f.StringVar(&scoreCapturedAt, "captured-at", "", "snapshot time, RFC 3339 (default: now)")

	_ = scoreCmd.MarkFlagRequired("input")
	_ = scoreCmd.MarkFlagRequired("network")
}

func runScore(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := observability.NewLogger(cfg.Logging, cmd.ErrOrStderr())

	capturedAt := time.Now().UTC()
	if scoreCapturedAt != "" {
		capturedAt, err = time.Parse(time.RFC3339, scoreCapturedAt)
		if err != nil {
			return fmt.Errorf("--captured-at: %w", err)
		}
	}

	snapshot, err := readSnapshot(cmd.InOrStdin(), scoreInput, scoreFormat, scoreNetwork, capturedAt)
	if err != nil {
		return err
	}

	engineCfg := cfg.Engine
	if cmd.Flags().Changed("seed") {
		engineCfg.Seed = scoreSeed
	}
	if cmd.Flags().Changed("permutations") {
		engineCfg.Permutations = scorePermutations
	}

	registry, err := buildRegistry(cmd.Context(), cfg, nil)
	if err != nil {
		return err
	}
	engine, err := pipeline.New(engineCfg, registry, scoring.NewScorer(Version), pipeline.WithLogger(logger))
	if err != nil {
		return err
	}

	policyID := scorePolicy
	if policyID == "" {
		policyID = cfg.Scoring.DefaultPolicy
	}

	score, err := engine.Score(cmd.Context(), &pipeline.Request{
		Snapshot:      snapshot,
		PolicyID:      policyID,
		PolicyVersion: scorePolicyVersion,
		Filter:        scoreFilter,
	})
	if err != nil {
		printFailure(cmd.ErrOrStderr(), err)
		return errScoreFailed
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(score)
}

// readSnapshot parses path as CSV or JSON; "-" reads stdin.
func readSnapshot(stdin io.Reader, path, format, network string, capturedAt time.Time) (*domain.NetworkSnapshot, error) {
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	}

	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	switch format {
	case "csv":
		return ingest.ReadCSV(r, network, capturedAt)
	case "json":
		return ingest.ReadJSON(r, network, capturedAt)
	default:
		return nil, fmt.Errorf("unknown input format %q: use --format csv or json", format)
	}
}

// printFailure lists every failed sub-index so no partial result is hidden.
func printFailure(w io.Writer, err error) {
	report := pipeline.Explain(err)
	fmt.Fprintf(w, "scoring failed (%s)\n", report.Kind)
	if len(report.FailedModules) > 0 {
		fmt.Fprintf(w, "failed modules: %s\n", strings.Join(report.FailedModules, ", "))
	}
	for _, line := range strings.Split(report.Error, "\n") {
		fmt.Fprintf(w, "  %s\n", line)
	}
}
