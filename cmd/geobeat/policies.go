package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/DecentralizedGeo/geobeat-sub000/internal/domain"
	"github.com/DecentralizedGeo/geobeat-sub000/internal/scoring"
)

var (
	policyVersion string
	policyYAML    bool
)

var policiesCmd = &cobra.Command{
	Use:   "policies",
	Short: "Inspect scoring policies",
	Long: `Inspect the scoring policies known to this installation: the built-in
versions plus any policies from scoring.policy_file.`,
	RunE: runPoliciesList,
}

var policiesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every registered policy version",
	RunE:  runPoliciesList,
}

var policiesShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print one policy",
	Args:  cobra.ExactArgs(1),
	RunE:  runPoliciesShow,
}

func init() {
	rootCmd.AddCommand(policiesCmd)
	policiesCmd.AddCommand(policiesListCmd)
	policiesCmd.AddCommand(policiesShowCmd)

	policiesShowCmd.Flags().StringVar(&policyVersion, "version", "", "policy version (default: latest)")
	policiesShowCmd.Flags().BoolVar(&policyYAML, "yaml", false, "print YAML instead of JSON")
}

// buildRegistry registers the built-in policies, then the policy file, then
// the stored policies when repo is set. Conflicting versions are an error.
func buildRegistry(ctx context.Context, cfg *domain.Config, repo domain.Repository) (*scoring.Registry, error) {
	registry := scoring.NewDefaultRegistry()

	if cfg.Scoring.PolicyFile != "" {
		policies, err := scoring.LoadPolicyFile(cfg.Scoring.PolicyFile)
		if err != nil {
			return nil, err
		}
		if err := registry.Load(policies); err != nil {
			return nil, fmt.Errorf("policy file %s: %w", cfg.Scoring.PolicyFile, err)
		}
		slog.Debug("policy file loaded", "path", cfg.Scoring.PolicyFile, "count", len(policies))
	}

	if repo != nil {
		stored, err := repo.ListPolicies(ctx)
		if err != nil {
			return nil, fmt.Errorf("list stored policies: %w", err)
		}
		if err := registry.Load(stored); err != nil {
			return nil, fmt.Errorf("stored policies: %w", err)
		}
	}
	return registry, nil
}

func runPoliciesList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	registry, err := buildRegistry(cmd.Context(), cfg, nil)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tVERSION\tNAME")
	for _, p := range registry.List() {
		fmt.Fprintf(w, "%s\t%s\t%s\n", p.ID, p.Version, p.Name)
	}
	return w.Flush()
}

func runPoliciesShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	registry, err := buildRegistry(cmd.Context(), cfg, nil)
	if err != nil {
		return err
	}
	p, err := registry.Get(args[0], policyVersion)
	if err != nil {
		return err
	}

	if policyYAML {
		data, err := scoring.MarshalPolicies([]*domain.ScoringPolicy{p})
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(p)
}
