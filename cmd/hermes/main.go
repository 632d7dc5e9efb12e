package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nwdaf-lab/hermes/internal/config"
	"github.com/nwdaf-lab/hermes/internal/engine"
	"github.com/nwdaf-lab/hermes/internal/utils"
)

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		slog.Error("hermes exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "hermes",
		Short:         "Anomaly notification agents and correlation engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration file (defaults to $HERMES_CONFIG)")

	load := func() (*config.Config, *slog.Logger, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
			return nil, nil, err
		}
		return cfg, utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON), nil
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the engine and every configured agent in one process",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, logger, err := load()
				if err != nil {
					return err
				}
				return run(cmd.Context(), cfg, logger, true, agentNames(cfg))
			},
		},
		newAgentCommand(load),
		&cobra.Command{
			Use:   "engine",
			Short: "Run only the correlation engine",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, logger, err := load()
				if err != nil {
					return err
				}
				return run(cmd.Context(), cfg, logger, true, nil)
			},
		},
		&cobra.Command{
			Use:   "rules",
			Short: "Print the loaded correlation rule table",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, _, err := load()
				if err != nil {
					return err
				}
				rules, err := engine.LoadRuleSet(cfg.Rules.Path)
				if err != nil {
					return err
				}
				return printRules(cmd, rules)
			},
		},
	)
	return root
}

func newAgentCommand(load func() (*config.Config, *slog.Logger, error)) *cobra.Command {
	var names []string
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Run one or more notification agents",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			if len(names) == 0 {
				names = agentNames(cfg)
			}
			for _, name := range names {
				if _, ok := cfg.Agent(name); !ok {
					return fmt.Errorf("unknown agent %q", name)
				}
			}
			return run(cmd.Context(), cfg, logger, false, names)
		},
	}
	cmd.Flags().StringSliceVar(&names, "name", nil, "Agent name to run (repeatable, defaults to all)")
	return cmd
}

func agentNames(cfg *config.Config) []string {
	names := make([]string, 0, len(cfg.Agents))
	for _, a := range cfg.Agents {
		names = append(names, a.Name)
	}
	return names
}

func printRules(cmd *cobra.Command, rules *engine.RuleSet) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RULE\tANOMALIES\tCONDITIONS")
	for _, r := range rules.Rules() {
		anomalies := make([]string, 0, len(r.Anomalies))
		for _, a := range r.Anomalies {
			anomalies = append(anomalies, string(a))
		}
		conditions := make([]string, 0, len(r.Conditions))
		for _, c := range r.Conditions {
			conditions = append(conditions, describeCondition(c))
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", r.Name, strings.Join(anomalies, ","), strings.Join(conditions, "; "))
	}
	return w.Flush()
}

func describeCondition(c engine.Condition) string {
	switch {
	case c.ThresholdMinutes > 0:
		return fmt.Sprintf("%s<=%gm", c.Kind, c.ThresholdMinutes)
	case c.ThresholdKm > 0:
		return fmt.Sprintf("%s<=%gkm", c.Kind, c.ThresholdKm)
	case c.Metric != "":
		return fmt.Sprintf("%s(%s)", c.Kind, c.Metric)
	case c.Match != "":
		return fmt.Sprintf("%s=%s", c.Kind, c.Match)
	default:
		return string(c.Kind)
	}
}

