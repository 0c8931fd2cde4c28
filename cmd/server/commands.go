package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/aristath/sentinel-alerts/internal/config"
	"github.com/aristath/sentinel-alerts/internal/di"
	"github.com/aristath/sentinel-alerts/internal/modules/alerts"
	"github.com/aristath/sentinel-alerts/internal/pricing"
	"github.com/aristath/sentinel-alerts/internal/utils"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// app lazily wires the container the first time a command needs it.
type app struct {
	cfg       *config.Config
	log       zerolog.Logger
	out       io.Writer
	overrides di.Overrides
	container *di.Container
	jobs      *di.JobInstances
}

func (a *app) wire() error {
	if a.container != nil {
		return nil
	}
	container, jobs, err := di.Wire(a.cfg, a.log, a.overrides)
	if err != nil {
		return err
	}
	a.container, a.jobs = container, jobs
	return nil
}

func (a *app) close() {
	if a.container != nil {
		a.container.Close()
		a.container, a.jobs = nil, nil
	}
}

// checkDatabases pings every database so a bad DATA_DIR fails before the scheduler starts.
func (a *app) checkDatabases(ctx context.Context) error {
	for _, db := range a.container.Databases() {
		if err := db.QuickCheck(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newRootCmd(cfg *config.Config, log zerolog.Logger) *cobra.Command {
	return newRootCmdWith(&app{cfg: cfg, log: log, out: os.Stdout})
}

func newRootCmdWith(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "alerts",
		Short: "Portfolio alert evaluation and tax-lot analytics",
		Long: `Evaluates user alert rules against live prices and portfolio state,
delivering each trigger at most once, and reports tax-loss harvesting
opportunities for stored holdings.`,
		SilenceUsage:      true,
		PersistentPostRun: func(*cobra.Command, []string) { a.close() },
	}

	rootCmd.AddCommand(
		newServeCmd(a),
		newRunCmd(a),
		newRulesCmd(a),
		newInboxCmd(a),
		newHarvestCmd(a),
	)
	return rootCmd
}

func newServeCmd(a *app) *cobra.Command {
	var runNow bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run scheduled evaluation passes until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.wire(); err != nil {
				return err
			}
			if err := a.checkDatabases(cmd.Context()); err != nil {
				return err
			}

			if runNow {
				if err := a.jobs.Scheduler.RunNow(a.jobs.Evaluation); err != nil {
					a.log.Error().Err(err).Msg("Initial evaluation pass failed")
				}
			}

			a.jobs.Scheduler.Start()
			a.log.Info().Str("schedule", a.cfg.Evaluation.Schedule).Msg("Alert engine started")

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit

			a.log.Info().Msg("Shutting down")
			a.jobs.Scheduler.Stop()
			return nil
		},
	}

	cmd.Flags().BoolVar(&runNow, "run-now", false, "run one evaluation pass before waiting for the schedule")
	return cmd
}

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run a single evaluation pass and print its summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.wire(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return a.printJSON(a.container.AlertService.RunPass(ctx))
		},
	}
}

func newRulesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage alert rules",
	}

	var (
		owner      string
		ruleType   string
		symbol     string
		target     float64
		configJSON string
	)
	add := &cobra.Command{
		Use:   "add",
		Short: "Create an alert rule",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.wire(); err != nil {
				return err
			}

			rule := alerts.Rule{
				OwnerID: owner,
				Type:    alerts.RuleType(ruleType),
				Symbol:  utils.NormalizeSymbol(symbol),
				Active:  true,
				Config:  map[string]any{},
			}
			if cmd.Flags().Changed("target") {
				rule.TargetValue = &target
			}
			if configJSON != "" {
				if err := json.Unmarshal([]byte(configJSON), &rule.Config); err != nil {
					return fmt.Errorf("invalid --config: %w", err)
				}
			}

			if _, err := alerts.ParseRule(rule, di.RuleDefaults(a.cfg)); err != nil {
				return err
			}

			created, err := a.container.RuleRepo.Create(cmd.Context(), rule)
			if err != nil {
				return err
			}
			return a.printJSON(created)
		},
	}
	add.Flags().StringVar(&owner, "owner", "", "owner id")
	add.Flags().StringVar(&ruleType, "type", "", "rule type, e.g. price_target or dca_reminder")
	add.Flags().StringVar(&symbol, "symbol", "", "symbol the rule watches")
	add.Flags().Float64Var(&target, "target", 0, "target value")
	add.Flags().StringVar(&configJSON, "config", "", "type-specific configuration as JSON")
	_ = add.MarkFlagRequired("owner")
	_ = add.MarkFlagRequired("type")

	var listOwner string
	list := &cobra.Command{
		Use:   "list",
		Short: "List an owner's rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.wire(); err != nil {
				return err
			}
			rules, err := a.container.RuleRepo.ListByOwner(cmd.Context(), listOwner)
			if err != nil {
				return err
			}
			return a.printJSON(rules)
		},
	}
	list.Flags().StringVar(&listOwner, "owner", "", "owner id")
	_ = list.MarkFlagRequired("owner")

	setActive := func(use, short string, active bool) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <rule-id>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := a.wire(); err != nil {
					return err
				}
				return a.container.RuleRepo.SetActive(cmd.Context(), args[0], active)
			},
		}
	}

	evaluate := &cobra.Command{
		Use:   "evaluate <rule-id>",
		Short: "Evaluate one rule now, applying its trigger if it fires",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.wire(); err != nil {
				return err
			}
			return a.printJSON(a.container.AlertService.EvaluateRule(cmd.Context(), args[0]))
		},
	}

	cmd.AddCommand(add, list, evaluate,
		setActive("enable", "Re-activate a rule", true),
		setActive("disable", "Deactivate a rule", false),
	)
	return cmd
}

func newInboxCmd(a *app) *cobra.Command {
	var (
		owner  string
		unread bool
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "inbox",
		Short: "Show delivered notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.wire(); err != nil {
				return err
			}
			messages, err := a.container.Inbox.List(cmd.Context(), owner, unread, limit)
			if err != nil {
				return err
			}
			return a.printJSON(messages)
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner id")
	cmd.Flags().BoolVar(&unread, "unread", false, "only unread notifications")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum notifications to show")
	_ = cmd.MarkFlagRequired("owner")

	var readOwner string
	read := &cobra.Command{
		Use:   "read <id>...",
		Short: "Mark notifications as read",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid notification id %q", arg)
				}
				ids = append(ids, id)
			}

			if err := a.wire(); err != nil {
				return err
			}
			n, err := a.container.Inbox.MarkRead(cmd.Context(), readOwner, ids...)
			if err != nil {
				return err
			}
			return a.printJSON(map[string]int64{"marked": n})
		},
	}
	read.Flags().StringVar(&readOwner, "owner", "", "owner id")
	_ = read.MarkFlagRequired("owner")

	cmd.AddCommand(read)
	return cmd
}

func newHarvestCmd(a *app) *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "harvest",
		Short: "Report tax-loss harvesting opportunities and long-term candidates",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.wire(); err != nil {
				return err
			}
			ctx := cmd.Context()

			quotes := pricing.NewMemo(a.container.Oracle, pricing.Options{Timeout: a.cfg.Evaluation.OracleTimeout}, a.log)
			snapshot, err := a.container.PortfolioService.Snapshot(ctx, owner, quotes)
			if err != nil {
				return err
			}

			params := di.EvaluatorParams(a.cfg).Tax
			report, err := a.container.TaxOptimizer.HarvestOpportunities(ctx, owner, snapshot.Lots, params)
			if err != nil {
				return err
			}
			longTerm, err := a.container.TaxOptimizer.LongTermCandidates(snapshot.Lots, params)
			if err != nil {
				return err
			}

			return a.printJSON(map[string]any{
				"harvest":   report,
				"long_term": longTerm,
				"unpriced":  snapshot.Unpriced,
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner id")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}
