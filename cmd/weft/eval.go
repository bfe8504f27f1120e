package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/aretw0/weft"
	"github.com/aretw0/weft/internal/config"
	"github.com/aretw0/weft/internal/presentation/graph"
	"github.com/aretw0/weft/internal/presentation/tui"
	"github.com/aretw0/weft/pkg/adapters/memory"
	"github.com/aretw0/weft/pkg/adapters/process"
	"github.com/aretw0/weft/pkg/dsl"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/hash"
	"github.com/aretw0/weft/pkg/observability"
	"github.com/aretw0/weft/pkg/runner"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

var evalCmd = &cobra.Command{
	Use:   "eval <document>",
	Short: "Evaluate an expression document",
	Long: `Evaluates a document once against the resolutions in --effects and prints the
outcome with any effects still waiting. With --run, effects are performed by the
processes listed in --handlers until the document settles.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		effectsPath, _ := cmd.Flags().GetString("effects")
		handlersPath, _ := cmd.Flags().GetString("handlers")
		allow, _ := cmd.Flags().GetStringSlice("allow")
		run, _ := cmd.Flags().GetBool("run")
		showGraph, _ := cmd.Flags().GetBool("graph")

		doc, err := dsl.NewDecoder(nil).Load(args[0])
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		store := memory.NewStore()
		if effectsPath != "" {
			if err := seed(ctx, store, effectsPath); err != nil {
				return err
			}
		}

		interp := weft.New(
			weft.WithLogger(logger),
			weft.WithLimits(cfg.Limits),
			weft.WithLifecycleHooks(observability.LoggingHooks(logger)),
		)
		h := interp.Subscribe(doc.Root)
		logger.Debug("subscribed", "document", doc.Name, "handle", h)

		if run {
			if err := perform(ctx, cfg, logger, interp, store, h, handlersPath, allow); err != nil {
				return err
			}
		}

		ev, err := interp.EvaluateFrom(ctx, h, store)
		if err != nil {
			return err
		}

		p := tui.NewPrinter(cmd.OutOrStdout())
		p.Outcome(ev.Outcome)
		p.Effects(ev.Unresolved)

		if showGraph {
			resolved, err := store.List(ctx)
			if err != nil {
				return err
			}
			overlay := &graph.Overlay{Resolved: resolved, Unresolved: effectIDs(ev.Unresolved)}
			fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(doc.Root, overlay))
		}
		return nil
	},
}

func seed(ctx context.Context, store *memory.Store, path string) error {
	list, err := dsl.LoadEffects(path)
	if err != nil {
		return err
	}
	for _, r := range list {
		if r.Error != "" {
			err = store.Reject(ctx, r.Effect(), r.Error)
		} else {
			err = store.Resolve(ctx, r.Effect(), r.Value)
		}
		if err != nil {
			return fmt.Errorf("effect %s: %w", r.Type, err)
		}
	}
	return nil
}

func perform(ctx context.Context, cfg config.Config, logger *slog.Logger, interp *weft.Interpreter, store *memory.Store, h weft.Handle, handlersPath string, allow []string) error {
	procs, err := process.LoadHandlers(handlersPath)
	if err != nil {
		return err
	}
	proc := process.NewRunner(process.WithRegistry(procs))

	opts := []runner.Option{
		runner.WithLogger(logger),
		runner.WithMaxPasses(cfg.Runner.MaxPasses),
		runner.WithConcurrency(cfg.Runner.Concurrency),
		runner.WithLocker(memory.NewLocker(), cfg.Runner.LockTTL),
	}
	if cfg.Runner.RateLimit > 0 {
		opts = append(opts, runner.WithRateLimit(rate.Limit(cfg.Runner.RateLimit), cfg.Runner.Burst))
	}
	if len(allow) > 0 {
		opts = append(opts, runner.WithInterceptor(runner.AllowTypesMiddleware(allow...)))
	}
	r := runner.New(interp, store, opts...)
	for _, typ := range proc.Types() {
		r.Handle(typ, proc)
	}

	report, err := r.Run(ctx, h)
	if errors.Is(err, runner.ErrPassLimit) {
		logger.Warn("document did not settle", "err", err)
		return nil
	}
	if err != nil {
		return err
	}
	logger.Info("run finished",
		"passes", report.Passes,
		"dispatched", report.Dispatched,
		"unhandled", len(report.Unhandled),
		"freed", report.Freed,
	)
	return nil
}

func effectIDs(effects []*domain.Effect) []hash.Hash {
	ids := make([]hash.Hash, len(effects))
	for i, e := range effects {
		ids[i] = e.ID
	}
	return ids
}

func init() {
	rootCmd.AddCommand(evalCmd)
	evalCmd.Flags().StringP("effects", "e", "", "File of effect resolutions to evaluate against")
	evalCmd.Flags().String("handlers", "handlers.yaml", "File of processes that perform effects (with --run)")
	evalCmd.Flags().StringSlice("allow", nil, "Effect types --run may perform; others are rejected (default: all handled types)")
	evalCmd.Flags().BoolP("run", "r", false, "Perform effects until the document settles")
	evalCmd.Flags().BoolP("graph", "g", false, "Print a Mermaid diagram of the document")
}
