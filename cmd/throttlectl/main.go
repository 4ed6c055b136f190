// Command throttlectl inspects and drives a goThrottle store from the shell,
// and can serve the engine over HTTP.
//
//	throttlectl --store sqlite --sqlite-path throttle.db check login alice@example.com
//	throttlectl --store redis --redis-addr localhost:6379 status login alice@example.com
//	throttlectl --store redis serve --listen :8080
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	goThrottle "github.com/MrEthical07/goThrottle"
	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:           "throttlectl",
		Short:         "throttlectl - attempt limiter for sensitive actions",
		Long:          "Check, inspect and reset per-identifier attempt counters, or serve them over HTTP",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "YAML config file (defaults when empty)")
	flags.StringVar(&opts.storeKind, "store", "memory", "Store backend: memory, redis or sqlite")
	flags.StringVar(&opts.redisAddr, "redis-addr", "localhost:6379", "Redis address")
	flags.StringVar(&opts.sqlitePath, "sqlite-path", "throttle.db", "SQLite database path")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "Log level")
	flags.BoolVar(&opts.auditLog, "audit", false, "Write audit events as JSON lines to stderr")

	rootCmd.AddCommand(
		checkCmd(opts),
		statusCmd(opts),
		resetCmd(opts),
		cleanupCmd(opts),
		policiesCmd(opts),
		serveCmd(opts),
		versionCmd(),
	)
	return rootCmd
}

// withEngine opens an engine for the duration of fn.
func withEngine(cmd *cobra.Command, opts *globalOptions, fn func(*goThrottle.Engine) error) error {
	log, err := newLogger(cmd.ErrOrStderr(), opts.logLevel)
	if err != nil {
		return err
	}
	engine, closeFn, err := openEngine(opts, log)
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(engine)
}

func checkCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check [action] [identifier]",
		Short: "Record one attempt and print the decision",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, opts, func(engine *goThrottle.Engine) error {
				d, err := engine.CheckAndRecord(cmd.Context(), args[1], args[0])
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if d.Allowed {
					fmt.Fprintf(out, "allowed (%d remaining)\n", d.RemainingAttempts)
					return nil
				}
				fmt.Fprintf(out, "denied: %s\n", d.RetryMessage(engine.Now()))
				return nil
			})
		},
	}
}

func statusCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status [action] [identifier]",
		Short: "Show the counter for one identifier without recording an attempt",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, opts, func(engine *goThrottle.Engine) error {
				st, err := engine.GetStatus(cmd.Context(), args[1], args[0])
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Action:      %s\n", st.Action)
				fmt.Fprintf(out, "Attempts:    %d\n", st.Attempts)
				fmt.Fprintf(out, "Remaining:   %d\n", st.RemainingAttempts)
				fmt.Fprintf(out, "Allowed:     %v\n", st.Allowed)
				fmt.Fprintf(out, "Blocked:     %v\n", st.Blocked)
				if !st.ResetAt.IsZero() {
					fmt.Fprintf(out, "Reset At:    %s (in %s)\n", st.ResetAt.Format(time.RFC3339), goThrottle.FormatDuration(st.ResetAt.Sub(engine.Now())))
				}
				if !st.WindowEndsAt.IsZero() {
					fmt.Fprintf(out, "Window Ends: %s\n", st.WindowEndsAt.Format(time.RFC3339))
				}
				return nil
			})
		},
	}
}

func resetCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset [action] [identifier]",
		Short: "Forget the counter for one identifier",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, opts, func(engine *goThrottle.Engine) error {
				if err := engine.Reset(cmd.Context(), args[1], args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "reset %s\n", args[0])
				return nil
			})
		},
	}
}

func cleanupCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete expired and corrupt entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, opts, func(engine *goThrottle.Engine) error {
				removed, err := engine.CleanupExpired(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d entries\n", removed)
				return nil
			})
		},
	}
}

func policiesCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "policies",
		Aliases: []string{"ls"},
		Short:   "List registered actions and their limits",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, opts, func(engine *goThrottle.Engine) error {
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ACTION\tMAX ATTEMPTS\tWINDOW\tBLOCK")
				for _, action := range engine.Actions() {
					p, err := engine.Policy(action)
					if err != nil {
						return err
					}
					fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", action, p.MaxAttempts, p.Window, p.BlockDuration)
				}
				return w.Flush()
			})
		},
	}
}

func serveCmd(opts *globalOptions) *cobra.Command {
	var (
		listen          string
		cleanupInterval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the throttle API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger(cmd.ErrOrStderr(), opts.logLevel)
			if err != nil {
				return err
			}
			engine, closeFn, err := openEngine(opts, log)
			if err != nil {
				return err
			}
			defer closeFn()

			return serve(cmd.Context(), engine, log, listen, cleanupInterval)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", ":8080", "Listen address")
	cmd.Flags().DurationVar(&cleanupInterval, "cleanup-interval", 5*time.Minute, "Sweep interval for expired entries (0 disables)")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "throttlectl version %s\n", Version)
		},
	}
}
