// Command admctl inspects and resets admission-control state in the shared
// cache store: rate-limit counters and login lockouts.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"marketplace-gateway/internal/auth"
	"marketplace-gateway/internal/bruteforce"
	"marketplace-gateway/internal/cache"
	"marketplace-gateway/internal/common/logging"
	"marketplace-gateway/internal/config"
	"marketplace-gateway/internal/redis"
)

type options struct {
	redisURL string
	timeout  time.Duration
}

func main() {
	_ = godotenv.Load()

	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "admctl",
		Short:         "Marketplace gateway admission-control admin",
		Long:          "Inspect and reset rate-limit counters and login lockouts in the gateway cache store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(out)

	defaultURL := os.Getenv("REDIS_URL")
	if defaultURL == "" {
		defaultURL = "redis://localhost:6379/0"
	}
	rootCmd.PersistentFlags().StringVar(&opts.redisURL, "redis-url", defaultURL, "Cache store URL")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 5*time.Second, "Overall command timeout")

	rootCmd.AddCommand(
		flushCmd(opts),
		invalidateCmd(opts),
		unlockCmd(opts),
		lockoutCmd(opts),
		inspectCmd(opts),
	)
	return rootCmd
}

// withFacade connects to the store once and hands a facade to fn.
func withFacade(cmd *cobra.Command, opts *options, fn func(ctx context.Context, f *cache.Facade) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()

	client, err := redis.NewClient(&redis.Config{
		URL:          opts.redisURL,
		MaxRetries:   3,
		RetryInitial: 100 * time.Millisecond,
		RetryMax:     time.Second,
	}, logging.NewNopLogger())
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Connect(ctx); err != nil {
		return err
	}
	return fn(ctx, cache.New(client, logging.NewNopLogger()))
}

func newGuard(f *cache.Facade) (*bruteforce.Guard, error) {
	settings, err := config.Load().BruteForce()
	if err != nil {
		return nil, err
	}
	return bruteforce.New(f, settings, bruteforce.WithLogger(logging.NewNopLogger())), nil
}

func flushCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Delete every key in the cache store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withFacade(cmd, opts, func(ctx context.Context, f *cache.Facade) error {
				if !f.FlushAll(ctx) {
					return fmt.Errorf("flush failed")
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Cache flushed")
				return nil
			})
		},
	}
}

func invalidateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "invalidate [pattern]",
		Short:   "Delete keys matching a glob pattern",
		Example: "  admctl invalidate 'rate_limit:general:*'",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withFacade(cmd, opts, func(ctx context.Context, f *cache.Facade) error {
				if !f.DeleteByPattern(ctx, args[0]) {
					return fmt.Errorf("invalidate %q failed", args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Invalidated %s\n", args[0])
				return nil
			})
		},
	}
}

func unlockCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "unlock [email]",
		Short: "Lift a login lockout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withFacade(cmd, opts, func(ctx context.Context, f *cache.Facade) error {
				guard, err := newGuard(f)
				if err != nil {
					return err
				}
				email := auth.NormalizeEmail(args[0])
				if !guard.Reset(ctx, email) {
					return fmt.Errorf("unlock %s failed", email)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Unlocked %s\n", email)
				return nil
			})
		},
	}
}

func lockoutCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "lockout [email]",
		Short: "Show the failed-login state of an email",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withFacade(cmd, opts, func(ctx context.Context, f *cache.Facade) error {
				guard, err := newGuard(f)
				if err != nil {
					return err
				}
				st := guard.Check(ctx, auth.NormalizeEmail(args[0]))

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Identifier:   %s\n", st.Identifier)
				fmt.Fprintf(out, "Failures:     %d\n", st.Count)
				fmt.Fprintf(out, "Locked:       %v\n", st.Locked)
				if st.Locked {
					fmt.Fprintf(out, "Locked until: %s (%ds)\n",
						st.LockedUntil.UTC().Format(time.RFC3339), int(math.Ceil(st.Remaining.Seconds())))
				}
				return nil
			})
		},
	}
}

func inspectCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "inspect [key]",
		Short:   "Print the stored value of a key",
		Example: "  admctl inspect rate_limit:auth:203.0.113.7",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withFacade(cmd, opts, func(ctx context.Context, f *cache.Facade) error {
				var raw json.RawMessage
				if !f.Get(ctx, args[0], &raw) {
					return fmt.Errorf("key %s not found", args[0])
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(raw))
				return nil
			})
		},
	}
}
