// Command catalogctl imports, resets and queries the service catalog, either
// in-process against the configured stores or through a running API over NATS.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/WessleyAI/service-catalog/engine/domain"
	"github.com/WessleyAI/service-catalog/pkg/bootstrap"
	"github.com/WessleyAI/service-catalog/pkg/config"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "catalogctl",
		Short:         "Manage the service catalog and query retrieval",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("nats", "", "NATS URL; when set, requests go to a running server instead of in-process")
	root.PersistentFlags().Duration("timeout", 10*time.Minute, "overall deadline")
	root.PersistentFlags().Bool("verbose", false, "log at debug level to stderr")

	root.AddCommand(importCmd(), resetCmd(), retrieveCmd(), statsCmd())
	return root
}

func newLogger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if v, _ := cmd.Flags().GetBool("verbose"); v {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	timeout, _ := cmd.Flags().GetDuration("timeout")
	return context.WithTimeout(cmd.Context(), timeout)
}

// openBackend picks NATS when --nats is set, otherwise bootstraps locally.
func openBackend(ctx context.Context, cmd *cobra.Command) (backend, error) {
	logger := newLogger(cmd)
	if url, _ := cmd.Flags().GetString("nats"); url != "" {
		nc, err := bootstrap.ConnectNATS(url, logger)
		if err != nil {
			return nil, err
		}
		return &natsBackend{nc: nc}, nil
	}
	app, err := openApp(ctx, logger)
	if err != nil {
		return nil, err
	}
	return &localBackend{app: app}, nil
}

func openApp(ctx context.Context, logger *slog.Logger) (*bootstrap.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return bootstrap.New(ctx, cfg, logger)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file.json|file.yaml>",
		Short: "Import catalog entries from a JSON or YAML list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := loadEntries(args[0])
			if err != nil {
				return err
			}
			batch, _ := cmd.Flags().GetInt("batch")

			ctx, cancel := commandContext(cmd)
			defer cancel()
			b, err := openBackend(ctx, cmd)
			if err != nil {
				return err
			}
			defer b.Close()

			res, err := importBatches(ctx, b, entries, batch)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().Int("batch", 0, "entries per import call (0 sends everything at once)")
	return cmd
}

func resetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Clear the record store and recreate the vector collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()
			b, err := openBackend(ctx, cmd)
			if err != nil {
				return err
			}
			defer b.Close()

			res, err := b.Reset(ctx)
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if !res.OK() {
				return fmt.Errorf("reset failed: %s", res.Message)
			}
			return nil
		},
	}
}

func retrieveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retrieve <context.json|->",
		Short: "Run retrieval for the hypotheses in a context document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			var c domain.Context
			if err := json.NewDecoder(in).Decode(&c); err != nil {
				return fmt.Errorf("decode context: %w", err)
			}

			ctx, cancel := commandContext(cmd)
			defer cancel()
			b, err := openBackend(ctx, cmd)
			if err != nil {
				return err
			}
			defer b.Close()

			out, err := b.Retrieve(ctx, &c)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show record and vector counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()
			app, err := openApp(ctx, newLogger(cmd))
			if err != nil {
				return err
			}
			defer app.Close()

			st, err := app.Stats(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), st)
		},
	}
}
