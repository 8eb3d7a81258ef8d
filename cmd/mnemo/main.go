// Package main is the entry point for the mnemo CLI.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/mnemo/internal/config"
	"github.com/flemzord/mnemo/internal/core"
	"github.com/flemzord/mnemo/internal/security"
	"github.com/flemzord/mnemo/pkg/app"

	_ "github.com/flemzord/mnemo/modules/memory/chromem"
	_ "github.com/flemzord/mnemo/modules/memory/sqlite"
	_ "github.com/flemzord/mnemo/modules/provider/anthropic"
	_ "github.com/flemzord/mnemo/modules/provider/openai"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "mnemo",
		Short:         "Conversation memory for AI agents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "Path to configuration file")
	root.PersistentFlags().String("data-dir", "", "Persistent data directory")
	root.AddCommand(versionCmd(), serveCmd(), configCmd(), memoryCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and compiled modules",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "mnemo %s (commit: %s, built: %s)\n", version, commit, date)
			namespaces := core.Namespaces()
			if len(namespaces) == 0 {
				fmt.Fprintln(out, "\nNo compiled modules.")
				return
			}
			fmt.Fprintln(out, "\nCompiled modules:")
			for _, ns := range namespaces {
				fmt.Fprintf(out, "  %s:\n", ns)
				for _, mod := range core.GetModulesByNamespace(ns) {
					fmt.Fprintf(out, "    %s\n", mod.ID)
				}
			}
		},
	}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start mnemo with all configured modules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			dataDir, _ := cmd.Flags().GetString("data-dir")
			level, _ := cmd.Flags().GetString("log-level")
			format, _ := cmd.Flags().GetString("log-format")

			return app.Run(cmd.Context(), app.RunParams{
				ConfigPath: cfgPath,
				Version:    version,
				Commit:     commit,
				Date:       date,
				DataDir:    dataDir,
				LogLevel:   level,
				LogFormat:  format,
			})
		},
	}
	cmd.Flags().String("log-level", "", "Override log.level (debug, info, warn, error)")
	cmd.Flags().String("log-format", "", "Override log.format (text, json)")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	check := &cobra.Command{
		Use:   "check <path>",
		Short: "Validate configuration and provision its modules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := app.LoadConfig(args[0])
			if err != nil {
				return err
			}
			dataDir, _ := cmd.Flags().GetString("data-dir")
			rt, err := buildQuiet(cfg, dataDir, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			rt.Close()

			out := cmd.OutOrStdout()
			ids := config.Resolve(cfg)
			fmt.Fprintf(out, "Configuration OK (%d modules)\n", len(ids))
			for _, id := range ids {
				fmt.Fprintf(out, "  %s\n", id)
			}

			if show, _ := cmd.Flags().GetBool("show"); show {
				return printRedacted(out, cfg)
			}
			return nil
		},
	}
	check.Flags().Bool("show", false, "Print the effective configuration with secrets redacted")
	cmd.AddCommand(check)
	return cmd
}

// buildQuiet wires a runtime for one-shot commands, logging warnings only.
func buildQuiet(cfg *config.Config, dataDir string, logOut io.Writer) (*app.Runtime, error) {
	logger, err := app.NewLogger(app.LoggerParams{
		Output:  logOut,
		Level:   "warn",
		Format:  cfg.Log.Format,
		Secrets: cfg.Secrets(),
	})
	if err != nil {
		return nil, err
	}
	return app.Build(cfg, app.BuildParams{DataDir: dataDir, Version: version, Logger: logger})
}

// printRedacted echoes cfg as YAML with secret-looking values masked.
func printRedacted(w io.Writer, cfg *config.Config) error {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	var tree map[string]any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}

	redactor := security.NewRedactor()
	redactor.AddLiterals(cfg.Secrets()...)
	redactor.RedactMap(tree)

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(tree); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}
