package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/flemzord/mnemo/pkg/app"
)

func memoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Inspect and edit a user's long-term memory",
	}
	cmd.PersistentFlags().String("user", "", "User whose facts are managed (required)")
	_ = cmd.MarkPersistentFlagRequired("user")
	cmd.AddCommand(memoryListCmd(), memoryForgetCmd())
	return cmd
}

// openRuntime loads the configuration named by --config and wires it.
func openRuntime(cmd *cobra.Command) (*app.Runtime, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	dataDir, _ := cmd.Flags().GetString("data-dir")
	cfg, _, err := app.LoadConfig(cfgPath)
	if err != nil {
		return nil, err
	}
	return buildQuiet(cfg, dataDir, cmd.ErrOrStderr())
}

func memoryListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored facts, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, _ := cmd.Flags().GetString("user")
			category, _ := cmd.Flags().GetString("category")
			asJSON, _ := cmd.Flags().GetBool("json")

			rt, err := openRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			facts, err := rt.Memory.ListFacts(cmd.Context(), user, category)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(facts)
			}
			if len(facts) == 0 {
				fmt.Fprintf(out, "No facts for %s.\n", user)
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCATEGORY\tTAGS\tCONTENT")
			for _, f := range facts {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", f.ID, f.Category, strings.Join(f.Tags, ","), f.Content)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().String("category", "", "Only list facts of this category")
	cmd.Flags().Bool("json", false, "Print facts as JSON")
	return cmd
}

func memoryForgetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "forget [fact-id...]",
		Short: "Delete facts by ID, or every fact with --all",
		RunE: func(cmd *cobra.Command, args []string) error {
			user, _ := cmd.Flags().GetString("user")
			all, _ := cmd.Flags().GetBool("all")
			switch {
			case all && len(args) > 0:
				return errors.New("pass fact IDs or --all, not both")
			case !all && len(args) == 0:
				return errors.New("no fact IDs given (use --all to forget everything)")
			}

			rt, err := openRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			ids := args
			if all {
				facts, err := rt.Memory.ListFacts(cmd.Context(), user, "")
				if err != nil {
					return err
				}
				for _, f := range facts {
					ids = append(ids, f.ID)
				}
			}

			var errs []error
			deleted := 0
			for _, id := range ids {
				if err := rt.Memory.DeleteFact(cmd.Context(), user, id); err != nil {
					errs = append(errs, fmt.Errorf("fact %s: %w", id, err))
					continue
				}
				deleted++
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Forgot %d fact(s) for %s.\n", deleted, user)
			return errors.Join(errs...)
		},
	}
	cmd.Flags().Bool("all", false, "Forget every fact of the user")
	return cmd
}
