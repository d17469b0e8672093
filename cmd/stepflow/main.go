// Command stepflow runs workflow definitions from the command line: validate
// definition files, run a workflow from a catalog directory, and inspect
// past executions.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/stepflow-io/stepflow/internal/catalog"
	"github.com/stepflow-io/stepflow/internal/engine"
	"github.com/stepflow-io/stepflow/internal/executors"
	"github.com/stepflow-io/stepflow/internal/logging"
	"github.com/stepflow-io/stepflow/internal/store"
	"github.com/stepflow-io/stepflow/internal/validation"
	"github.com/stepflow-io/stepflow/pkg/schema"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           "stepflow",
		Short:         "Workflow definition and execution engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "path to config file")

	root.AddCommand(
		newRunCmd(&configFile),
		newValidateCmd(),
		newListCmd(&configFile),
		newVersionCmd(),
	)
	return root
}

func newLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var inner slog.Handler
	if cfg.LogFormat == "json" {
		inner = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		inner = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(logging.NewCorrelationHandler(inner))
}

// buildEngine wires the catalog, store, registry, and engine from config.
func buildEngine(ctx context.Context, cfg *Config, logger *slog.Logger) (*engine.Engine, *catalog.MemoryCatalog, func(), error) {
	cat, err := catalog.NewDirCatalog(ctx, cfg.WorkflowsDir)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load workflows: %w", err)
	}

	st, err := store.NewLibSQLStore("file:" + cfg.DBPath)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, nil, nil, fmt.Errorf("migrate: %w", err)
	}

	registry, err := executors.NewDefaultRegistry()
	if err != nil {
		_ = st.Close()
		return nil, nil, nil, err
	}

	eng, err := engine.NewEngine(cat, st, registry, engine.Config{PoolSize: cfg.PoolSize}, logger)
	if err != nil {
		_ = st.Close()
		return nil, nil, nil, err
	}
	cleanup := func() {
		eng.Shutdown()
		_ = st.Close()
	}
	return eng, cat, cleanup, nil
}

func newRunCmd(configFile *string) *cobra.Command {
	var dataJSON string

	cmd := &cobra.Command{
		Use:   "run <workflow-id>",
		Short: "Run a workflow from the catalog directory and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(*configFile)
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			ctx := cmd.Context()
			eng, cat, cleanup, err := buildEngine(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			var seed map[string]any
			if dataJSON != "" {
				if err := json.Unmarshal([]byte(dataJSON), &seed); err != nil {
					return fmt.Errorf("parse --data: %w", err)
				}
			}

			def, err := cat.GetDefinition(ctx, args[0])
			if err != nil {
				return err
			}

			wfCtx := schema.NewWorkflowContext("", "", seed)
			res, err := eng.ExecuteWorkflow(ctx, def, wfCtx)
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(res, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))

			if res.Status != schema.ExecutionStatusCompleted {
				return fmt.Errorf("execution %s finished with status %s", res.ExecutionID, res.Status)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dataJSON, "data", "", "initial context data as a JSON object")
	return cmd
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file.json>...",
		Short: "Validate workflow definition files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := validation.NewDefinitionValidator()
			if err != nil {
				return err
			}

			failed := 0
			for _, path := range args {
				if err := validateFile(v, path); err != nil {
					failed++
					fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s: %v\n", path, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "OK   %s\n", path)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files invalid", failed, len(args))
			}
			return nil
		},
	}
}

func validateFile(v *validation.DefinitionValidator, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var def schema.WorkflowDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	if err := v.ValidateDefinition(&def); err != nil {
		return err
	}
	_, err = engine.BuildGraph(&def)
	return err
}

func newListCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List workflows in the catalog directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(*configFile)
			if err != nil {
				return err
			}

			cat, err := catalog.NewDirCatalog(cmd.Context(), cfg.WorkflowsDir)
			if err != nil {
				return err
			}
			ids, err := cat.List(cmd.Context())
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the stepflow version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "stepflow", version)
		},
	}
}
