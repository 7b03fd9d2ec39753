// Package main contains the cli implementation of the tool. It uses the
// cobra package for cli tool implementation, wiring the yama library
// against a project's `.yama/` directory and `.yama.toml` configuration.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/go-sql-driver/mysql"
	"github.com/spf13/cobra"

	"github.com/betagors/yama/internal/applier"
	"github.com/betagors/yama/internal/config"
	"github.com/betagors/yama/internal/environment"
	"github.com/betagors/yama/internal/output"
	"github.com/betagors/yama/internal/plugin"
	pluginmysql "github.com/betagors/yama/internal/plugin/mysql"
	"github.com/betagors/yama/internal/safety"
	"github.com/betagors/yama/internal/snapshot"
	"github.com/betagors/yama/internal/transition"
)

type projectFlags struct {
	dir string
}

type applyFlags struct {
	from        string
	to          string
	environment string
	override    bool
	name        string
	description string
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "yama",
		Short: "Schema migration engine",
	}

	pf := &projectFlags{}
	rootCmd.PersistentFlags().StringVar(&pf.dir, "dir", ".", "Project directory containing .yama.toml and .yama/")

	rootCmd.AddCommand(statusCmd(pf))
	rootCmd.AddCommand(planCmd(pf))
	rootCmd.AddCommand(applyCmd(pf))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func yamaDir(projectDir string) string { return filepath.Join(projectDir, ".yama") }

func loadProjectConfig(projectDir string) (*config.Project, error) {
	return config.NewParser().ParseFile(filepath.Join(projectDir, ".yama.toml"))
}

func openStores(projectDir string) (*snapshot.FileStore, *transition.FileStore, *environment.FileStore) {
	base := yamaDir(projectDir)
	snapStore := snapshot.NewFileStore(filepath.Join(base, "snapshots"))
	transStore := transition.NewFileStore(filepath.Join(base, "transitions"))
	envStore := environment.NewFileStore(filepath.Join(base, "state"), systemClock{})
	return snapStore, transStore, envStore
}

type systemClock struct{}

func (systemClock) Now() string { return nowRFC3339() }

func statusCmd(pf *projectFlags) *cobra.Command {
	var env string
	var verbose bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the snapshot hash installed on an environment",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runStatus(pf.dir, env, verbose)
		},
	}
	cmd.Flags().StringVar(&env, "environment", "development", "Environment to inspect")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "Also print transition graph statistics")
	return cmd
}

func runStatus(projectDir, env string, verbose bool) error {
	_, transStore, envStore := openStores(projectDir)
	state, err := envStore.Load(env)
	if err != nil {
		return fmt.Errorf("yama: status: %w", err)
	}
	fmt.Print(output.FormatEnvironmentState(state))

	if !verbose {
		return nil
	}
	graph, err := transition.BuildGraph(transStore)
	if err != nil {
		return fmt.Errorf("yama: status: building graph: %w", err)
	}
	fmt.Print(output.FormatGraphStats(graph.Stats()))
	return nil
}

func planCmd(pf *projectFlags) *cobra.Command {
	var from, to, env string
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the step plan and safety classification for a transition",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runPlan(pf.dir, from, to, env)
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "Source snapshot hash (required)")
	cmd.Flags().StringVar(&to, "to", "", "Target snapshot hash (required)")
	cmd.Flags().StringVar(&env, "environment", "development", "Environment the plan would deploy against")
	return cmd
}

func runPlan(projectDir, from, to, env string) error {
	if from == "" || to == "" {
		return fmt.Errorf("yama: plan: --from and --to are required")
	}

	proj, err := loadProjectConfig(projectDir)
	if err != nil {
		return fmt.Errorf("yama: plan: %w", err)
	}
	envCfg, ok := proj.Environment(env)
	if !ok {
		return fmt.Errorf("yama: plan: unknown environment %q", env)
	}

	_, transStore, _ := openStores(projectDir)
	graph, err := transition.BuildGraph(transStore)
	if err != nil {
		return fmt.Errorf("yama: plan: building graph: %w", err)
	}
	path, ok := graph.FindPath(from, to)
	if !ok {
		return fmt.Errorf("yama: plan: no path from %s to %s", from, to)
	}

	var steps []transition.Step
	for _, hash := range path.TransitionSequence {
		t, err := transStore.Load(hash)
		if err != nil {
			return fmt.Errorf("yama: plan: loading transition %s: %w", hash, err)
		}
		steps = append(steps, t.Steps...)
	}

	level, classifications := safety.ClassifyPlan(steps)
	policy := safety.EvaluatePolicy(envCfg.PolicyLabel(), level, len(steps), false)

	fmt.Print(output.FormatPlan(path, classifications, level, policy))
	return nil
}

func applyCmd(pf *projectFlags) *cobra.Command {
	flags := &applyFlags{}
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply a transition path to an environment",
		Long: `Resolves the path between two snapshots, validates environment state,
classifies safety, stages collateral for destructive steps, and executes
the compiled plan against the environment's configured database.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runApply(pf.dir, flags)
		},
	}
	cmd.Flags().StringVar(&flags.from, "from", "", "Source snapshot hash (required)")
	cmd.Flags().StringVar(&flags.to, "to", "", "Target snapshot hash (required)")
	cmd.Flags().StringVar(&flags.environment, "environment", "development", "Target environment")
	cmd.Flags().BoolVar(&flags.override, "override-dangerous", false, "Permit Dangerous-classified plans")
	cmd.Flags().StringVar(&flags.name, "name", "", "Migration name recorded on the tracking table")
	cmd.Flags().StringVar(&flags.description, "description", "", "Migration description recorded on the tracking table")
	return cmd
}

func runApply(projectDir string, flags *applyFlags) error {
	if flags.from == "" || flags.to == "" {
		return fmt.Errorf("yama: apply: --from and --to are required")
	}
	if flags.name == "" {
		return fmt.Errorf("yama: apply: --name is required")
	}

	proj, err := loadProjectConfig(projectDir)
	if err != nil {
		return fmt.Errorf("yama: apply: %w", err)
	}
	env, ok := proj.Environment(flags.environment)
	if !ok {
		return fmt.Errorf("yama: apply: unknown environment %q", flags.environment)
	}

	snapStore, transStore, envStore := openStores(projectDir)
	graph, err := transition.BuildGraph(transStore)
	if err != nil {
		return fmt.Errorf("yama: apply: building graph: %w", err)
	}

	db, err := applier.Connect(context.Background(), "mysql", env.DSN)
	if err != nil {
		return fmt.Errorf("yama: apply: connecting to %s: %w", flags.environment, err)
	}
	defer db.Close()

	var plug plugin.Plugin
	switch proj.Project.Plugin {
	case "", "mysql":
		plug = pluginmysql.New()
	default:
		return fmt.Errorf("yama: apply: unsupported plugin %q", proj.Project.Plugin)
	}

	recorder, err := collateralRecorder(projectDir)
	if err != nil {
		return fmt.Errorf("yama: apply: %w", err)
	}

	a := applier.New(applier.Options{
		DB:           db,
		Graph:        graph,
		Transitions:  transStore,
		Snapshots:    snapStore,
		Environments: envStore,
		Plugin:       plug,
		Collateral:   recorder,
		Out:          os.Stdout,
	})

	return a.Apply(context.Background(), applier.ApplyRequest{
		FromSnapshot:      flags.from,
		ToSnapshot:        flags.to,
		Environment:       flags.environment,
		PolicyLabel:       env.PolicyLabel(),
		OverrideDangerous: flags.override,
		Name:              flags.name,
		Description:       flags.description,
	})
}
