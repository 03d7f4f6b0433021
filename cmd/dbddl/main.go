package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/kadirbelkuyu/DBDDL/internal/app"
	"github.com/kadirbelkuyu/DBDDL/internal/config"
	"github.com/kadirbelkuyu/DBDDL/internal/profiles"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "dbddl",
	Short: "Cross-dialect schema migration engine",
	Long:  `Apply schema change plans to PostgreSQL, MySQL or SQLite, preview the DDL they produce, and inspect table constraints.`,
}

var applyCmd = &cobra.Command{
	Use:   "apply <plan.yaml> [plan.yaml...]",
	Short: "Apply one or more plan files",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runApply,
}

var planCmd = &cobra.Command{
	Use:   "plan <plan.yaml> [plan.yaml...]",
	Short: "Print the DDL a plan would run without executing it",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runPlan,
}

var constraintsCmd = &cobra.Command{
	Use:   "constraints [table] [column]",
	Short: "List the constraints of a table, or browse them with --interactive",
	Args:  cobra.RangeArgs(0, 2),
	RunE:  runConstraints,
}

var nameCmd = &cobra.Command{
	Use:   "name <table> <column> [column...]",
	Short: "Print the index or constraint name the engine would generate",
	Long: `Print a generated identifier without connecting to the database.
With --suffix fk the arguments are <table> <from_column> <to_table> <to_column>.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runName,
}

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Manage saved migration targets",
}

var profilesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved migration targets",
	Args:  cobra.NoArgs,
	RunE:  runProfilesList,
}

var profilesAddCmd = &cobra.Command{
	Use:   "add <alias> <config.yaml>",
	Short: "Save a database configuration as a migration target",
	Args:  cobra.ExactArgs(2),
	RunE:  runProfilesAdd,
}

var profilesRemoveCmd = &cobra.Command{
	Use:   "remove <alias>",
	Short: "Delete a saved migration target",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfilesRemove,
}

var workflowService = app.NewService(os.Stdout)

var (
	configPath  string
	profile     string
	profileDir  string
	filterType  string
	verbose     bool
	dryRun      bool
	interactive bool
	workers     int
	suffix      string
	dialect     string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the database configuration file")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "Saved migration target to use instead of --config")
	rootCmd.PersistentFlags().StringVar(&profileDir, "profile-dir", "targets", "Directory holding saved migration targets")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable verbose logging")

	applyCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Record statements instead of executing them")
	applyCmd.Flags().IntVar(&workers, "workers", 4, "Number of plans applied in parallel")
	planCmd.Flags().IntVar(&workers, "workers", 4, "Number of plans previewed in parallel")

	constraintsCmd.Flags().BoolVar(&interactive, "interactive", false, "Browse every table's constraints in a terminal UI")

	nameCmd.Flags().StringVar(&suffix, "suffix", "", `Name suffix: "" for indexes, _uniq, _pkey, or fk`)
	nameCmd.Flags().StringVar(&dialect, "dialect", "postgres", "Dialect whose identifier limit applies when no config is given")

	profilesListCmd.Flags().StringVar(&filterType, "type", "", "Only list targets of this database type")
	profilesCmd.AddCommand(profilesListCmd)
	profilesCmd.AddCommand(profilesAddCmd)
	profilesCmd.AddCommand(profilesRemoveCmd)

	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(constraintsCmd)
	rootCmd.AddCommand(nameCmd)
	rootCmd.AddCommand(profilesCmd)

	cobra.OnInitialize(func() {
		rootCmd.SilenceUsage = true
		rootCmd.SilenceErrors = true
	})
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println(err)
		stop()
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if strings.TrimSpace(profile) != "" {
		cfg, err := profiles.NewManager(profileDir).Load(profile)
		if err != nil {
			return nil, fmt.Errorf("cannot load profile: %w", err)
		}
		return cfg, nil
	}
	if strings.TrimSpace(configPath) == "" {
		return nil, fmt.Errorf("--config or --profile is required")
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("cannot load config: %w", err)
	}
	return cfg, nil
}

func runApply(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return apply(cmd.Context(), cfg, args, dryRun)
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return apply(cmd.Context(), cfg, args, true)
}

func apply(ctx context.Context, cfg *config.Config, paths []string, dry bool) error {
	if dry {
		workflowService.ShowProgress = false
	}
	if len(paths) == 1 {
		return workflowService.Apply(ctx, cfg, paths[0], dry, verbose)
	}
	return workflowService.ApplyParallel(ctx, cfg, paths, workers, dry, verbose)
}

func runConstraints(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if interactive {
		return workflowService.Explore(cmd.Context(), cfg)
	}
	if len(args) == 0 {
		return fmt.Errorf("a table name is required unless --interactive is set")
	}

	column := ""
	if len(args) == 2 {
		column = args[1]
	}
	return workflowService.Constraints(cmd.Context(), cfg, args[0], column)
}

func runName(cmd *cobra.Command, args []string) error {
	var cfg *config.Config
	if strings.TrimSpace(configPath) != "" || strings.TrimSpace(profile) != "" {
		loaded, err := loadConfig()
		if err != nil {
			return err
		}
		cfg = loaded
	} else {
		cfg = &config.Config{Database: config.DatabaseConfig{Type: dialect}}
		cfg.ApplyDefaults()
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	_, err := workflowService.Name(cfg, args[0], args[1:], suffix)
	return err
}

func runProfilesList(cmd *cobra.Command, args []string) error {
	manager := profiles.NewManager(profileDir)
	list, err := manager.List(filterType)
	if err != nil {
		return err
	}

	fmt.Printf("\nMigration targets in %s:\n", manager.Directory())
	fmt.Println(strings.Repeat("=", 36))
	for i, p := range list {
		fmt.Printf("%d. %s (%s, %s)\n", i+1, p.Name, p.Type, p.Database)
	}
	fmt.Printf("\nTotal targets: %d\n", len(list))
	return nil
}

func runProfilesAdd(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(args[1])
	if err != nil {
		return fmt.Errorf("cannot load config: %w", err)
	}

	saved, err := profiles.NewManager(profileDir).Save(args[0], cfg)
	if err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	fmt.Printf("Saved %s to %s\n", saved.Name, saved.Path)
	return nil
}

func runProfilesRemove(cmd *cobra.Command, args []string) error {
	return profiles.NewManager(profileDir).Delete(args[0])
}
