package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/tschwarz/discourse-export/internal/config"
	"github.com/tschwarz/discourse-export/internal/discourse"
	"github.com/tschwarz/discourse-export/internal/pipeline"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "discourse-export",
	Short:        "Export Discourse topics and categories to report files",
	Long:         "discourse-export queries a Discourse forum, filters topics by date range and keyword, optionally enriches them, and writes text, CSV and JSON reports.",
	Version:      version,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		} else {
			log.SetFlags(log.LstdFlags)
		}

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(categoriesCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("discourse-export", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/discourse-export/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to set the forum URL and date range; put API_KEY and API_USERNAME in the environment or a .env file.")
		return nil
	},
}

// --- export command ---

var outputDir string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Run the full export: fetch, filter, enrich, group, write reports",
	RunE: func(cmd *cobra.Command, args []string) error {
		if outputDir != "" {
			cfg.Output.Dir = outputDir
		}
		if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}

		result := pipeline.New(cfg).Run()

		for i, step := range result.Steps {
			fmt.Printf("\nStep %d/3: %s\n", i+1, step.Name)
			if step.Err != nil {
				fmt.Printf("  Error: %v\n", step.Err)
			} else {
				fmt.Printf("  %s\n", step.Summary)
			}
		}

		if result.Failed() {
			return fmt.Errorf("export did not complete")
		}
		fmt.Printf("\nExport complete: %d topics.\n", result.Topics)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&outputDir, "output", "o", "", "Directory for the report files (overrides config)")
}

// --- categories command ---

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List the forum's categories",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := discourse.New(cfg.Discourse.URL, cfg.Discourse.APIKey, cfg.Discourse.APIUsername, cfg.Timeout())

		categories, err := client.ListCategories()
		if err != nil {
			return fmt.Errorf("fetching categories: %w", err)
		}

		fmt.Printf("%d categories:\n", len(categories))
		for _, c := range categories {
			fmt.Printf("  [%d] %s\n", c.ID, c.Name)
		}
		return nil
	},
}
