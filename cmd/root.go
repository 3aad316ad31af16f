package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/ait/internal/classify"
	"github.com/joescharf/ait/internal/llm"
	"github.com/joescharf/ait/internal/output"
	"github.com/joescharf/ait/internal/store"
	"github.com/joescharf/ait/internal/tracker"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui           *output.UI
	dataStore    store.Store
	issueTracker *tracker.Tracker

	verbose bool
	dryRun  bool
)

var rootCmd = &cobra.Command{
	Use:   "ait",
	Short: "Agent Issue Tracker - hand out work to AI agents one issue at a time",
	Long: `ait tracks issues through a simple lifecycle shared by AI agents:
created -> in_progress -> completed -> in_review -> closed | rejected.

Agents pick up work over MCP (ait mcp, or /mcp on ait serve), the REST API,
or this CLI. Selection is serialized so no two agents get the same issue.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	err := rootCmd.Execute()
	closeStore()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/ait/config.yaml)")
	rootCmd.PersistentFlags().String("data-file", "", "Issue data file (default ./issues.json)")
	_ = viper.BindPFlag("data_file", rootCmd.PersistentFlags().Lookup("data-file"))
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}

		viper.AddConfigPath(filepath.Join(home, ".config", "ait"))
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("AIT")
	viper.AutomaticEnv()

	setDefaults()

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

// setDefaults registers defaults and the legacy environment variable names.
func setDefaults() {
	home, _ := os.UserHomeDir()
	defaultStateDir := filepath.Join(home, ".config", "ait")

	viper.SetDefault("state_dir", defaultStateDir)
	viper.SetDefault("data_file", "./issues.json")
	viper.SetDefault("storage.backend", store.BackendFile)
	viper.SetDefault("storage.sqlite_path", filepath.Join(defaultStateDir, "ait.db"))
	viper.SetDefault("selection.policy", string(tracker.PolicyFIFO))
	viper.SetDefault("port", 3000)
	viper.SetDefault("agent.name", "cli")
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")

	_ = viper.BindEnv("data_file", "AIT_DATA_FILE", "ISSUES_FILE")
	_ = viper.BindEnv("port", "AIT_PORT", "PORT")
	_ = viper.BindEnv("anthropic.api_key", "AIT_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	// The tracker is opened lazily so config/version commands run without a
	// data file.
}

// storeConfig builds the store configuration from viper.
func storeConfig() (store.Config, error) {
	dataFile, err := filepath.Abs(viper.GetString("data_file"))
	if err != nil {
		return store.Config{}, fmt.Errorf("resolve data file: %w", err)
	}
	return store.Config{
		Backend:    viper.GetString("storage.backend"),
		Path:       dataFile,
		SQLitePath: viper.GetString("storage.sqlite_path"),
	}, nil
}

// getTracker returns the shared tracker, opening the store on first call.
func getTracker(ctx context.Context) (*tracker.Tracker, error) {
	if issueTracker != nil {
		return issueTracker, nil
	}

	policy, err := tracker.ParseSelectionPolicy(viper.GetString("selection.policy"))
	if err != nil {
		return nil, err
	}

	cfg, err := storeConfig()
	if err != nil {
		return nil, err
	}
	s, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	t, err := tracker.New(ctx, s, tracker.WithPolicy(policy), tracker.WithLogger(slog.Default()))
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	dataStore = s
	issueTracker = t
	return issueTracker, nil
}

func closeStore() {
	if dataStore != nil {
		_ = dataStore.Close()
		dataStore = nil
	}
	issueTracker = nil
}

// newLLMClient creates an LLM client from config/env, or returns nil if no API key is configured.
func newLLMClient() *llm.Client {
	apiKey := viper.GetString("anthropic.api_key")
	if apiKey == "" {
		return nil
	}
	return llm.NewClient(apiKey, viper.GetString("anthropic.model"))
}

// getSuggester returns the classification suggester: the LLM when
// configured, then keyword heuristics.
func getSuggester() classify.Suggester {
	var suggesters []classify.Suggester
	if c := newLLMClient(); c != nil {
		suggesters = append(suggesters, c)
	}
	suggesters = append(suggesters, classify.Heuristic{})
	return classify.NewChain(slog.Default(), suggesters...)
}

// agentName returns the attribution for CLI-issued mutations.
func agentName(flag string) string {
	if flag != "" {
		return flag
	}
	return viper.GetString("agent.name")
}
