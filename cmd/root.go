package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/joescharf/deskpilot/internal/output"
	"github.com/joescharf/deskpilot/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	logger    *zap.Logger
	dataStore store.Store

	verbose bool
	dryRun  bool
)

var rootCmd = &cobra.Command{
	Use:   "deskpilot",
	Short: "Desktop assistant - turn spoken-style commands into desktop actions",
	Long: `deskpilot executes natural-language desktop commands.

It classifies each command, clicks and types through the accessibility
fast path or a vision-planned fallback, answers questions about the screen,
and can generate content that is placed wherever you click next.`,
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
	if logger != nil {
		_ = logger.Sync()
	}
	if dataStore != nil {
		_ = dataStore.Close()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output and debug logging")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without acting")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/deskpilot/config.yaml)")
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		dir, err := configDirFunc()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}
		viper.AddConfigPath(dir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("DESKPILOT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

// setDefaults registers every config key with its default value.
func setDefaults() {
	dir, _ := configDirFunc()

	viper.SetDefault("db_path", filepath.Join(dir, "deskpilot.db"))
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	viper.SetDefault("intent.confidence_threshold", 0.7)
	viper.SetDefault("intent.lock_timeout", "5s")
	viper.SetDefault("execution.lock_timeout", "30s")
	viper.SetDefault("deferred.timeout", "5m")
	viper.SetDefault("deferred.trigger_lock_timeout", "10s")
	viper.SetDefault("deferred.announce_interrupt", true)
	viper.SetDefault("fast_path.enabled", true)
	viper.SetDefault("fast_path.max_attempts", 2)
	viper.SetDefault("state.max_history_entries", 100)
	viper.SetDefault("state.lock_timeout", "5s")
	viper.SetDefault("recovery.max_attempts", 3)
	viper.SetDefault("automation.tool", "xdotool")
	viper.SetDefault("accessibility.query_cmd", "")
	viper.SetDefault("feedback.tts", "espeak")
	viper.SetDefault("vision.screenshot_cmd", "import -window root png:-")
	viper.SetDefault("journal.enabled", true)
	viper.SetDefault("instance.pid_file", filepath.Join(dir, "deskpilot.pid"))
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	l, err := newLogger(verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: logging disabled: %v\n", err)
		l = zap.NewNop()
	}
	logger = l
}

// newLogger builds a production logger writing to stderr, at debug level
// when verbose is set.
func newLogger(verbose bool) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.OutputPaths = []string{"stderr"}
	if verbose {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		config.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	}
	l, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return l, nil
}

// getStore returns the shared journal store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	dbPath := viper.GetString("db_path")
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	ctx := rootCmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}
