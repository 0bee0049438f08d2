package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configForce bool

// configDirFunc returns the config directory path, replaceable in tests.
var configDirFunc = defaultConfigDir

func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "deskpilot"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage deskpilot configuration.

Running bare 'deskpilot config' is the same as 'deskpilot config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config file with commented defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configEditRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

// configTemplate is the template for generating config.yaml with comments.
const configTemplate = `# deskpilot configuration
# See: deskpilot config show (for effective values and sources)

# SQLite execution journal (default: ~/.config/deskpilot/deskpilot.db)
# db_path: {{ .DBPath }}

journal:
  # Record executions and state transitions (default: true)
  enabled: {{ .JournalEnabled }}

anthropic:
  # API key (falls back to ANTHROPIC_API_KEY)
  api_key: ""
  model: "{{ .Model }}"

intent:
  # Minimum confidence before a classification is trusted (default: 0.7)
  confidence_threshold: {{ .ConfidenceThreshold }}
  lock_timeout: {{ .IntentLockTimeout }}

execution:
  # Wait for a running command before answering "system busy" (default: 30s)
  lock_timeout: {{ .ExecutionLockTimeout }}

deferred:
  # How long generated content waits for a click (default: 5m)
  timeout: {{ .DeferredTimeout }}
  trigger_lock_timeout: {{ .TriggerLockTimeout }}
  # Speak a notice when a new command cancels a pending action (default: true)
  announce_interrupt: {{ .AnnounceInterrupt }}

fast_path:
  # Try accessibility lookup before the vision path (default: true)
  enabled: {{ .FastPathEnabled }}
  max_attempts: {{ .FastPathAttempts }}

state:
  max_history_entries: {{ .MaxHistory }}
  # Wait for the deferred-action state lock (default: 5s)
  lock_timeout: {{ .StateLockTimeout }}

recovery:
  # Recovery attempts per module before giving up (default: 3)
  max_attempts: {{ .RecoveryAttempts }}

automation:
  tool: "{{ .AutomationTool }}"

accessibility:
  # Command printing element JSON for --role/--label/--app; empty resolves
  # windows by title through the automation tool
  query_cmd: "{{ .AccessibilityQueryCmd }}"

feedback:
  # Text-to-speech program (espeak, say, ...)
  tts: "{{ .TTS }}"

vision:
  # Command that writes a PNG screenshot to stdout
  screenshot_cmd: "{{ .ScreenshotCmd }}"
`

type configTemplateData struct {
	DBPath                string
	JournalEnabled        bool
	Model                 string
	ConfidenceThreshold   float64
	IntentLockTimeout     time.Duration
	ExecutionLockTimeout  time.Duration
	DeferredTimeout       time.Duration
	TriggerLockTimeout    time.Duration
	AnnounceInterrupt     bool
	FastPathEnabled       bool
	FastPathAttempts      int
	MaxHistory            int
	StateLockTimeout      time.Duration
	RecoveryAttempts      int
	AutomationTool        string
	AccessibilityQueryCmd string
	TTS                   string
	ScreenshotCmd         string
}

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if file already exists
	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
		}
		ui.Warning("Overwriting existing config file")
	}

	// Build template data from current viper values
	data := configTemplateData{
		DBPath:                viper.GetString("db_path"),
		JournalEnabled:        viper.GetBool("journal.enabled"),
		Model:                 viper.GetString("anthropic.model"),
		ConfidenceThreshold:   viper.GetFloat64("intent.confidence_threshold"),
		IntentLockTimeout:     viper.GetDuration("intent.lock_timeout"),
		ExecutionLockTimeout:  viper.GetDuration("execution.lock_timeout"),
		DeferredTimeout:       viper.GetDuration("deferred.timeout"),
		TriggerLockTimeout:    viper.GetDuration("deferred.trigger_lock_timeout"),
		AnnounceInterrupt:     viper.GetBool("deferred.announce_interrupt"),
		FastPathEnabled:       viper.GetBool("fast_path.enabled"),
		FastPathAttempts:      viper.GetInt("fast_path.max_attempts"),
		MaxHistory:            viper.GetInt("state.max_history_entries"),
		StateLockTimeout:      viper.GetDuration("state.lock_timeout"),
		RecoveryAttempts:      viper.GetInt("recovery.max_attempts"),
		AutomationTool:        viper.GetString("automation.tool"),
		AccessibilityQueryCmd: viper.GetString("accessibility.query_cmd"),
		TTS:                   viper.GetString("feedback.tts"),
		ScreenshotCmd:         viper.GetString("vision.screenshot_cmd"),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("template parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("template execute error: %w", err)
	}

	if dryRun {
		ui.DryRunMsg("Would create config file: %s", cfgPath)
		fmt.Fprintln(ui.Out)
		fmt.Fprint(ui.Out, buf.String())
		return nil
	}

	// Create config directory
	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(cfgPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	ui.Success("Config file created: %s", cfgPath)
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, buf.String())
	return nil
}

// configKeyInfo describes a config key for display purposes.
type configKeyInfo struct {
	Key    string
	EnvVar string
	Secret bool
}

var configKeys = []configKeyInfo{
	{Key: "db_path", EnvVar: "DESKPILOT_DB_PATH"},
	{Key: "journal.enabled", EnvVar: "DESKPILOT_JOURNAL_ENABLED"},
	{Key: "anthropic.api_key", EnvVar: "DESKPILOT_ANTHROPIC_API_KEY", Secret: true},
	{Key: "anthropic.model", EnvVar: "DESKPILOT_ANTHROPIC_MODEL"},
	{Key: "intent.confidence_threshold", EnvVar: "DESKPILOT_INTENT_CONFIDENCE_THRESHOLD"},
	{Key: "intent.lock_timeout", EnvVar: "DESKPILOT_INTENT_LOCK_TIMEOUT"},
	{Key: "execution.lock_timeout", EnvVar: "DESKPILOT_EXECUTION_LOCK_TIMEOUT"},
	{Key: "deferred.timeout", EnvVar: "DESKPILOT_DEFERRED_TIMEOUT"},
	{Key: "deferred.trigger_lock_timeout", EnvVar: "DESKPILOT_DEFERRED_TRIGGER_LOCK_TIMEOUT"},
	{Key: "deferred.announce_interrupt", EnvVar: "DESKPILOT_DEFERRED_ANNOUNCE_INTERRUPT"},
	{Key: "fast_path.enabled", EnvVar: "DESKPILOT_FAST_PATH_ENABLED"},
	{Key: "fast_path.max_attempts", EnvVar: "DESKPILOT_FAST_PATH_MAX_ATTEMPTS"},
	{Key: "state.max_history_entries", EnvVar: "DESKPILOT_STATE_MAX_HISTORY_ENTRIES"},
	{Key: "state.lock_timeout", EnvVar: "DESKPILOT_STATE_LOCK_TIMEOUT"},
	{Key: "recovery.max_attempts", EnvVar: "DESKPILOT_RECOVERY_MAX_ATTEMPTS"},
	{Key: "automation.tool", EnvVar: "DESKPILOT_AUTOMATION_TOOL"},
	{Key: "accessibility.query_cmd", EnvVar: "DESKPILOT_ACCESSIBILITY_QUERY_CMD"},
	{Key: "feedback.tts", EnvVar: "DESKPILOT_FEEDBACK_TTS"},
	{Key: "vision.screenshot_cmd", EnvVar: "DESKPILOT_VISION_SCREENSHOT_CMD"},
	{Key: "instance.pid_file", EnvVar: "DESKPILOT_INSTANCE_PID_FILE"},
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if config file exists
	if _, err := os.Stat(cfgPath); err == nil {
		ui.Info("Config file: %s", cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}
	fmt.Fprintln(ui.Out)

	// Read config file values to determine file source
	fileValues := readConfigFileValues(cfgPath)

	for _, k := range configKeys {
		val := viper.Get(k.Key)
		if k.Secret {
			val = maskSecret(viper.GetString(k.Key))
		}
		source := detectSource(k.Key, k.EnvVar, fileValues)
		fmt.Fprintf(ui.Out, "  %-30s %v  %s\n", k.Key, val, source)
	}

	return nil
}

// maskSecret keeps the last four characters of a credential.
func maskSecret(v string) string {
	if v == "" {
		return ""
	}
	if len(v) <= 4 {
		return "****"
	}
	return "****" + v[len(v)-4:]
}

// readConfigFileValues reads the raw YAML file and returns a flat map of keys present in it.
func readConfigFileValues(path string) map[string]bool {
	result := make(map[string]bool)

	data, err := os.ReadFile(path)
	if err != nil {
		return result
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return result
	}

	// Flatten nested keys with dot notation
	flattenKeys("", parsed, result)
	return result
}

// flattenKeys recursively flattens a nested map to dot-notation keys.
func flattenKeys(prefix string, m map[string]any, result map[string]bool) {
	for key, val := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flattenKeys(fullKey, nested, result)
		} else {
			result[fullKey] = true
		}
	}
}

// detectSource determines where a config value is coming from.
func detectSource(key, envVar string, fileValues map[string]bool) string {
	if _, ok := os.LookupEnv(envVar); ok {
		return fmt.Sprintf("(env: %s)", envVar)
	}
	if fileValues[key] {
		return "(file)"
	}
	return "(default)"
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return fmt.Errorf("$EDITOR is not set: set it to your preferred editor (e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'deskpilot config init' first)", cfgPath)
	}

	if dryRun {
		ui.DryRunMsg("Would open %s in %s", cfgPath, editor)
		return nil
	}

	editCmd := exec.Command(editor, cfgPath)
	editCmd.Stdin = os.Stdin
	editCmd.Stdout = os.Stdout
	editCmd.Stderr = os.Stderr
	return editCmd.Run()
}
