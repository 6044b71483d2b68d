// Command carechat talks to the care assistant from a terminal.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xiaot623/careassist/internal/adapter/openai"
	"github.com/xiaot623/careassist/internal/assistant"
	"github.com/xiaot623/careassist/internal/config"
	"github.com/xiaot623/careassist/internal/domain"
)

var (
	// Global flags
	verbose bool
	timeout time.Duration
	server  string

	logger *zap.Logger
)

var (
	// Styles
	promptStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62"))

	replyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255")).
			PaddingLeft(2)

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)
)

var rootCmd = &cobra.Command{
	Use:   "carechat",
	Short: "Chat with the care assistant",
	Long: `carechat sends messages to the configured assistant and prints its replies.

Credentials are read from OPENAI_API_KEY and OPENAI_ASSISTANT_ID, or from the
YAML file named by CAREASSIST_CONFIG. Set CAREASSIST_MODE=MOCK to use the
in-memory assistant.

Run without arguments to start an interactive chat.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapCfg := zap.NewProductionConfig()
		zapCfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd, args)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "Maximum time to wait for a reply (default: RUN_TIMEOUT_MS)")
	chatCmd.Flags().StringVar(&server, "server", "", "Chat through a running careassist server, e.g. http://localhost:8080")

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(chatCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render(err.Error()))
		os.Exit(1)
	}
}

// newDriver builds a driver from the environment and command flags.
func newDriver() (*assistant.Driver, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if timeout > 0 {
		cfg.RunTimeout = timeout
	}
	client := openai.NewCompletionService(cfg, logger)
	return assistant.NewDriver(client, assistant.SettingsFromConfig(cfg),
		assistant.WithLogger(logger),
		assistant.WithObserver(printStatus),
	), nil
}

func printStatus(ev assistant.Event) {
	if !verbose {
		return
	}
	switch ev.Type {
	case domain.EventTypeRunCreated:
		fmt.Fprintln(os.Stderr, statusStyle.Render("run "+ev.RunID+" started"))
	case domain.EventTypeRunStatus:
		fmt.Fprintln(os.Stderr, statusStyle.Render(fmt.Sprintf("poll %d: %s", ev.Poll, ev.Status)))
	}
}
