package main

import (
	"errors"
	"io/fs"
	"os"

	"github.com/rahul/stepwise/internal/observability"
	"github.com/rahul/stepwise/pkg/config"
	"github.com/spf13/cobra"
)

const defaultConfigPath = "config.yaml"

// cli holds what every subcommand shares once the persistent flags are parsed.
type cli struct {
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *observability.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "stepwise",
		Short:         "Plan, execute and replan tool-using tasks step by step",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.init(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.chat(cmd)
		},
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", defaultConfigPath, "path to a YAML or JSON config file")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newChatCmd(c),
		newRunCmd(c),
		newResumeCmd(c),
		newBatchCmd(c),
		newShowCmd(c),
		newSessionsCmd(c),
	)
	return root
}

// init loads the config. A missing default config file falls back to built-in defaults; an
// explicitly named one must exist.
func (c *cli) init(cmd *cobra.Command) error {
	cfg, err := config.LoadConfig(c.configPath)
	if errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config") {
		cfg, err = config.Default(), nil
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			cfg.Providers = map[string]config.ProviderConfig{
				"openai": {APIKey: key, Model: "gpt-4o-mini", Enabled: true},
			}
		}
	}
	if err != nil {
		return err
	}

	level := cfg.Logging.Level
	if c.verbose {
		level = "debug"
	}
	logger, err := observability.NewLogger(observability.Options{
		Level:          level,
		LLMLogPath:     cfg.Logging.LLMLogPath,
		LLMLogMaxBytes: cfg.Logging.LLMLogMaxBytes,
	})
	if err != nil {
		return err
	}
	c.cfg = cfg
	c.logger = logger
	return nil
}
