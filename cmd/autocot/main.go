package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-go-golems/autocot/cmd/autocot/cmds"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "autocot",
	Short: "autocot runs chain-of-thought tool loops against streaming LLM backends",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initLogger(cmd)
	},
	SilenceUsage: true,
}

type logConfig struct {
	WithCaller bool
	Level      string
	LogFormat  string
}

func initLogger(cmd *cobra.Command) error {
	flags := cmd.Root().PersistentFlags()
	level, _ := flags.GetString("log-level")
	format, _ := flags.GetString("log-format")
	withCaller, _ := flags.GetBool("with-caller")
	verbose, _ := flags.GetBool("verbose")
	if verbose && level != "trace" {
		level = "debug"
	}
	return InitLogger(&logConfig{Level: level, LogFormat: format, WithCaller: withCaller})
}

func InitLogger(config *logConfig) error {
	if config.WithCaller {
		log.Logger = log.With().Caller().Logger()
	}

	var logWriter io.Writer = os.Stderr
	switch config.LogFormat {
	case "json":
	case "text":
		logWriter = zerolog.ConsoleWriter{Out: os.Stderr}
	default:
		// auto: colors for terminals, json for everything else
		if isatty.IsTerminal(os.Stderr.Fd()) {
			logWriter = zerolog.ConsoleWriter{Out: os.Stderr}
		}
	}
	log.Logger = log.Output(logWriter)

	if config.Level == "" {
		config.Level = "warn"
	}
	level, err := zerolog.ParseLevel(config.Level)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(level)
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().Bool("with-caller", false, "Log caller")
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level (trace, debug, info, warn, error, fatal)")
	rootCmd.PersistentFlags().String("log-format", "auto", "Log format (auto, json, text)")
	rootCmd.PersistentFlags().Bool("verbose", false, "Verbose output")
	rootCmd.PersistentFlags().String("config", "", "Path to config file (default $XDG_CONFIG_HOME/autocot/config.yaml)")

	cmds.AddSettingsFlags(rootCmd)

	rootCmd.AddCommand(
		cmds.NewRunCommand(),
		cmds.NewChatCommand(),
		cmds.NewModelsCommand(),
		cmds.NewToolsCommand(),
		cmds.NewTokensCommand(),
	)
}
