package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Swind/go-bgtask/config"
	"github.com/Swind/go-bgtask/core"
)

// app is the state shared by every subcommand once the config is loaded.
type app struct {
	configPath string
	cfg        config.Config
	logger     *core.SlogLogger

	flagConfigFilePath string
	flagVerbose        bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		slog.Error("bgdemo failed", "err", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:          "bgdemo",
		Short:        "Drive the background worker pool and cancellable worker from a terminal",
		SilenceUsage: true,
		// never print messages
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(stderr)
		},
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	rootCmd.PersistentFlags().StringVar(&a.flagConfigFilePath, "config", "", "Config file to load - default is $"+config.EnvConfigPath+" or "+config.DefaultPath)
	rootCmd.PersistentFlags().BoolVar(&a.flagVerbose, "verbose", false, "verbose logging")

	rootCmd.AddCommand(newPoolCmd(a))
	rootCmd.AddCommand(newMultiplyCmd(a))
	rootCmd.AddCommand(newDemoCmd(a))
	rootCmd.AddCommand(newConfigCmd(a))
	rootCmd.AddCommand(newVersionCmd(a))
	return rootCmd
}

func (a *app) init(stderr io.Writer) error {
	a.configPath = config.ResolvePath(a.flagConfigFilePath)
	cfg, err := config.Load(a.configPath, true)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// --verbose has a precedence over config file
	if a.flagVerbose {
		cfg.Log.Level = "debug"
	}
	a.cfg = cfg
	a.logger = cfg.Logger(stderr)
	slog.SetDefault(a.logger.Slog())

	slog.Debug("bgdemo run", "configPath", a.configPath)
	return nil
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			info, ok := debug.ReadBuildInfo()
			if !ok {
				fmt.Fprintln(out, "bgdemo: version info not available")
				return
			}

			fmt.Fprintf(out, "config: %s\n", a.configPath)
			fmt.Fprintf(out, "bgdemo: %s\n", info.Main.Version)
			fmt.Fprintf(out, "go:     %s\n", info.GoVersion)
			for _, s := range info.Settings {
				switch s.Key {
				case "vcs.revision":
					fmt.Fprintf(out, "commit: %s\n", s.Value)
				case "vcs.time":
					fmt.Fprintf(out, "date:   %s\n", s.Value)
				case "vcs.modified":
					fmt.Fprintf(out, "dirty:  %s\n", s.Value)
				}
			}
		},
	}
}
