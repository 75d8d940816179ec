// Command turingctl controls a Turing smart-screen display over USB.
//
// Every subcommand opens the display, sends a sync command, runs and
// releases the display again. With --simulate the commands run against an
// in-memory emulator instead of the hardware.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ardnew/turingscreen/config"
	"github.com/ardnew/turingscreen/pkg"
)

var (
	configPath string
	logLevel   string
	logJSON    bool
	simulate   bool

	// cfg is loaded before any subcommand runs.
	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:               "turingctl",
	Short:             "Control a Turing smart-screen display",
	Long:              "Send images and video to a Turing smart-screen display, manage its storage and settings.",
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "Configuration file (default $XDG_CONFIG_HOME/turingscreen/config.toml)")
	flags.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.BoolVar(&logJSON, "log-json", false, "Output logs as JSON")
	flags.BoolVar(&simulate, "simulate", false, "Run against an emulated display")
}

// setup loads the configuration and configures logging.
func setup(cmd *cobra.Command, _ []string) error {
	path, explicit := configPath, configPath != ""
	if !explicit {
		path = config.DefaultPath()
	}

	var err error
	if cfg, err = config.Load(path, !explicit); err != nil {
		return err
	}

	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if logJSON {
		cfg.Log.Format = "json"
	}

	level, ok := pkg.ParseLogLevel(cfg.Log.Level)
	if !ok {
		return fmt.Errorf("log level %q: %w", cfg.Log.Level, pkg.ErrInvalidParameter)
	}
	format, err := cfg.Log.LogFormat()
	if err != nil {
		return err
	}
	pkg.SetLogOutput(cmd.ErrOrStderr(), format)
	pkg.SetLogLevel(level)

	pkg.LogDebug(pkg.ComponentCLI, "configuration loaded", "path", path, "simulate", simulate)
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		reportError(err)
		os.Exit(1)
	}
}

// reportError logs err with its failure class and the command it names.
func reportError(err error) {
	args := []any{"error", err}
	if kind := pkg.Kind(err); kind != nil {
		args = append(args, "kind", kind.Error())
	}
	var ce *pkg.CommandError
	if errors.As(err, &ce) {
		args = append(args, "command", ce.Command)
	}
	pkg.LogError(pkg.ComponentCLI, "command failed", args...)
}
