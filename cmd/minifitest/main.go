package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"minifitest/internal/app"
	"minifitest/internal/config"
	harnesserrors "minifitest/internal/errors"
	"minifitest/internal/logger"
	"minifitest/internal/ui"
)

// version is set at build time via ldflags
var version = "dev"

var rootCmd = &cobra.Command{
	Use:     "minifitest",
	Short:   "minifitest - container harness for MiNiFi agent integration tests",
	Version: version,
	Long: `minifitest deploys a MiNiFi agent and its supporting containers on a
private network, injects their configuration and test files, and verifies
the agent's behavior from the files it writes, its logs and its controller.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		debug, _ := cmd.Flags().GetBool("debug")
		logDir, _ := cmd.Flags().GetString("log-dir")
		if logDir == "" {
			logger.Init(debug)
			return nil
		}
		if err := logger.InitWithFile(debug, logDir, nil); err != nil {
			logger.Warn().Err(err).Msg("file logging disabled")
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.CloseFileWriter()
	},
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Deploy a harness scenario and run its checks",
	Long: `Up loads a harness file, deploys every container it declares on a fresh
scenario network, runs the checks in order and tears the scenario down.

With --keep the containers are left running and recorded in a state file
so that 'minifitest down' can remove them later.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		pull, _ := cmd.Flags().GetBool("pull")
		keep, _ := cmd.Flags().GetBool("keep")
		retainState, _ := cmd.Flags().GetBool("retain-state")
		stateDir, _ := cmd.Flags().GetString("state-dir")
		engine, _ := cmd.Flags().GetString("engine")

		_, err := app.Up(cmd.Context(), app.Options{
			HarnessPath: file,
			Pull:        pull,
			Keep:        keep,
			RetainState: retainState,
			StateDir:    stateDir,
			Engine:      engine,
			Console:     ui.NewConsole(),
		})
		return err
	},
}

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Remove the containers left behind by 'up --keep'",
	RunE: func(cmd *cobra.Command, args []string) error {
		stateDir, _ := cmd.Flags().GetString("state-dir")
		engine, _ := cmd.Flags().GetString("engine")

		return app.Down(cmd.Context(), app.DownOptions{
			StateDir: stateDir,
			Engine:   engine,
			Console:  ui.NewConsole(),
		})
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a harness file without deploying anything",
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		cfg, err := config.Load(file)
		if err != nil {
			return err
		}
		ui.NewConsole().PrintSuccess(fmt.Sprintf("%s is valid: %d containers, %d checks",
			cfg.Path, len(cfg.Spec.Containers), len(cfg.Spec.Checks)))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("log-dir", "", "Also write JSON logs to a rotated file in this directory")

	upCmd.Flags().StringP("file", "f", config.DefaultFileName, "Path to the harness YAML file")
	upCmd.Flags().Bool("pull", false, "Pull every image before deploying")
	upCmd.Flags().Bool("keep", false, "Leave the containers running after the checks")
	upCmd.Flags().Bool("retain-state", false, "Keep the state file after successful completion for auditing purposes")
	upCmd.Flags().String("state-dir", ".", "Directory holding the run state file")
	upCmd.Flags().String("engine", "docker", "Container engine")
	rootCmd.AddCommand(upCmd)

	downCmd.Flags().String("state-dir", ".", "Directory holding the run state file")
	downCmd.Flags().String("engine", "docker", "Container engine")
	rootCmd.AddCommand(downCmd)

	validateCmd.Flags().StringP("file", "f", config.DefaultFileName, "Path to the harness YAML file")
	rootCmd.AddCommand(validateCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		harnesserrors.HandleError(err)
		stop()
		os.Exit(1)
	}
}
