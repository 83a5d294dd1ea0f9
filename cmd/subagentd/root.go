package main

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/relayforge/subagentd/internal/buildinfo"
	"github.com/relayforge/subagentd/internal/obslog"
)

const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	styleBoldCyan = "\033[1;36m"
)

var rootCmd = &cobra.Command{
	Use:   "subagentd",
	Short: "Mediation server for asynchronous codex subagent jobs",
	Long: colorBold + `
 ____        _                               _     _
/ ___| _   _| |__   __ _  __ _  ___ _ __  | |_  __| |
\___ \| | | | '_ \ / _` + "`" + ` |/ _` + "`" + ` |/ _ \ '_ \| __|/ _` + "`" + ` |
 ___) | |_| | |_) | (_| | (_| |  __/ | | | |_| (_| |
|____/ \__,_|_.__/ \__,_|\__, |\___|_| |_|\__|\__,_|
                         |___/` + colorReset + `

  ` + styleBoldCyan + `subagentd` + colorReset + ` v` + buildinfo.Current().Version + `

  Spawns codex exec --json child processes as asynchronous subagent jobs,
  normalizes their event stream, and exposes spawn/status/result/events/
  cancel/wait-any/interrupt over line-delimited stdio.

  subagentd serve     Run the stdio tool dispatcher (the actual service)
  subagentd watch      Launch an interactive dashboard for manual testing`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	rootCmd.PersistentFlags().Bool("debug", false, "Enable verbose diagnostic logging (see SUBAGENTD_DEBUG_ENABLED)")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		debugFlag, _ := cmd.Flags().GetBool("debug")
		if !debugFlag {
			if _, err := obslog.Init(); err != nil {
				return fmt.Errorf("initializing diagnostic logger: %w", err)
			}
		} else {
			os.Setenv(obslog.EnvEnabled, "1")
			path, err := obslog.Init()
			if err != nil {
				return fmt.Errorf("initializing diagnostic logger: %w", err)
			}
			if path != "" && isatty.IsTerminal(os.Stderr.Fd()) {
				fmt.Fprintf(os.Stderr, "%s[debug]%s logging to %s\n", colorDim, colorReset, path)
			}
		}

		bi := buildinfo.Current()
		obslog.LogKV("cli", "subagentd starting",
			"version", bi.Version,
			"commit", bi.CommitHash,
			"pid", os.Getpid(),
			"command", cmd.Name(),
		)
		return nil
	}
}

// Execute runs the root command.
func Execute() {
	defer obslog.Close()
	if err := rootCmd.Execute(); err != nil {
		obslog.Logf("cli", "exit with error: %v", err)
		fmt.Fprintf(os.Stderr, "%sError: %s%s\n", colorRed, err, colorReset)
		os.Exit(1)
	}
	obslog.Log("cli", "exit success")
}
