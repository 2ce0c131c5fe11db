// cmd.go - CLI Setup und Root Command
// Hauptfunktionen: NewCLI, appendEnvDocs, EnvHandler
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"slices"

	"github.com/containerd/console"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/7blacky7/rocal/envconfig"
	"github.com/7blacky7/rocal/logutil"
)

// appendEnvDocs - Fuegt Umgebungsvariablen-Dokumentation zum Command hinzu
func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-24s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

// EnvHandler - Gibt alle ROCAL_* Variablen mit aktuellem Wert aus
func EnvHandler(cmd *cobra.Command, _ []string) error {
	envs := envconfig.AsMap()
	keys := make([]string, 0, len(envs))
	for k := range envs {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	w := cmd.OutOrStdout()
	for _, k := range keys {
		fmt.Fprintf(w, "%s=%v\n", k, envs[k].Value)
	}
	return nil
}

// NewCLI - Erstellt das Haupt-CLI mit allen Commands
func NewCLI() *cobra.Command {
	cobra.EnableCommandSorting = false

	if runtime.GOOS == "windows" && term.IsTerminal(int(os.Stdout.Fd())) {
		console.ConsoleFromFile(os.Stdin) //nolint:errcheck
	}

	rootCmd := &cobra.Command{
		Use:           "rocal",
		Short:         "Image data loading and augmentation pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			slog.SetDefault(logutil.NewLogger(os.Stderr, envconfig.LogLevel()))
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Print(cmd.UsageString())
		},
	}

	runCmd := newRunCmd()
	serveCmd := newServeCmd()
	psCmd := newPsCmd()
	envCmd := &cobra.Command{
		Use:   "env",
		Short: "Print environment configuration",
		Args:  cobra.NoArgs,
		RunE:  EnvHandler,
	}

	envVars := envconfig.AsMap()
	for _, cmd := range []*cobra.Command{runCmd, serveCmd, psCmd} {
		switch cmd {
		case runCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{
				envVars["ROCAL_DEBUG"],
				envVars["ROCAL_NUM_THREADS"],
				envVars["ROCAL_PREFETCH_DEPTH"],
				envVars["ROCAL_SEED"],
				envVars["ROCAL_SHUFFLE_SEED"],
				envVars["ROCAL_DECODER"],
				envVars["ROCAL_HOST"],
			})
		case serveCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{
				envVars["ROCAL_DEBUG"],
				envVars["ROCAL_HOST"],
				envVars["ROCAL_ORIGINS"],
			})
		default:
			appendEnvDocs(cmd, []envconfig.EnvVar{envVars["ROCAL_HOST"]})
		}
	}

	rootCmd.AddCommand(runCmd, serveCmd, psCmd, envCmd)
	return rootCmd
}
