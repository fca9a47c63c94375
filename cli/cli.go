// Package cli provides the command-line interface of TrustTunnel.
// It wires settings, the saved-config store, credentials, routing and the
// session controller behind a cobra command tree.
package cli

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/yllada/trusttunnel-desktop/common"
	"github.com/yllada/trusttunnel-desktop/config"
	"github.com/yllada/trusttunnel-desktop/keyring"
	"github.com/yllada/trusttunnel-desktop/store"
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version   string
	BuildTime string
	Commit    string
}

// App holds state shared by all commands.
type App struct {
	build BuildInfo

	settingsPath string
	verbose      bool

	settings *config.Config

	// credentials defaults to the system keyring. Tests replace it.
	credentials common.CredentialStore
}

// NewRootCommand builds the command tree.
func NewRootCommand(build BuildInfo) *cobra.Command {
	app := &App{build: build}
	return app.rootCommand()
}

func (a *App) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "trusttunnel",
		Short: "TrustTunnel VPN client",
		Long: `TrustTunnel runs and supervises the TrustTunnel tunnel engine.

It keeps one session alive with automatic reconnects, remembers engine
config files, stores endpoint passwords in the system keyring and can
restrict or bypass the tunnel for a downloaded subnet list.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.settings.AutoConnect && a.settings.LastConfig != "" {
				return a.connectCommand().RunE(cmd, nil)
			}
			return cmd.Help()
		},
	}

	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable verbose logging")
	root.PersistentFlags().StringVar(&a.settingsPath, "settings", "", "application settings file (default ~/.config/trusttunnel-desktop/config.yaml)")

	root.AddCommand(
		a.connectCommand(),
		a.validateCommand(),
		a.inspectCommand(),
		a.pingCommand(),
		a.configsCommand(),
		a.credentialsCommand(),
		a.routingCommand(),
		a.versionCommand(),
	)
	return root
}

// setup loads settings and configures logging before any command runs.
func (a *App) setup(cmd *cobra.Command, args []string) error {
	var (
		settings *config.Config
		err      error
	)
	if a.settingsPath != "" {
		settings, err = config.LoadFrom(a.settingsPath)
	} else {
		settings, err = config.Load()
	}
	if err != nil {
		return err
	}
	a.settings = settings

	level, err := common.ParseLogLevel(settings.Logs.Level)
	if err != nil {
		level = common.LevelInfo
	}
	if a.verbose {
		level = common.LevelDebug
	}

	if err := common.InitLogger(common.LogConfig{
		Level:      level,
		EnableFile: settings.Logs.Save,
		FilePath:   settings.LogFilePath(),
	}); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: Could not initialize file logging: %v\n", err)
	}
	return nil
}

// openStore opens the saved-config database next to the settings file.
func (a *App) openStore() (*store.Store, error) {
	return store.Open(filepath.Join(filepath.Dir(a.settings.Path()), common.ConfigsDBFileName))
}

func (a *App) credentialStore() common.CredentialStore {
	if a.credentials == nil {
		a.credentials = keyring.Default()
	}
	return a.credentials
}

func (a *App) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s v%s\n", common.AppName, a.build.Version)
			if a.build.BuildTime != "" && a.build.BuildTime != "unknown" {
				fmt.Fprintf(out, "  Build:  %s\n", a.build.BuildTime)
				fmt.Fprintf(out, "  Commit: %s\n", a.build.Commit)
			}
		},
	}
}

// formatDuration formats a duration in a human-readable format.
func formatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
