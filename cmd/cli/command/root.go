package command

// root.go defines the root command for the smsnotify CLI and the settings
// shared by every subcommand.

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/bs1gr/AUT-MIEEK-SMS-sub003/internal/config"

	"github.com/spf13/cobra"
)

var (
	apiURL  string // overrides api_url
	wsURL   string // overrides ws_url
	cfgFile string // config file path

	settings *config.SyncConfig // resolved in PersistentPreRunE
	logger   *slog.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "smsnotify",
	Short: "smsnotify - school administration notifications from the terminal",
	Long: `smsnotify follows the notifications of a school administration console account.
It can:
- list, read and delete notifications
- mark everything as read
- watch the unread badge and newest notifications live

Use "smsnotify command --help" to see all available commands.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadSettings(cfgFile)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("api") {
			cfg.APIURL = apiURL
		}
		if cmd.Flags().Changed("ws") {
			cfg.WSURL = wsURL
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		settings = cfg
		// logs go to stderr so they never mix with rendered output
		logger = config.NewLogger(cfg.LogLevel, cfg.LogFormat)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err) // Print error to standard error
		os.Exit(1)
	}
}

func init() {
	// Global persistent flags = available to all subcommands
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", "", "REST API base URL (default from config)")
	rootCmd.PersistentFlags().StringVar(&wsURL, "ws", "", "push channel URL (default from config)")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", defaultConfigPath(), "config file path")

	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(notificationsCmd)
}
