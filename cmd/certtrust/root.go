package main

import (
	"log/slog"

	"github.com/sensiblebit/certtrust/internal"
	"github.com/spf13/cobra"
)

var (
	configPath string
	cfg        internal.Config
	logger     *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "certtrust",
	Short: "User-curated TLS server certificate trust",
	Long: "Validate TLS server certificates against the system roots and a persistent, " +
		"user-curated trust store, asking the user about certificates nobody has decided on yet.",
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

func init() {
	defaults := internal.DefaultConfig()
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "Config file (default: "+internal.DefaultConfigPath()+")")
	pf.StringP("log-level", "l", defaults.LogLevel, "Log level: debug, info, warn, error")
	pf.String("log-format", defaults.LogFormat, "Log format: text, json")
	pf.StringP("store", "s", "", "Trust store path (default: truststore.jks, .p12, or .db in the config directory, by store type)")
	pf.String("store-type", defaults.Store.Type, "Trust store type: jks, pkcs12, sqlite, memory")
	pf.String("store-password-file", "", "File whose first line is the trust store password")

	registerCompletion(rootCmd, completionInput{"log-level", fixedCompletion("debug", "info", "warn", "error")})
	registerCompletion(rootCmd, completionInput{"log-format", fixedCompletion("text", "json")})
	registerCompletion(rootCmd, completionInput{"store-type", fixedCompletion("jks", "pkcs12", "sqlite", "memory")})
	registerCompletion(rootCmd, completionInput{"store", fileCompletion})
	registerCompletion(rootCmd, completionInput{"store-password-file", fileCompletion})
	registerCompletion(rootCmd, completionInput{"config", fileCompletion})

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(trustCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(pendingCmd)
	rootCmd.AddCommand(decideCmd)
}

// loadConfig reads the config file, overlays flags the user set, and
// installs the logger.
func loadConfig(cmd *cobra.Command, _ []string) error {
	loaded, err := internal.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if err := loaded.ApplyFlags(cmd.Flags()); err != nil {
		return err
	}
	if err := loaded.Validate(); err != nil {
		return err
	}
	cfg = loaded
	logger = internal.SetupLogger(cfg.LogLevel, cfg.LogFormat)
	return nil
}
