package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/uniity/sedap-express/log"
	"github.com/uniity/sedap-express/sedap-express-app/config"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:          "sedap-express",
		Short:        "SEDAP-Express node",
		Long:         banner + "\n\nExchanges SEDAP-Express tactical records with other units over TCP or HTTP.",
		RunE:         runApp,
		SilenceUsage: true,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run:   runVersion,
	}
)

const banner = `
 ___ ___ ___   _   ___     _____  _____ ___ ___ ___ ___
/ __| __|   \ /_\ | _ \___| __\ \/ / _ \ _ \ __/ __/ __|
\__ \ _|| |) / _ \|  _/___| _| >  <|  _/   / _|\__ \__ \
|___/___|___/_/ \_\_|     |___/_/\_\_| |_|_\___|___/___/`

func main() {
	if err := execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func execute() error {
	initCommands()
	return rootCmd.Execute()
}

func initCommands() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(newCompressCmd(), newDecompressCmd(), newDecodeCmd(), newConfigCmd())

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (defaults and environment only when empty)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-pretty", false, "enable pretty logging")

	// Node flags
	rootCmd.PersistentFlags().String("mode", "", "node role: tcp-server, tcp-client, rest-server, rest-client")
	rootCmd.PersistentFlags().String("sender-id", "", "hex sender id")
	rootCmd.PersistentFlags().String("codec", "", "wire codec: text, compressed, encrypted")

	// Transport flags
	rootCmd.PersistentFlags().String("address", "", "listen address, peer address or base URL depending on mode")
	rootCmd.PersistentFlags().Duration("reconnect-delay", 0, "delay between reconnect attempts")
	rootCmd.PersistentFlags().Int("max-connections", 0, "maximum concurrent TCP peers")
	rootCmd.PersistentFlags().String("rest-listen-addr", "", "REST server listen address")

	// Feature flags
	rootCmd.PersistentFlags().Bool("heartbeat", false, "emit heartbeats")
	rootCmd.PersistentFlags().String("journal", "", "enable the traffic journal at this path")

	// Metrics flags
	rootCmd.PersistentFlags().Bool("metrics", false, "enable metrics")
	rootCmd.PersistentFlags().String("api-listen-addr", "", "management API listen address")
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}
	return cfg, nil
}

func runApp(cmd *cobra.Command, _ []string) error {
	fmt.Println(banner)
	fmt.Println()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log := log.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("version", Version).
		Str("build_time", BuildTime).
		Str("git_commit", GitCommit).
		Str("go_version", runtime.Version()).
		Msg("Build information")

	log.Info().
		Str("config_file", cfgFile).
		Str("mode", cfg.Mode).
		Str("address", cfg.Transport.Address).
		Str("codec", cfg.Codec).
		Bool("metrics_enabled", cfg.Metrics.Enabled).
		Str("log_level", cfg.Log.Level).
		Msg("Configuration loaded")

	application, err := NewApp(cfg, log.Logger)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	return application.Run(cmd.Context())
}

func runVersion(*cobra.Command, []string) {
	fmt.Println(banner)
	fmt.Println()
	fmt.Printf("SEDAP-Express\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Time: %s\n", BuildTime)
	fmt.Printf("Git Commit: %s\n", GitCommit)
	fmt.Printf("Go Version: %s\n", runtime.Version())
	fmt.Printf("OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()

	if cmd.Flag("log-level").Changed {
		cfg.Log.Level, _ = flags.GetString("log-level")
	}
	if cmd.Flag("log-pretty").Changed {
		cfg.Log.Pretty, _ = flags.GetBool("log-pretty")
	}

	if cmd.Flag("mode").Changed {
		cfg.Mode, _ = flags.GetString("mode")
	}
	if cmd.Flag("sender-id").Changed {
		cfg.SenderID, _ = flags.GetString("sender-id")
	}
	if cmd.Flag("codec").Changed {
		cfg.Codec, _ = flags.GetString("codec")
	}

	if cmd.Flag("address").Changed {
		cfg.Transport.Address, _ = flags.GetString("address")
	}
	if cmd.Flag("reconnect-delay").Changed {
		cfg.Transport.ReconnectDelay, _ = flags.GetDuration("reconnect-delay")
	}
	if cmd.Flag("max-connections").Changed {
		cfg.Transport.MaxConnections, _ = flags.GetInt("max-connections")
	}
	if cmd.Flag("rest-listen-addr").Changed {
		cfg.REST.ListenAddr, _ = flags.GetString("rest-listen-addr")
	}

	if cmd.Flag("heartbeat").Changed {
		cfg.Heartbeat.Enabled, _ = flags.GetBool("heartbeat")
	}
	if cmd.Flag("journal").Changed {
		cfg.Journal.Path, _ = flags.GetString("journal")
		cfg.Journal.Enabled = cfg.Journal.Path != ""
	}

	if cmd.Flag("metrics").Changed {
		cfg.Metrics.Enabled, _ = flags.GetBool("metrics")
	}
	if cmd.Flag("api-listen-addr").Changed {
		cfg.API.ListenAddr, _ = flags.GetString("api-listen-addr")
	}
}
