package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/meishild/mzbtir/internal/ble"
	"github.com/meishild/mzbtir/internal/config"
)

// Version information set at build time.
var version = "dev"

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:     "mzbtir",
		Short:   "Meizu btir IR remote and thermometer over BLE",
		Version: version,
		Long: `mzbtir reads temperature, humidity, and battery from Meizu btir remotes,
sends IR codes through them, and learns new codes.

Devices are configured by name in ~/.config/mzbtir/config.yaml; any command
taking a device also accepts a raw BLE address.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"path to config file (default: ~/.config/mzbtir/config.yaml)")

	app := &app{configPath: &configPath}
	rootCmd.AddCommand(
		scanCmd(app),
		readCmd(app),
		sendCmd(app),
		receiveCmd(app),
		serveCmd(app),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// app carries state shared by every subcommand.
type app struct {
	configPath *string
	cfg        *config.Config
	adapter    ble.Adapter
}

// setup loads and validates config, configures logging, and enables the
// BLE adapter.
func (a *app) setup() error {
	cfg, err := loadConfig(*a.configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	a.cfg = cfg
	setupLogging(cfg.LogLevel)

	adapter := ble.NewTinyGoAdapter()
	if err := adapter.Enable(); err != nil {
		return fmt.Errorf("enable BLE adapter: %w", err)
	}
	a.adapter = adapter
	return nil
}

// clientOptions builds ble options from config.
func (a *app) clientOptions() ble.ClientOptions {
	opts := ble.DefaultClientOptions()
	opts.MinUpdateInterval = a.cfg.Update.MinInterval
	opts.ConnectTimeout = a.cfg.ConnectTimeout
	opts.ReceiveTimeout = a.cfg.Receive.Timeout
	return opts
}

// client returns a client for a configured device name or a raw address.
func (a *app) client(device string) (*ble.Client, error) {
	return ble.NewClient(a.adapter, resolveAddress(a.cfg, device), a.clientOptions())
}

// resolveAddress maps a configured device name to its address. Anything
// else is taken as an address.
func resolveAddress(cfg *config.Config, device string) string {
	if addr, ok := cfg.Devices[device]; ok {
		return addr
	}
	return device
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		slog.Debug("config loaded", "path", defaultPath)
		return cfg, nil
	}

	written, err := config.WriteDefault()
	if err != nil {
		slog.Warn("could not write default config", "error", err)
	} else if written != "" {
		fmt.Fprintf(os.Stderr, "Wrote default config to %s; add your devices there.\n", written)
	}
	return config.Default(), nil
}

func setupLogging(level string) {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(level),
	})))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// timeoutFlag registers a seconds-valued flag and reports whether it was set.
func timeoutFlag(fs *pflag.FlagSet, p *int, name, usage string) func() bool {
	fs.IntVarP(p, name, "t", 0, usage)
	return func() bool { return fs.Changed(name) }
}
