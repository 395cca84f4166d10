package cmd

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aweris/modcache"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "modcache",
	Short: "Compiled module cache CLI",
	Long:  "CLI for inspecting, verifying and populating a compiled module cache directory.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger = newLogger(cmd.ErrOrStderr(), viper.GetBool("verbose"))
	},
	SilenceUsage: true,
}

var logger = slog.New(slog.NewTextHandler(io.Discard, nil))

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ~/.config/modcache/config.yaml)")
	rootCmd.PersistentFlags().String("cache-dir", "", "cache directory (default: ~/.cache/modcache)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	viper.BindPFlag("cache_dir", rootCmd.PersistentFlags().Lookup("cache-dir"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func initConfig() {
	if cfg := rootCmd.PersistentFlags().Lookup("config").Value.String(); cfg != "" {
		viper.SetConfigFile(cfg)
	} else {
		viper.AddConfigPath(configDir())
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("MODCACHE")
	viper.AutomaticEnv()
	viper.SetDefault("cache_dir", defaultCacheDir())
	viper.SetDefault("default_backend", string(modcache.DefaultBackend))
	viper.SetDefault("compression_level", modcache.CompressionNone)

	viper.ReadInConfig()
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "modcache")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "modcache")
	}
	return ".modcache"
}

func defaultCacheDir() string {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "modcache")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "modcache")
	}
	return ".modcache"
}

func getCacheDir() string {
	return viper.GetString("cache_dir")
}

// openCache opens the configured cache with payload loaders for the built-in
// backends and any extra ones named on the command line.
func openCache(extra ...modcache.Backend) (*modcache.FileSystemCache, error) {
	defaultBackend := modcache.Backend(viper.GetString("default_backend"))

	registry := modcache.NewRegistry()
	backends := append([]modcache.Backend{
		modcache.BackendFastJIT,
		modcache.BackendSlowAOT,
		modcache.BackendOptimizing,
		defaultBackend,
	}, extra...)
	for _, b := range backends {
		if err := registry.Register(b, modcache.PayloadLoader(b)); err != nil {
			return nil, err
		}
	}

	dir := getCacheDir()
	logger.Debug("opening cache", "dir", dir, "default_backend", defaultBackend)

	return modcache.New(dir,
		modcache.WithRegistry(registry),
		modcache.WithDefaultBackend(defaultBackend),
		modcache.WithCompression(viper.GetInt("compression_level")),
	)
}
