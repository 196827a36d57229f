package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/keywarden/keywarden/internal/config"
	"github.com/keywarden/keywarden/internal/server"
	"github.com/keywarden/keywarden/internal/service"
)

func newServeCmd() *cobra.Command {
	var (
		port int
		host string
		dev  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Keywarden API server",
		Long:  "Start the HTTP server that validates API keys and exposes the key administration API.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(host, port, dev)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "HTTP listen port")
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable development mode (verbose logging)")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(host string, port int, dev bool) error {
	yamlCfg, err := config.LoadYAML(configFilePath())
	if err != nil {
		return err
	}

	logger := newLogger(yamlCfg.Logging, dev)

	store, err := openKeyStore()
	if err != nil {
		return fmt.Errorf("init key store: %w", err)
	}
	defer store.Close()
	logger.Info("key store initialized", "driver", store.Driver())

	keys := service.NewKeyService(store, yamlCfg.Auth.CacheTTLDuration(), logger)

	if infos := keys.ListKeys(context.Background(), false); len(infos) == 0 {
		logger.Warn("no active API keys - run: keywarden key create <name> --role admin")
	}

	srvCfg := server.Config{
		Host:            host,
		Port:            port,
		ShutdownTimeout: yamlCfg.Server.ShutdownTimeoutDuration(),
		CORSOrigins:     yamlCfg.Server.CORS.Origins,
		RateLimitPerMin: yamlCfg.Server.RateLimitPerMin,
	}
	if viper.IsSet("server.port") {
		srvCfg.Port = viper.GetInt("server.port")
	}
	if viper.IsSet("server.host") {
		srvCfg.Host = viper.GetString("server.host")
	}

	srv := server.New(srvCfg, store, keys, logger)
	return srv.ListenAndServe()
}

// configFilePath returns the explicit --config path, or the default location
// next to the working directory.
func configFilePath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return "keywarden.yaml"
}

func newLogger(cfg config.LoggingConfig, dev bool) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if dev {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
