package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/modelrelay/relay/internal/gateway"
	"github.com/modelrelay/relay/internal/server"
	"github.com/modelrelay/relay/internal/service"
	"github.com/modelrelay/relay/internal/telemetry"
)

const banner = `
 ___ ___ _      _   __   __
| _ \ __| |    / \  \ \ / /
|   / _|| |__ / _ \  \ V /
|_|_\___|____/_/ \_\  |_|
`

func newServeCmd() *cobra.Command {
	var (
		port       int
		host       string
		background bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Relay gateway server",
		Long:  "Start the HTTP server that fronts all configured LLM providers behind one OpenAI-compatible endpoint.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if background {
				return runServeBackground()
			}
			return runServe(host, port)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "HTTP listen port (overrides config)")
	cmd.Flags().StringVar(&host, "host", "", "HTTP listen host (overrides config)")
	cmd.Flags().BoolVarP(&background, "background", "d", false, "Run the server in the background")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(host string, port int) error {
	fmt.Print(banner)
	fmt.Println()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if host != "" {
		cfg.Server.Host = host
	}
	if port != 0 {
		cfg.Server.Port = port
	}

	logger := newLogger(cfg)
	ctx := context.Background()

	// 1. Key and usage store
	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	logger.Info("store initialized", "driver", cfg.Store.Driver)

	// 2. Verification cache
	kc, err := openCache(ctx, cfg)
	if err != nil {
		st.Close()
		return fmt.Errorf("open cache: %w", err)
	}
	if closer, ok := kc.(io.Closer); ok {
		defer closer.Close()
	}
	logger.Info("cache initialized", "backend", cfg.Cache.Backend)

	// 3. Provider registry
	registry := buildRegistry(cfg, logger)

	// 4. Services
	keys := service.NewKeys(st, kc, cfg.Auth.KeyPrefix, logger)
	tokens := service.NewTokens(st, jwtSecret(cfg), "relay")
	meter := service.NewMeter(st, logger)
	gw := gateway.New(registry, meter, logger)

	// 5. Telemetry heartbeat (opt-out via RELAY_TELEMETRY=0)
	tracker := telemetry.New(ctx, st, func() telemetry.Properties {
		providers := registry.ListProviders()
		names := make([]string, len(providers))
		for i, p := range providers {
			names[i] = p.Name
		}
		apiKeys, _ := st.ListAPIKeys(ctx)
		return telemetry.Properties{
			Version:   appVersion,
			GoVersion: runtime.Version(),
			OS:        runtime.GOOS,
			Arch:      runtime.GOARCH,
			Providers: names,
			Models:    len(registry.ListModels()),
			APIKeys:   len(apiKeys),
		}
	})
	tracker.Start()
	defer tracker.Shutdown()

	// 6. PID file so status/stop can find us
	if err := writePID(os.Getpid()); err != nil {
		logger.Warn("failed to write PID file", "error", err)
	}
	defer removePID()

	srvCfg := server.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ShutdownTimeout: parseDuration(cfg.Server.ShutdownTimeout, 30*time.Second),
		CORSOrigins:     cfg.Server.CORS.Origins,
		RateLimit:       cfg.Server.RateLimit,
		APIKeyHeader:    cfg.Auth.APIKeyHeader,
		MaxBodySize:     parseSize(cfg.Server.MaxBodySize, 10*1024*1024),
	}

	srv := server.New(srvCfg, server.Deps{
		Store:    st,
		Keys:     keys,
		Tokens:   tokens,
		Meter:    meter,
		Registry: registry,
		Gateway:  gw,
	}, logger)

	fmt.Printf("→ Relay %s\n", versionString())
	fmt.Printf("→ Listening on http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("→ OpenAPI:  http://%s:%d/openapi.json\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("→ Health:   http://%s:%d/healthz\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("→ Providers: %d, models: %d\n", len(registry.ListProviders()), len(registry.ListModels()))
	fmt.Println()

	return srv.ListenAndServe()
}

// runServeBackground re-executes the current binary detached from the
// terminal, with output redirected to the log file.
func runServeBackground() error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}

	// Rebuild the argument list without the background flag.
	args := []string{"serve"}
	for _, a := range os.Args[2:] {
		if a == "--background" || a == "-d" {
			continue
		}
		args = append(args, a)
	}

	if err := os.MkdirAll(resolveDataDir(), 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	logFile, err := os.OpenFile(logFilePath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	cmd := exec.Command(exe, args...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	setSysProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start background server: %w", err)
	}

	fmt.Printf("Relay server started in the background (PID %d)\n", cmd.Process.Pid)
	fmt.Printf("  Logs: %s\n", logFilePath())
	fmt.Printf("  Stop: relay stop\n")
	return nil
}
