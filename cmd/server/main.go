package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"ulift/internal/api"
	"ulift/internal/certs"
	"ulift/internal/client"
	"ulift/internal/config"
	"ulift/internal/crypto"
	"ulift/internal/files"
	"ulift/internal/session"
	"ulift/internal/utils"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml or config.json (default $ULIFT_CONFIG, then ./config.yaml)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	var cfg *config.Config
	var err error
	if configPath == "" {
		cfg, err = config.LoadConfig()
	} else {
		cfg, err = config.Load(configPath)
	}
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := utils.NewLogger(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	master, err := files.ReadMasterKey(cfg.MasterKeyPath)
	if errors.Is(err, files.ErrNoMasterKey) {
		logger.Warn("no master key, using an ephemeral one; sessions end on restart",
			zap.String("path", cfg.MasterKeyPath))
		master = crypto.GenerateMasterKey()
	} else if err != nil {
		return err
	}
	keys, err := crypto.DeriveCookieKeys(master)
	if err != nil {
		return err
	}

	srv := api.NewServer(api.Deps{
		Config: cfg,
		Users: client.NewUsersClient(client.UsersClientConfig{
			BaseURL: cfg.API.BaseURL,
			Timeout: cfg.GetAPITimeout(),
			Logger:  logger.Named("users"),
		}),
		Store:  session.NewCookieStore(keys, cfg.TLS.CertFile != "", int(cfg.GetSessionIdleTTL()/time.Second)),
		Logger: logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go srv.Run(ctx, time.Minute)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.NewRouter(srv),
		ReadHeaderTimeout: 10 * time.Second,
	}
	cm := certs.NewCertManager(cfg.TLS.CertFile, cfg.TLS.KeyFile)
	if cm.Enabled() {
		tlsConfig, err := cm.TLSConfig()
		if err != nil {
			return err
		}
		httpServer.TLSConfig = tlsConfig
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server running",
			zap.String("addr", cfg.ListenAddr),
			zap.Bool("tls", cm.Enabled()),
			zap.String("users_api", cfg.API.BaseURL))
		if cm.Enabled() {
			errCh <- httpServer.ListenAndServeTLS("", "")
			return
		}
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if err := srv.Close(); err != nil {
		logger.Warn("closing chat connections", zap.Error(err))
	}
	return nil
}
