package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MentalFish/huddle/internal/auth"
	"github.com/MentalFish/huddle/internal/config"
	"github.com/MentalFish/huddle/internal/gateway"
	"github.com/MentalFish/huddle/internal/logging"
	"github.com/MentalFish/huddle/internal/registry"
	"github.com/MentalFish/huddle/internal/server"
)

func main() {
	logging.Init(slog.LevelInfo)
	log := slog.Default()

	var opts config.ServerOptions
	flag.StringVar(&opts.ListenAddr, "listen", "", "listen address (default :8080)")
	flag.StringVar(&opts.AllowedOrigins, "origins", "", "comma-separated allowed origins")
	flag.StringVar(&opts.JWTSecret, "jwt-secret", "", "secret verifying session cookies")
	flag.StringVar(&opts.STUNServer, "stun", "", "STUN server advertised to clients")
	flag.StringVar(&opts.TURNServer, "turn", "", "TURN server advertised to clients")
	flag.Parse()

	cfg, err := config.LoadServer(opts)
	if err != nil {
		log.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	var authn auth.Authenticator = auth.Anonymous{}
	if cfg.JWTSecret != "" {
		authn = auth.NewCookieAuthenticator(cfg.JWTSecret, config.SessionCookie)
	} else {
		log.Warn("no JWT secret configured, all connections are anonymous")
	}

	reg := registry.New()
	hub := gateway.NewHub(reg, log, cfg.AvatarRate)
	go hub.Run()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.New(cfg, hub, authn, log),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("signaling server listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown incomplete", "err", err)
	}
	hub.Stop()
}
