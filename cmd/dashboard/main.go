package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"imagedash/internal/auth"
	"imagedash/internal/dashboard"
	"imagedash/internal/events"
	"imagedash/internal/http/handlers"
	httpapi "imagedash/internal/http/httpapi"
	"imagedash/internal/infra"
	"imagedash/internal/infra/geoip"
	"imagedash/internal/jobservice"
	"imagedash/internal/storage"
	"imagedash/internal/tracker"
	"imagedash/internal/transport"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	session := auth.NewSession()

	client, err := jobservice.NewClient(jobservice.Options{
		BaseURL:        cfg.JobServiceURL,
		Tokens:         session,
		Logger:         &logger,
		RequestTimeout: cfg.RequestTimeout,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid job service client config")
	}
	dialer, err := transport.NewDialer(transport.DialerOptions{BaseURL: cfg.JobServiceURL, Logger: &logger})
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid status channel config")
	}
	blobs, err := storage.NewBlobStore(cfg.BlobDir, "/blobs")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to prepare blob directory")
	}
	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	}
	defer resolver.Close()

	bus := events.NewBus(&logger)
	dash := dashboard.New(dashboard.Deps{
		Jobs:   client,
		Opener: tracker.DialerOpener(dialer),
		Tokens: session,
		Blobs:  blobs,
		Bus:    bus,
		Logger: &logger,
	}, session)
	defer dash.Close()

	if cfg.AccessToken != "" {
		snap := session.SetToken(cfg.AccessToken)
		logger.Info().Str("user", snap.User).Msg("signed in from ACCESS_TOKEN")
	}

	var verifier handlers.TokenVerifier
	switch {
	case cfg.OIDCIssuer != "":
		verifier = auth.NewOIDCVerifier(ctx, cfg.OIDCIssuer, cfg.OIDCAudience, nil)
	case cfg.JWTSecret != "":
		verifier = auth.HMACVerifier{Secret: cfg.JWTSecret}
	}

	app := handlers.NewApp(handlers.Options{
		Dashboard:      dash,
		Session:        session,
		Bus:            bus,
		Blobs:          blobs,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Verifier:       verifier,
		Logger:         &logger,
	})
	router := httpapi.NewRouter(app, httpapi.RouterOptions{
		Logger:        logger,
		CORSOrigins:   cfg.CORSOrigins,
		DefaultLocale: cfg.DefaultLocale,
		CountryLookup: resolver.Lookup(),
		GenerateRate:  cfg.GenerateRate,
	})
	g, gctx := errgroup.WithContext(ctx)
	server := infra.NewHTTPServer(gctx, cfg, router)

	g.Go(func() error {
		logger.Info().Msgf("dashboard listening on %s", server.Addr())
		return server.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if cfg.AccessTokenFile != "" {
		provider := auth.NewFileProvider(cfg.AccessTokenFile, cfg.TokenPoll, session, &logger)
		g.Go(func() error { return provider.Run(gctx) })
	}
	if cfg.RefreshInterval > 0 {
		g.Go(func() error { return dash.RunRefresher(gctx, cfg.RefreshInterval) })
	}

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("dashboard stopped with error")
		return
	}
	logger.Info().Msg("dashboard stopped")
}
