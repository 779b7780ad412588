// Package main initializes and starts the NoteLedger HTTPS server,
// setting up configuration, logging, database connections, repositories,
// services, handlers, and mutual TLS.
package main

import (
	"cmp"
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	nethttp "net/http"

	"github.com/atinyakov/NoteLedger/internal/certgen"
	"github.com/atinyakov/NoteLedger/internal/config"
	"github.com/atinyakov/NoteLedger/internal/db"
	"github.com/atinyakov/NoteLedger/internal/ledger"
	"github.com/atinyakov/NoteLedger/internal/logger"
	"github.com/atinyakov/NoteLedger/internal/middleware"
	"github.com/atinyakov/NoteLedger/internal/repository"
	"github.com/atinyakov/NoteLedger/internal/server/handler/http"
	"github.com/atinyakov/NoteLedger/internal/service"
	"go.uber.org/zap"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

func main() {
	// Parse command-line, config file and environment configuration.
	options, err := config.ParseServer(os.Args[0], os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	// Print build metadata (or "N/A" if unset).
	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	// Initialize structured logging.
	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init(options.LogLevel); err != nil {
		log.Log.Fatal("failed to init logger", zap.Error(err))
	}
	zapLogger := log.Log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize PostgreSQL connection.
	postgresDB, err := db.InitPostgres(options.DatabaseDSN)
	if err != nil {
		zapLogger.Fatal("cannot init database", zap.Error(err))
	}
	defer postgresDB.Close()

	db.StartSoftDeleteCleaner(ctx, postgresDB, options.PurgeInterval, options.PurgeRetention, zapLogger)

	// The CA signs both the server certificate and the client identities.
	caPath, caKeyPath := filepath.Join(options.CertDir, "ca.crt"), filepath.Join(options.CertDir, "ca.key")
	serverCertPath, serverKeyPath := filepath.Join(options.CertDir, "server.crt"), filepath.Join(options.CertDir, "server.key")
	caCert, caKey, err := certgen.EnsureCA(caPath, caKeyPath)
	if err != nil {
		zapLogger.Fatal("failed to load CA", zap.Error(err))
	}
	if err := certgen.EnsureServerCertificate(serverCertPath, serverKeyPath, options.Host, caCert, caKey); err != nil {
		zapLogger.Fatal("failed to issue server certificate", zap.Error(err))
	}

	ledgers, err := ledger.NewRegistry(options.Ledgers, nil, zapLogger)
	if err != nil {
		zapLogger.Fatal("invalid ledger registry", zap.Error(err))
	}

	// Initialize repositories.
	principalRepo := repository.NewPostgresPrincipalRepository(postgresDB)
	noteRepo := repository.NewPostgresNoteRepository(postgresDB)
	tokenRepo := repository.NewPostgresTokenRepository(postgresDB)

	// Initialize business-logic services.
	authService := service.NewAuthService(principalRepo, caCert, caKey)
	noteService := service.NewNoteService(noteRepo)
	tokenService := service.NewTokenService(tokenRepo, ledgers, zapLogger)

	metrics := middleware.NewMetrics()
	limiter := middleware.NewPrincipalLimiter(options.TransferRate, options.TransferBurst, metrics)

	authHandler := &http.AuthHandler{AuthService: authService}
	noteHandler := &http.NoteHandler{NoteService: noteService, Logger: zapLogger}
	tokenHandler := &http.TokenHandler{TokenService: tokenService, Metrics: metrics, Logger: zapLogger}

	router := http.NewRouter(authHandler, noteHandler, tokenHandler, metrics, limiter, zapLogger)

	// Load server TLS certificate and key.
	cert, err := tls.LoadX509KeyPair(serverCertPath, serverKeyPath)
	if err != nil {
		zapLogger.Fatal("failed to load server TLS cert/key", zap.Error(err))
	}

	caCertPool := x509.NewCertPool()
	caCertPool.AddCert(caCert)

	// Callers without a certificate are served as the anonymous principal.
	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientAuth:   tls.VerifyClientCertIfGiven,
		ClientCAs:    caCertPool,
		MinVersion:   tls.VersionTLS12,
	}

	server := &nethttp.Server{
		Addr:              options.Port,
		Handler:           router,
		TLSConfig:         tlsConfig,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			zapLogger.Error("shutdown failed", zap.Error(err))
		}
	}()

	zapLogger.Info("starting HTTPS server",
		zap.String("addr", options.Port),
		zap.Int("ledgers", len(options.Ledgers)),
	)
	if err := server.ListenAndServeTLS("", ""); err != nil && err != nethttp.ErrServerClosed {
		zapLogger.Fatal("failed to start HTTPS server", zap.Error(err))
	}
}
