package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"customs-ledger/internal/clients"
	"customs-ledger/internal/config"
	"customs-ledger/internal/matching"
	"customs-ledger/internal/metrics"
	"customs-ledger/internal/repository"
	"customs-ledger/internal/service"
	"customs-ledger/internal/transport/auth"
	"customs-ledger/internal/transport/rest"
	"customs-ledger/internal/transport/websocket"
	"customs-ledger/pkg/database/postgres"

	"github.com/go-chi/chi/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using system env or defaults")
	}

	// top-level context which we can cancel on shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cfg := config.Load()

	metrics.Init()

	db := mustInitPostgres(cfg.Postgres)
	defer postgres.Close(db)

	if cfg.Postgres.Migrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			log.Fatalf("postgres migrate error: %v", err)
		}
		log.Println("postgres schema applied")
	}

	redisClient := mustInitRedis(cfg.Redis)
	defer redisClient.Close()

	storageClient, err := clients.NewLocalStorage(cfg.Storage.Dir, cfg.Storage.PublicPrefix, cfg.Storage.ExternalURL)
	if err != nil {
		log.Fatalf("storage init error: %v", err)
	}
	fileStore := mustInitFileStore(ctx, cfg, storageClient)

	dict, err := matching.LoadDictionary(cfg.Enrichment.DictionaryPath)
	if err != nil {
		log.Fatalf("enrichment dictionary error: %v", err)
	}

	wsHub := websocket.NewHub()
	go wsHub.Run(ctx)
	wsClient := clients.NewWebSocketClient(wsHub)

	ledgerRepo := repository.NewLedgerRepository(db)
	procedureRepo := repository.NewProcedureRepository(db)
	tokenRepo := repository.NewPersonalAccessTokenRepository(db)

	idempotency := clients.NewIdempotencyStore(redisClient, time.Duration(cfg.Ledger.IdempotencyTTLMinutes)*time.Minute)

	ledgerSvc := service.NewLedgerService(ledgerRepo, procedureRepo, idempotency, cfg.Ledger.Currency)
	enrichmentSvc := service.NewEnrichmentService(procedureRepo, dict)
	reportSvc := service.NewReportService(ledgerRepo, procedureRepo, ledgerSvc.Currency())
	reportExportSvc := service.NewReportExportService(reportSvc, redisClient, fileStore, wsClient, cfg.ExportPrefix)
	exportSvc := service.NewExportService(redisClient)

	authMiddleware := auth.Middleware(tokenRepo, []byte(cfg.Auth.JWTSecret))

	handler := rest.NewHandler(ledgerSvc, enrichmentSvc, reportSvc, reportExportSvc, exportSvc, wsClient, rest.Options{
		MaxUploadBytes: int64(cfg.Enrichment.MaxUploadMB) << 20,
		ExportPrefix:   cfg.ExportPrefix,
	})
	router := handler.InitRouterWithAuth(authMiddleware)

	// protected websocket endpoint; browsers pass the token as ?token=
	router.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		userID, err := auth.GetUserID(r.Context())
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		log.Printf("[WS] connected: user_id=%d", userID)
		wsHub.HandleWebSocket(w, r, userID)
	})

	// public root router; the protected router is mounted underneath so
	// /files, /metrics and /health stay public
	root := chi.NewRouter()
	root.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	root.Handle("/metrics", promhttp.Handler())
	root.Get(storageClient.PublicPrefix+"/{file}", rest.FilesHandler(storageClient))
	root.Mount("/", router)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      withCORS(root),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Printf("HTTP server listening on :%s\n", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			srvErr <- err
			return
		}
		srvErr <- nil
	}()

	// generated report files are short-lived
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := storageClient.CleanupOlderThan(30 * time.Minute); err != nil {
					log.Printf("storage cleanup error: %v", err)
				}
			}
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-srvErr:
		if err != nil {
			log.Fatalf("HTTP server error: %v", err)
		}
	case sig := <-stop:
		log.Printf("Shutdown signal received: %v", sig)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server Shutdown error: %v", err)
		}

		// stops the websocket hub and the cleanup loop
		cancel()

		postgres.Close(db)
		redisClient.Close()

		log.Println("Shutdown complete")
	}
}

func mustInitPostgres(cfg config.PostgresConfig) *sql.DB {
	db, err := postgres.NewPostgresConnection(postgres.ConnectionInfo{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.User,
		DBName:   cfg.DBName,
		SSLMode:  cfg.SSLMode,
		Password: cfg.Password,
	})
	if err != nil {
		log.Fatalf("postgres init error: %v", err)
	}
	return db
}

func mustInitRedis(cfg config.RedisConfig) *clients.RedisClient {
	client, err := clients.NewRedisClient(clients.RedisConfig{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		MaxRetries:  cfg.MaxRetries,
		DialTimeout: time.Duration(cfg.DialTimeout) * time.Second,
		Timeout:     time.Duration(cfg.Timeout) * time.Second,
		Prefix:      cfg.Prefix,
	})
	if err != nil {
		log.Fatalf("redis init error: %v", err)
	}
	return client
}

func mustInitFileStore(ctx context.Context, cfg config.AppConfig, local *clients.StorageClient) clients.FileStore {
	switch cfg.Storage.Driver {
	case "s3":
		s3, err := clients.NewS3Client(ctx, clients.S3Config{
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			Bucket:          cfg.S3.Bucket,
			UseSSL:          cfg.S3.UseSSL,
			Region:          cfg.S3.Region,
			Prefix:          cfg.S3.Prefix,
		})
		if err != nil {
			log.Fatalf("s3 init error: %v", err)
		}
		log.Printf("report files stored in s3 bucket %q", cfg.S3.Bucket)
		return clients.NewS3FileStore(s3, exportURLTTL)
	case "", "local":
		return clients.NewLocalFileStore(local)
	default:
		log.Fatalf("unknown STORAGE_DRIVER %q (expected local or s3)", cfg.Storage.Driver)
		return nil
	}
}

// presigned links outlive the export status record
const exportURLTTL = 30 * time.Minute

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")

			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With, Idempotency-Key")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
