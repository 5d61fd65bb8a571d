// Package main provides the roomcast server executable with HTTP API and background outbox worker.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coregx/roomcast"
	"github.com/coregx/roomcast/adapters/hubws"
	"github.com/coregx/roomcast/adapters/relica"
	"github.com/coregx/roomcast/cmd/roomcast-server/internal/api"
	"github.com/coregx/roomcast/cmd/roomcast-server/internal/config"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// SimpleLogger implements roomcast.Logger for standard logging.
type SimpleLogger struct{}

func (l *SimpleLogger) Debugf(format string, args ...interface{}) {
	log.Printf("[DEBUG] "+format, args...)
}
func (l *SimpleLogger) Infof(format string, args ...interface{}) {
	log.Printf("[INFO] "+format, args...)
}
func (l *SimpleLogger) Warnf(format string, args ...interface{}) {
	log.Printf("[WARN] "+format, args...)
}
func (l *SimpleLogger) Errorf(format string, args ...interface{}) {
	log.Printf("[ERROR] "+format, args...)
}
func (l *SimpleLogger) Info(message string) {
	log.Printf("[INFO] %s", message)
}

func main() {
	log.Println("🚀 Starting Roomcast Server v0.1.0...")

	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("📝 Configuration loaded:")
	log.Printf("   Server: %s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("   Database: %s (%s:%d)", cfg.Database.Driver, cfg.Database.Host, cfg.Database.Port)
	log.Printf("   Hub: %s", cfg.Hub.BaseURL)
	log.Printf("   Presence: heartbeat=%v, grace=%v", cfg.Presence.HeartbeatInterval, cfg.Presence.GraceWindow)
	log.Printf("   Worker batch size: %d", cfg.Fanout.BatchSize)
	log.Printf("   Worker interval: %ds", cfg.Fanout.WorkerInterval)

	// Connect to database
	db, err := sql.Open(cfg.Database.Driver, cfg.Database.GetDSN())
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			log.Printf("Failed to close database: %v", closeErr)
		}
	}()

	// Test connection
	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	log.Println("✅ Database connection established")

	// Create logger
	logger := &SimpleLogger{}

	// Create repositories using Relica adapters
	var repos *relica.Repositories
	if cfg.Database.Prefix != "" {
		repos = relica.NewRepositoriesWithPrefix(db, cfg.Database.Driver, cfg.Database.Prefix)
	} else {
		repos = relica.NewRepositories(db, cfg.Database.Driver)
	}
	log.Println("✅ Repositories initialized (Relica adapters)")

	// Create notification service
	var notificationService roomcast.NotificationService
	if cfg.Fanout.EnableNotifications {
		notificationService = roomcast.NewLoggingNotificationService(logger)
	} else {
		notificationService = &roomcast.NoOpNotificationService{}
	}

	// Create hub transport
	hub, err := hubws.NewHub(cfg.Hub.BaseURL,
		hubws.WithHubLogger(logger),
		hubws.WithAPIKey(cfg.Hub.APIKey),
	)
	if err != nil {
		log.Fatalf("Failed to create hub: %v", err)
	}
	log.Println("✅ Hub transport created")

	// Create TopicCache (channel set resolution with TTL memoization)
	topicCache, err := roomcast.NewTopicCache(
		roomcast.WithTopicCacheRepositories(repos.Membership, repos.Room),
		roomcast.WithTopicCacheLogger(logger),
	)
	if err != nil {
		log.Fatalf("Failed to create topic cache: %v", err)
	}
	log.Println("✅ TopicCache created")

	// Create TopicAuthorizer (capability token issuance)
	authorizer, err := roomcast.NewTopicAuthorizer(
		roomcast.WithChannelResolver(topicCache),
		roomcast.WithSigningKey([]byte(cfg.Auth.TokenKey)),
		roomcast.WithTokenTTL(cfg.Auth.TokenTTL),
		roomcast.WithAuthorizerLogger(logger),
	)
	if err != nil {
		log.Fatalf("Failed to create authorizer: %v", err)
	}
	log.Println("✅ TopicAuthorizer created")

	// Create FanoutPublisher
	fanout, err := roomcast.NewFanoutPublisher(
		roomcast.WithFanoutRepositories(repos.Room, repos.Membership, repos.Outbox),
		roomcast.WithFanoutHub(hub),
		roomcast.WithFanoutLogger(logger),
	)
	if err != nil {
		log.Fatalf("Failed to create fanout publisher: %v", err)
	}
	log.Println("✅ FanoutPublisher created")

	// Create MembershipManager
	memberships, err := roomcast.NewMembershipManager(
		roomcast.WithMembershipRepositories(repos.Membership, repos.Room),
		roomcast.WithMembershipInvalidator(topicCache),
		roomcast.WithMembershipLogger(logger),
		roomcast.WithMembershipNotifications(notificationService),
	)
	if err != nil {
		log.Fatalf("Failed to create membership manager: %v", err)
	}
	log.Println("✅ MembershipManager created")

	// Create UnreadTracker
	unreadTracker, err := roomcast.NewUnreadTracker(
		roomcast.WithUnreadRepositories(repos.ReadCursor, repos.Message),
		roomcast.WithUnreadLogger(logger),
		roomcast.WithPresenceTiming(cfg.Presence.HeartbeatInterval, cfg.Presence.GraceWindow),
	)
	if err != nil {
		log.Fatalf("Failed to create unread tracker: %v", err)
	}
	log.Println("✅ UnreadTracker created")

	// Create OutboxWorker
	worker, err := roomcast.NewOutboxWorker(
		roomcast.WithWorkerRepositories(repos.Outbox, repos.Message, repos.DeliveryFailure),
		roomcast.WithHub(hub),
		roomcast.WithLogger(logger),
		roomcast.WithBatchSize(cfg.Fanout.BatchSize),
		roomcast.WithNotifications(notificationService),
	)
	if err != nil {
		log.Fatalf("Failed to create worker: %v", err)
	}
	log.Println("✅ OutboxWorker created")

	// Start worker in background
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		log.Printf("🔄 Starting outbox worker (interval: %ds)...", cfg.Fanout.WorkerInterval)
		worker.Run(ctx, time.Duration(cfg.Fanout.WorkerInterval)*time.Second)
	}()

	// Create API handler
	handler := api.NewHandler(authorizer, fanout, memberships, unreadTracker, logger)

	// Setup HTTP routes
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/tokens", handler.HandleIssueToken)
	mux.HandleFunc("/api/v1/heartbeats", handler.HandleHeartbeat)
	mux.HandleFunc("/api/v1/read-acks", handler.HandleMarkRead)
	mux.HandleFunc("/api/v1/unread", handler.HandleUnread)
	mux.HandleFunc("/api/v1/messages/committed", handler.HandleMessageCommitted)
	mux.HandleFunc("/api/v1/memberships/changed", handler.HandleMembershipChanged)
	mux.HandleFunc("/api/v1/health", handler.HandleHealth)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      loggingMiddleware(mux, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	go func() {
		log.Printf("🌐 HTTP server listening on %s", addr)
		log.Println("📡 API Endpoints:")
		log.Println("   POST /api/v1/tokens")
		log.Println("   POST /api/v1/heartbeats")
		log.Println("   POST /api/v1/read-acks")
		log.Println("   GET  /api/v1/unread")
		log.Println("   POST /api/v1/messages/committed")
		log.Println("   POST /api/v1/memberships/changed")
		log.Println("   GET  /api/v1/health")
		log.Println()
		log.Println("✅ Roomcast Server is ready!")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	cancel() // Stop worker
	log.Println("✅ Server stopped gracefully")
}

// loggingMiddleware logs HTTP requests.
func loggingMiddleware(next http.Handler, logger roomcast.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		logger.Infof("%s %s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
		logger.Debugf("%s %s - %v", r.Method, r.URL.Path, time.Since(start))
	})
}
