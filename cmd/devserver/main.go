package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/ziyatovanazokat5-cmd/social-campus-stream/internal/config"
	"github.com/ziyatovanazokat5-cmd/social-campus-stream/internal/devserver"
)

func setupLogger() *log.Logger {
	return log.New(os.Stdout, "[DEVSERVER] ", log.LstdFlags|log.Lshortfile)
}

func main() {
	isLoadTest := flag.Bool("loadtest", false, "Run server with load testing configuration")
	admins := flag.String("admins", "", "Comma-separated usernames that get the admin role on registration")
	origins := flag.String("origins", "http://localhost:3000", "Comma-separated browser origins allowed for CORS and the socket")
	flag.Parse()

	logger := setupLogger()
	logger.Println("Starting devserver...")

	cfg := config.Load()

	if *isLoadTest {
		cwd, err := os.Getwd()
		if err != nil {
			panic(err)
		}
		loadTestDir := filepath.Join(cwd, "loadtest")
		if err := os.MkdirAll(loadTestDir, 0755); err != nil {
			logger.Fatalf("Failed to create loadtest directory: %v", err)
		}

		loadTestPath := filepath.Join(loadTestDir, "loadtest.db")
		cfg.UpdateDevDatabasePath(loadTestPath)
		logger.Printf("Using load testing database: %s", loadTestPath)
	}

	logger.Printf("Listening on %s with database %s", cfg.DevServerAddress, cfg.DevDatabaseURL)

	store, err := devserver.OpenStore(cfg.CleanDevDatabasePath())
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer store.Close()
	logger.Println("Database connection established")

	server := devserver.NewServer(store, devserver.Options{
		Secret:         cfg.JWTSecret,
		Admins:         splitList(*admins),
		AllowedOrigins: splitList(*origins),
		Logger:         logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go server.Run(ctx)
	logger.Println("WebSocket hub initialized")

	httpServer := &http.Server{
		Addr:    cfg.DevServerAddress,
		Handler: server.Handler(func(next http.HandlerFunc) http.HandlerFunc { return logRequest(logger, next) }),
	}

	go func() {
		logger.Printf("Server starting on %s", cfg.DevServerAddress)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Printf("Received signal: %v", sig)

	logger.Println("Server shutting down...")
	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("Shutdown: %v", err)
	}
	cancel()
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func logRequest(logger *log.Logger, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		logger.Printf("Started %s %s [%s]", r.Method, r.URL.Path, requestID)

		lrw := newLoggingResponseWriter(w)

		next.ServeHTTP(lrw, r)

		logger.Printf("Completed %s %s %d %s in %v [%s]",
			r.Method, r.URL.Path, lrw.statusCode,
			http.StatusText(lrw.statusCode),
			time.Since(start), requestID)
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newLoggingResponseWriter(w http.ResponseWriter) *loggingResponseWriter {
	return &loggingResponseWriter{w, http.StatusOK}
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}
