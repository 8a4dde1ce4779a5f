package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"notespad/internal/api"
	"notespad/internal/metrics"
	"notespad/internal/models"
	"notespad/internal/repositories"
	"notespad/internal/routers"
	"notespad/internal/session"
	"notespad/internal/status"
)

var (
	listenAndServe    = http.ListenAndServe
	exitFunc          = defaultExit
	exit              = os.Exit
	defaultPort       = "8080"
	defaultSQLitePath = "notespad.db"
)

func defaultExit(err error) {
	log.Println(err)
	exit(1)
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("ok"))
}

func run() error {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	var dialector gorm.Dialector
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(defaultSQLitePath)
	}
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(&models.Note{}); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	notes := &repositories.NoteRepository{DB: db}
	if os.Getenv("SKIP_SEED") == "" {
		if err := notes.SeedInitialData(logger); err != nil {
			logger.Warn("seeding failed", zap.Error(err))
		}
	}

	var mirror *status.PresenceMirror
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
		mirror = status.NewPresenceMirror(rdb, logger)
	}

	delay := session.DefaultDebounce
	if ms := os.Getenv("DEBOUNCE_MS"); ms != "" {
		if v, err := strconv.Atoi(ms); err == nil && v > 0 {
			delay = time.Duration(v) * time.Millisecond
		}
	}

	registry := session.NewRegistry(logger, mirror)
	saver := session.NewSaver(notes, registry, logger, delay)
	service := session.NewService(registry, saver, logger)
	handlers := api.NewHandlers(logger, notes, registry, service, mirror)

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
		middleware.Timeout(60*time.Second),
	)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))
	r.Use(metrics.Middleware)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", healthHandler)
	r.Mount("/", routers.New(handlers))

	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}
	addr := ":" + port
	log.Printf("notespad listening on %s", addr)
	return listenAndServe(addr, r)
}

func main() {
	if err := run(); err != nil {
		exitFunc(err)
	}
}
