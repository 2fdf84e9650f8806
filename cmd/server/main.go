package main

import (
	"context"
	"errors"
	"html/template"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"spacomments/internal/config"
	"spacomments/internal/db"
	"spacomments/internal/handlers"
	"spacomments/internal/logging"
	"spacomments/internal/middleware"
	"spacomments/internal/router"
	"spacomments/internal/services"
	"spacomments/internal/storage"
	"spacomments/internal/utils"
	"spacomments/web"
)

const listCacheSize = 256

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Info("No .env file found, reading configuration from the environment")
	}

	// Defaults, config.toml, then environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	logger := logging.Setup(cfg.LogLevel, os.Stdout)
	gin.SetMode(cfg.GinMode)

	// Initialize Database
	gdb, err := db.Open(cfg.Database)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close(gdb)

	// Attachments: local disk or S3
	ctx := context.Background()
	store, err := newStorage(ctx, cfg.Storage)
	if err != nil {
		log.Fatalf("unable to set up attachment storage: %v", err)
	}

	// comment.created events, only with brokers configured
	var events services.EventPublisher = services.NoopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		kp := services.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer kp.Close()
		events = kp
		log.Infof("[events] publishing to kafka topic %q", cfg.Kafka.Topic)
	}

	cache, err := utils.NewCache[*services.CommentPage](listCacheSize)
	if err != nil {
		log.Fatal(err)
	}

	// Services
	captcha := services.NewCaptchaService()
	comments := services.NewCommentService(services.CommentServiceDeps{
		Store:    db.NewCommentStore(gdb),
		Storage:  store,
		Captcha:  captcha,
		Events:   events,
		Log:      logger,
		Cache:    cache,
		CacheTTL: cfg.ListCacheTTL,
	})

	// Load Templates, from TEMPLATES_DIR when set
	var templatesFS fs.FS = web.Templates()
	if cfg.TemplatesDir != "" {
		templatesFS = os.DirFS(cfg.TemplatesDir)
	}
	templates, err := web.LoadTemplates(templatesFS, template.FuncMap{"mediaURL": store.URL})
	if err != nil {
		log.Fatalf("unable to load templates: %v", err)
	}

	// Setup Sessions
	sessionStore, err := middleware.NewSessionStore(cfg.Session)
	if err != nil {
		log.Fatal(err)
	}

	// Router and handlers
	pages := handlers.NewPages(templates)
	opts := router.Options{
		SessionName:  cfg.Session.Name,
		SessionStore: sessionStore,
		Templates:    templates,
		Static:       web.Static(),
		MediaURL:     cfg.Storage.MediaURL,
		Log:          logger,
	}
	if cfg.Storage.Backend == "local" {
		opts.MediaRoot = cfg.Storage.MediaRoot
	}
	r := router.New(opts, pages, handlers.NewCommentHandler(comments, captcha, pages, logger))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof("Comments server starting on :%s", cfg.Port)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server error: %v", err)
		}
		log.Info("Stopped serving new connections")
	}()

	<-sigChan

	shutdownCtx, shutdownRelease := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownRelease()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("HTTP shutdown error: %v", err)
	}
	log.Info("Server stopped")
}

func newStorage(ctx context.Context, cfg config.Storage) (storage.Storage, error) {
	if cfg.Backend == "s3" {
		s, err := storage.NewS3Storage(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		log.Infof("[storage] attachments go to s3 bucket %q", cfg.S3.Bucket)
		return s, nil
	}
	log.Infof("[storage] attachments go to %s", cfg.MediaRoot)
	return storage.NewLocalStorage(cfg.MediaRoot, cfg.MediaURL), nil
}
