package server

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"CallBox/cache"
	"CallBox/config"
	"CallBox/core/audio"
	"CallBox/core/contacts"
	"CallBox/core/permission"
	"CallBox/core/recording"
	"CallBox/core/retention"
	"CallBox/db"
	"CallBox/logger"
	"CallBox/repository"
	"CallBox/storage"

	"github.com/gorilla/mux"
)

// NewProber ffprobe 优先，失败时按码率估算
func NewProber(cfg *config.Config) audio.DurationProber {
	estimate := audio.SizeEstimator{BitrateKbps: cfg.EstimateBitrate}
	if !cfg.ProbeDurations {
		return estimate
	}
	return audio.Fallback{audio.NewFFprobe(cfg.FFmpegPath), estimate}
}

// NewScanner builds the scanner for the configured storage root.
func NewScanner(cfg *config.Config) *recording.Scanner {
	return recording.NewScanner(cfg.StorageRoot, cfg.ExtraRecordingDirs, cfg.Location(), NewProber(cfg))
}

type archiveReader struct {
	archive *storage.Archive
}

func (a archiveReader) Open(ctx context.Context, key string) (io.ReadSeekCloser, time.Time, error) {
	obj, info, err := a.archive.Open(ctx, key)
	if err != nil {
		return nil, time.Time{}, err
	}
	return obj, info.LastModified, nil
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, HEAD")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Range")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range, Accept-Ranges")
		w.Header().Set("Access-Control-Max-Age", "86400") // 24 hours

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// NewRouter registers every route. authn may be nil to disable auth.
func NewRouter(h *APIHandler, authn *Authenticator, hub *EventHub) http.Handler {
	// 录音 id 是文件路径，需要按编码后的路径匹配
	router := mux.NewRouter().UseEncodedPath()

	router.HandleFunc("/healthz", h.HealthHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/auth/login", authn.LoginHandler).Methods(http.MethodPost)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(authn.Middleware)

	api.HandleFunc("/recordings", h.GetRecordingsHandler).Methods(http.MethodGet)
	api.HandleFunc("/recordings/recent", h.GetRecentHandler).Methods(http.MethodGet)
	api.HandleFunc("/recordings/{id}", h.GetRecordingHandler).Methods(http.MethodGet)
	api.HandleFunc("/recordings/{id}", h.DeleteRecordingHandler).Methods(http.MethodDelete)
	api.HandleFunc("/recordings/{id}/stream", h.StreamRecordingHandler).Methods(http.MethodGet, http.MethodHead)
	api.HandleFunc("/recordings/{id}/read", h.MarkReadHandler).Methods(http.MethodPost)

	api.HandleFunc("/folders", h.GetFoldersHandler).Methods(http.MethodGet)
	api.HandleFunc("/folders/{phone}", h.GetFolderHandler).Methods(http.MethodGet)
	api.HandleFunc("/search", h.SearchHandler).Methods(http.MethodGet)

	api.HandleFunc("/contacts", h.GetContactsHandler).Methods(http.MethodGet)
	api.HandleFunc("/contacts/{phone}", h.RenameContactHandler).Methods(http.MethodPut)

	api.HandleFunc("/settings", h.GetSettingsHandler).Methods(http.MethodGet)
	api.HandleFunc("/settings", h.UpdateSettingsHandler).Methods(http.MethodPut)

	api.HandleFunc("/refresh", h.RefreshHandler).Methods(http.MethodPost)
	api.HandleFunc("/permissions", h.PermissionsHandler).Methods(http.MethodGet)
	api.HandleFunc("/archive", h.ArchiveHandler).Methods(http.MethodGet)

	ws := router.PathPrefix("/ws").Subrouter()
	ws.Use(authn.Middleware)
	ws.HandleFunc("/events", hub.ServeWS).Methods(http.MethodGet)

	return corsMiddleware(router)
}

// Start wires storage, scanning and the HTTP API, then serves until SIGINT/SIGTERM.
func Start(cfg *config.Config) {
	if err := db.ConnectGormDB(cfg); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.CloseGormDB()

	contactRepo := repository.NewGormContactRepository(db.GormDB)
	stateRepo := repository.NewGormRecordingStateRepository(db.GormDB)
	settingsRepo := repository.NewGormSettingsRepository(db.GormDB)

	// Redis 和 MinIO 都是可选的，连接失败时降级运行
	var snapshots recording.SnapshotCache
	if cfg.RedisEnabled {
		if err := cache.ConnectRedis(cfg); err != nil {
			logger.Warn("Redis unavailable, running without snapshot cache", logger.ErrorField(err))
		} else {
			defer cache.CloseRedis()
			snapshots = cache.NewRecordingCache(cfg.StorageRoot, cfg.CacheTTL)
			logger.Info("Successfully connected to Redis")
		}
	}

	var archive *storage.Archive
	if cfg.MinioEnabled {
		if err := storage.InitMinio(cfg); err != nil {
			logger.Warn("MinIO unavailable, archiving disabled", logger.ErrorField(err))
		} else {
			archive = storage.NewArchive(nil, cfg.MinioBucket)
		}
	}

	scanner := NewScanner(cfg)
	storeContacts := contacts.NewStoreProvider(contactRepo)
	var contactSource contacts.Provider = storeContacts
	if cfg.MockFallback {
		contactSource = contacts.Chain{contacts.MockProvider{}, storeContacts}
	}

	opts := recording.Options{
		Source:             scanner,
		Contacts:           contactSource,
		ContactWriter:      storeContacts,
		States:             stateRepo,
		Cache:              snapshots,
		MinRefreshInterval: cfg.MinRefreshInterval,
		MockFallback:       cfg.MockFallback,
		Location:           cfg.Location(),
	}
	var reader ArchiveReader
	if archive != nil {
		reader = archiveReader{archive: archive}
		if cfg.ArchiveBeforeDelete {
			opts.Archiver = archive
		}
	}
	svc := recording.NewService(opts)

	hub := NewEventHub()
	go hub.Run()
	unsubscribe := svc.Subscribe(hub.Publish)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	report, err := svc.Refresh(ctx, true)
	if err != nil {
		logger.Error("initial scan failed", logger.ErrorField(err))
	}

	if cfg.WatchEnabled && len(report.Accessible) > 0 {
		watcher := recording.NewWatcher(report.Accessible, cfg.WatchDebounce, svc)
		go func() {
			if err := watcher.Run(ctx); err != nil {
				logger.Warn("recording watcher stopped", logger.ErrorField(err))
			}
		}()
	}

	sweeper := retention.NewSweeper(settingsRepo, svc, cfg.RetentionCheckInterval)
	sweeper.Start()

	authn := NewAuthenticator(cfg.JWTSecret, cfg.AdminPasswordHash, cfg.TokenTTL)
	if authn == nil {
		logger.Warn("API authentication disabled: set JWT_SECRET and ADMIN_PASSWORD_HASH to enable it")
	}

	apiHandler := NewAPIHandler(svc, settingsRepo, permission.NewChecker(scanner), authn).
		WithArchive(stateRepo, reader)

	server := &http.Server{
		Addr:        cfg.ServerAddr,
		Handler:     NewRouter(apiHandler, authn, hub),
		ReadTimeout: 30 * time.Second,
		// 不设置 WriteTimeout，长录音的流式传输可能超过任何固定值
		IdleTimeout: 120 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("Server starting on %s...", cfg.ServerAddr)
		log.Printf("Scanning %s (%d recordings, mock=%v)", cfg.StorageRoot, len(svc.Recordings(ctx)), svc.IsMock())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-stop
	log.Println("Shutting down server...")

	cancel()
	sweeper.Stop()
	unsubscribe()
	hub.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
	log.Println("Server stopped")
}
