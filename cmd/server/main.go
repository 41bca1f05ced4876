// Package main runs the roomcast server: synchronized media playback for one
// controller and many viewers on a local network.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/roomcast/roomcast/config"
	"github.com/roomcast/roomcast/internal/catalog"
	"github.com/roomcast/roomcast/internal/connect"
	"github.com/roomcast/roomcast/internal/media"
	"github.com/roomcast/roomcast/internal/middleware"
	"github.com/roomcast/roomcast/internal/playback"
	"github.com/roomcast/roomcast/internal/realtime"
	"github.com/roomcast/roomcast/pkg/response"
)

// catalogResolver adapts the catalog to the processor's lookup interface.
type catalogResolver struct {
	cat *catalog.Catalog
}

func (r catalogResolver) Lookup(id string) (playback.MediaEntry, bool) {
	e, ok := r.cat.Get(id)
	if !ok {
		return playback.MediaEntry{}, false
	}
	return playback.MediaEntry{Name: e.Name, Kind: string(e.Kind), URL: e.URL}, true
}

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	if err := os.MkdirAll(cfg.Media.Dir, 0o755); err != nil {
		logger.Fatal("media directory", zap.String("dir", cfg.Media.Dir), zap.Error(err))
	}

	hub := realtime.NewHub(logger)
	store := playback.NewStore()
	cat := catalog.New("/media")

	watcher := catalog.NewWatcher(cfg.Media.Dir, time.Duration(cfg.Watcher.DebounceMS)*time.Millisecond, cat, store, hub, logger)
	if err := watcher.Scan(); err != nil {
		logger.Fatal("media scan", zap.Error(err))
	}

	processor := playback.NewProcessor(store, hub, catalogResolver{cat}, cfg.Playback.StrictCommands, logger)
	mediaHandler := media.NewHandler(cfg.Media.Dir, cfg.Media.MaxUploadMB, cat, watcher, hub, logger)

	joinURL := "http://" + connect.LANAddress() + ":" + cfg.Server.Port
	connectHandler := connect.NewHandler(joinURL, cfg.WiFi, logger)

	reaper := realtime.NewReaper(hub,
		time.Duration(cfg.Liveness.SweepIntervalSec)*time.Second,
		time.Duration(cfg.Liveness.StaleAfterSec)*time.Second,
		cfg.Liveness.ReapControllers,
		logger,
	)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })
	router.GET("/ws", realtime.ServeWs(hub, processor, logger))

	api := router.Group("/api")
	{
		api.GET("/status", func(c *gin.Context) {
			var counts realtime.Counts
			var state playback.State
			var size int
			hub.DoSync(func() {
				counts = hub.Counts()
				state = store.Snapshot()
				size = cat.Len()
			})
			response.OK(c, gin.H{
				"clients":     counts,
				"playback":    state,
				"catalogSize": size,
			})
		})
		api.GET("/media", mediaHandler.List)
		api.POST("/media", mediaHandler.Upload)
		api.DELETE("/media/:id", mediaHandler.Delete)
		api.GET("/connect/qr", connectHandler.JoinQR)
		api.GET("/connect/wifi", connectHandler.WiFiQR)
	}

	router.Static("/media", cfg.Media.Dir)
	if info, err := os.Stat(cfg.Server.PublicDir); err == nil && info.IsDir() {
		router.StaticFile("/", filepath.Join(cfg.Server.PublicDir, "index.html"))
		router.Static("/app", cfg.Server.PublicDir)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)
	go reaper.Run(ctx)
	go func() {
		if err := watcher.Run(ctx); err != nil {
			logger.Fatal("media watch", zap.Error(err))
		}
	}()

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port), zap.String("join_url", joinURL))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	connect.Banner(os.Stdout, joinURL, cfg.WiFi.SSID)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// best-effort notice to every session before the listener goes away
	hub.DoSync(func() {
		hub.ToAll(realtime.EventShutdown, gin.H{"message": "server shutting down"})
	})

	// the hub loop stays up through HTTP shutdown so in-flight handlers
	// blocked in DoSync can finish; the deferred cancel stops it afterwards
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
