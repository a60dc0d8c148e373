package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"convoview/internal/config"
	"convoview/internal/handler"
	"convoview/internal/model"
	"convoview/internal/storage"
	"convoview/internal/upstream"
	"convoview/pkg/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./configs/config.yaml", "配置文件路径")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}

	store := newStore(cfg)
	if err := store.Init(); err != nil {
		logger.Errorf("存储初始化失败，回退到内存存储: %v", err)
		store = storage.NewMemoryStore()
		store.Init()
	}
	defer store.Close()

	server := upstream.NewServer(store, newResponder(cfg), cfg.View.SnapshotLimit)
	server.StartCleanup(cfg.Session.TTL, cfg.Session.CleanupInterval)

	viewHandler := handler.NewViewHandler(cfg, server)
	router := setupRouter(cfg, viewHandler)

	httpServer := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	go func() {
		logger.Infof("服务启动在端口 %d", cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("服务启动失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("服务正在关闭...")
	if err := httpServer.Close(); err != nil {
		logger.Errorf("关闭 HTTP 服务失败: %v", err)
	}
	viewHandler.CloseAll()
	server.Stop()
	logger.Info("服务已关闭")
}

func newStore(cfg *config.Config) storage.Store {
	if cfg.Storage.Type == "disk" {
		return storage.NewDiskStore(cfg.Storage.DataDir)
	}
	return storage.NewMemoryStore()
}

// newResponder 有可用模型配置时用真实模型应答，否则退回脚本应答器
func newResponder(cfg *config.Config) upstream.Responder {
	if cfg.Model.Provider != "" && cfg.Model.Provider != "scripted" {
		chatModel, err := model.NewChatModel(context.Background(), &cfg.Model)
		if err != nil {
			logger.Errorf("创建模型失败，回退到脚本应答器: %v", err)
		} else {
			logger.Infof("应答模型: %s", cfg.Model.Provider)
			return upstream.NewModelResponder(chatModel, "")
		}
	}
	return upstream.NewScriptedResponder(nil, 4)
}

func setupRouter(cfg *config.Config, viewHandler *handler.ViewHandler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    cfg.CORS.ExposedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           time.Duration(cfg.CORS.MaxAge) * time.Second,
	}
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().Unix(),
		})
	})

	api := router.Group("/api")
	{
		session := api.Group("/session")
		{
			session.POST("", viewHandler.CreateSession)
			session.POST("/list", viewHandler.GetSessionList)
			session.GET("/del/:session_id", viewHandler.DeleteSession)
		}

		view := api.Group("/view")
		{
			view.GET("/:session_id", viewHandler.GetView)
			view.GET("/:session_id/stream", viewHandler.StreamView)
			view.GET("/:session_id/events", viewHandler.StreamEvents)
			view.POST("/:session_id/more", viewHandler.LoadMore)
		}

		chat := api.Group("/chat")
		{
			chat.POST("/send", viewHandler.Send)
			chat.POST("/regenerate", viewHandler.Regenerate)
		}
	}

	return router
}
