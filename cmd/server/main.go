package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flaboy/aira-billing/pkg/commence"
	"github.com/flaboy/aira-billing/pkg/config"
	"github.com/flaboy/aira-billing/pkg/webhook"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	engine, err := commence.Start(cfg)
	if err != nil {
		slog.Error("Failed to start billing components", "error", err)
		os.Exit(1)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	controller := webhook.NewController(engine, cfg.Gateway.WebhookToken)
	controller.RegisterRoutes(router)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	server := &http.Server{
		Addr:    cfg.HTTP.Listen,
		Handler: router,
	}

	go func() {
		slog.Info("Billing webhook server listening", "addr", cfg.HTTP.Listen)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Forced shutdown", "error", err)
	}
}
