package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	"aquamon/config"
	"aquamon/handlers"
	"aquamon/middleware"
	"aquamon/services"
)

func main() {
	// 1. Config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Println("=== Configuration ===")
	log.Printf("Server: %s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("MongoDB: %s", cfg.MongoDB.Database)
	log.Printf("Redis: %s", cfg.Redis.Address)
	log.Printf("Monitor interval: %s, connectivity threshold: %dm", cfg.MonitorIntervalDuration(), cfg.Monitor.ConnectivityThresholdMinutes)

	// 2. Core Services
	mongoService, err := services.NewMongoDBService(cfg)
	if err != nil {
		log.Fatalf("MongoDB connection failed: %v", err)
	}
	defer mongoService.Close()
	log.Println("✓ MongoDB connected")

	discordBot, err := services.NewDiscordBotService(cfg.Discord.Token, cfg.Discord.ChannelID)
	if err != nil {
		log.Printf("⚠️  Discord bot initialization failed: %v", err)
		log.Println("Ops-channel notifications will be disabled")
		discordBot = nil
	} else if discordBot.Enabled() {
		defer discordBot.Close()
		log.Println("✓ Discord Bot connected")
	}

	emailService := services.NewEmailService(cfg)
	whatsappService := services.NewWhatsAppService(cfg)

	// Throttle (Redis with in-memory fallback)
	throttle := services.NewNotificationThrottle(cfg)
	defer throttle.Stop()
	log.Printf("✓ Notification throttle ready (mode: %s, window: %s)", throttle.Mode(), throttle.Window())

	connectivity := services.NewConnectivityService(mongoService, mongoService)
	audit := services.NewAuditService(mongoService)

	alertStore := services.NewAlertStore(mongoService, connectivity, audit, cfg.Monitor.ConnectivityThresholdMinutes)
	directory := services.NewDirectoryService(mongoService)
	dispatcher := services.NewNotificationDispatcher(directory, throttle, emailService, whatsappService, discordBot, mongoService, audit, cfg.WhatsApp.MaxRetries)
	lifecycle := services.NewAlertLifecycleService(alertStore, dispatcher, throttle, mongoService, audit, connectivity)

	monitor := services.NewSensorMonitor(mongoService, mongoService, connectivity, lifecycle, cfg.MonitorIntervalDuration(), cfg.Monitor.ConnectivityThresholdMinutes)
	reconciler := services.NewAlertReconciler(alertStore, lifecycle, connectivity, audit, cfg.ReconcilerIntervalDuration(), cfg.Monitor.ConnectivityThresholdMinutes)
	watcher := services.NewReadingWatcher(mongoService, connectivity)

	// 3. Start Background Services
	log.Println("=== Starting Services ===")

	alertStore.Start()
	log.Println("✓ Alert Store started")

	watcher.Start()
	log.Println("✓ Reading Watcher started")

	monitor.Start()
	log.Println("✓ Sensor Monitor started")

	reconciler.Start()
	log.Println("✓ Alert Reconciler started")

	log.Println("=== All Services Running ===")

	// 4. Web Server
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.LoggerMiddleware())
	e.Use(middleware.CORSMiddleware(cfg.Server.AllowedOrigins))
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("Recovered from panic: %v", r)
					c.Error(fmt.Errorf("internal server error"))
				}
			}()
			return next(c)
		}
	})

	// 5. Handlers
	h := handlers.NewHandler(cfg, lifecycle, mongoService)

	// 6. Routes
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	api := e.Group("/api")

	alerts := api.Group("/alerts")
	alerts.GET("", h.GetActiveAlerts)
	alerts.POST("", h.CreateAlert)
	alerts.GET("/history", h.GetAlertHistory)
	alerts.POST("/:id/dismiss", h.DismissAlert)

	sensors := api.Group("/sensors")
	sensors.GET("/:id/config", h.GetSensorConfig)
	sensors.PUT("/:id/config", h.UpdateSensorConfig)
	sensors.DELETE("/:id", h.RemoveSensor)

	// 7. Start Server with Graceful Shutdown
	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	go func() {
		log.Printf("🚀 Server running on http://%s", serverAddr)

		if err := e.Start(serverAddr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("shutting down the server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Println("⏳ Graceful shutdown initiated...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Stop Background Services
	log.Println("Stopping services...")
	reconciler.Stop()
	monitor.Stop()
	watcher.Stop()
	alertStore.Stop()
	log.Println("✓ All services stopped")

	if err := e.Shutdown(ctx); err != nil {
		e.Logger.Fatal(err)
	}
	log.Println("✓ Server exited cleanly")
}
