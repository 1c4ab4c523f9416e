package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/promostream/promostream/internal/config"
	"github.com/promostream/promostream/internal/models"
	"github.com/promostream/promostream/internal/service"
	"github.com/promostream/promostream/internal/service/channel"
	"github.com/promostream/promostream/internal/service/source"
)

type Server struct {
	Config *config.Config
	DB     *gorm.DB
	Redis  *redis.Client
	Router *gin.Engine
	Logger *zap.Logger
	Server *http.Server

	// Services
	Credentials *service.CredentialService
	Shortener   *service.ShortenerService
	Affiliate   *service.AffiliateService
	Collector   *service.CollectorService
	Automation  *service.AutomationService
	Dispatcher  *service.DispatcherService
	Renderer    *service.RenderService
	Stats       *service.StatsService
	Auth        *service.AuthService
	Scheduler   *service.Scheduler
}

func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	// Set gin mode
	gin.SetMode(cfg.Server.Mode)

	// Initialize database
	db, err := service.NewDatabase(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	redisClient, err := service.NewRedis(&cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize redis: %w", err)
	}

	// Initialize services
	postingInterval, err := time.ParseDuration(cfg.Scheduler.PostingInterval)
	if err != nil {
		return nil, fmt.Errorf("invalid posting interval: %w", err)
	}

	credentials := service.NewCredentialService(db, logger, map[string]service.TokenEndpoint{
		source.NameMercadoLivre: {
			URL:          cfg.Sources.MercadoLivre.TokenEndpoint,
			ClientID:     cfg.Sources.MercadoLivre.ClientID,
			ClientSecret: cfg.Sources.MercadoLivre.ClientSecret,
		},
	}, time.Duration(cfg.Sources.MercadoLivre.SafetyMarginMinutes)*time.Minute)

	shortener := service.NewShortenerService(&cfg.Shortener, redisClient, logger)
	affiliate := service.NewAffiliateService(&cfg.Affiliate, shortener, logger)
	normalizer := service.NewNormalizerService(db)
	renderer := service.NewRenderService(&cfg.OpenAI, db, logger)
	dispatcher := service.NewDispatcherService(db, logger)
	automation := service.NewAutomationService(db, logger, renderer, dispatcher, postingInterval)
	stats := service.NewStatsService(db, logger)
	auth := service.NewAuthService(logger, cfg.Server.TOTPSecret)

	adapters := buildAdapters(cfg, credentials, affiliate, logger)
	collector := service.NewCollectorService(adapters, affiliate, normalizer, logger, cfg.Sources.FetchLimit)
	scheduler := service.NewScheduler(&cfg.Scheduler, logger, collector, automation, renderer)

	// Create router
	router := gin.New()

	srv := &Server{
		Config:      cfg,
		DB:          db,
		Redis:       redisClient,
		Router:      router,
		Logger:      logger,
		Credentials: credentials,
		Shortener:   shortener,
		Affiliate:   affiliate,
		Collector:   collector,
		Automation:  automation,
		Dispatcher:  dispatcher,
		Renderer:    renderer,
		Stats:       stats,
		Auth:        auth,
		Scheduler:   scheduler,
	}

	srv.registerChannels()
	srv.setupMiddleware()
	srv.setupRoutes()

	return srv, nil
}

// buildAdapters wires one adapter per enabled source. The Mercado Livre
// adapter doubles as the source's native affiliate-link generator.
func buildAdapters(cfg *config.Config, credentials *service.CredentialService, affiliate *service.AffiliateService, logger *zap.Logger) []source.Adapter {
	var adapters []source.Adapter

	if cfg.Sources.MercadoLivre.Enabled {
		meli := source.NewMercadoLivreAdapter(&cfg.Sources.MercadoLivre, credentials, logger)
		affiliate.RegisterNativeLinker(source.NameMercadoLivre, meli.NativeAffiliateLink)
		adapters = append(adapters, meli)
	}
	if cfg.Sources.Amazon.Enabled {
		adapters = append(adapters, source.NewAmazonAdapter(&cfg.Sources.Amazon, logger))
	}
	if cfg.Sources.Awin.Enabled {
		adapters = append(adapters, source.NewAwinAdapter(&cfg.Sources.Awin, logger))
	}
	if cfg.Sources.RSS.Enabled {
		adapters = append(adapters, source.NewRSSAdapter(&cfg.Sources.RSS, logger))
	}

	return adapters
}

func (s *Server) registerChannels() {
	if s.Config.Channels.Telegram.Enabled {
		telegram, err := channel.NewTelegramChannel(&s.Config.Channels.Telegram, s.Logger)
		if err != nil {
			s.Logger.Error("Failed to create telegram channel", zap.Error(err))
		} else if err := s.Dispatcher.Register(telegram); err != nil {
			s.Logger.Error("Failed to register telegram channel", zap.Error(err))
		}
	}

	if s.Config.Channels.WhatsApp.Enabled {
		if err := s.Dispatcher.Register(channel.NewWhatsAppChannel(&s.Config.Channels.WhatsApp, s.Logger)); err != nil {
			s.Logger.Error("Failed to register whatsapp channel", zap.Error(err))
		}
	}

	if s.Config.Channels.Discord.Enabled {
		if err := s.Dispatcher.Register(channel.NewDiscordChannel(&s.Config.Channels.Discord)); err != nil {
			s.Logger.Error("Failed to register discord channel", zap.Error(err))
		}
	}
}

func (s *Server) setupMiddleware() {
	// Recovery middleware
	s.Router.Use(gin.Recovery())

	// Logger middleware
	s.Router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
	}))

	// CORS middleware
	s.Router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	s.Router.Use(s.Auth.Middleware())
}

func (s *Server) setupRoutes() {
	// Health check
	s.Router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Unix(),
		})
	})

	// Public short-link redirect
	s.Router.GET("/r/:code", s.handleRedirect)

	// API routes
	api := s.Router.Group("/api/v1")
	{
		api.POST("/auth/login", s.handleLogin)

		api.POST("/collect", s.handleCollect)

		api.POST("/credentials/:source", s.handleStoreCredentials)

		offers := api.Group("/offers")
		{
			offers.GET("", s.handleListOffers)
			offers.DELETE("/:id", s.handleDeleteOffer)
		}

		automation := api.Group("/automation")
		{
			automation.GET("/config", s.handleGetAutomationConfig)
			automation.PUT("/config", s.handleSaveAutomationConfig)
			automation.POST("/start", s.handleStartAutomation)
			automation.POST("/stop", s.handleStopAutomation)
			automation.GET("/preview", s.handlePreview)
		}

		api.GET("/history", s.handleHistory)

		stats := api.Group("/stats")
		{
			stats.GET("", s.handleStatsSummary)
			stats.GET("/channels", s.handleChannelStats)
			stats.GET("/sources", s.handleSourceStats)
		}
	}
}

func (s *Server) handleLogin(c *gin.Context) {
	var req struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code is required"})
		return
	}

	if !s.Auth.Enabled() {
		c.JSON(http.StatusOK, gin.H{"message": "authentication disabled"})
		return
	}
	if !s.Auth.ValidateCode(req.Code) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid code"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": s.Auth.CreateSession()})
}

func (s *Server) handleRedirect(c *gin.Context) {
	longURL, err := s.Shortener.Lookup(c.Request.Context(), c.Param("code"))
	if err != nil {
		if errors.Is(err, service.ErrShortCodeNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown code"})
			return
		}
		s.Logger.Error("Short code lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}

	c.Redirect(http.StatusFound, longURL)
}

// handleStoreCredentials records the token pair obtained from a source's
// one-time authorization flow, which the operator completes out of band.
func (s *Server) handleStoreCredentials(c *gin.Context) {
	var req struct {
		AccessToken  string `json:"access_token" binding:"required"`
		RefreshToken string `json:"refresh_token" binding:"required"`
		ExpiresIn    int    `json:"expires_in" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	src := c.Param("source")
	if err := s.Credentials.StoreInitialTokens(c.Request.Context(), src, req.AccessToken, req.RefreshToken, req.ExpiresIn); err != nil {
		s.Logger.Error("Failed to store credentials", zap.String("source", src), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store credentials"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "credentials stored"})
}

func (s *Server) handleCollect(c *gin.Context) {
	result := s.Collector.CollectAll(c.Request.Context())
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleListOffers(c *gin.Context) {
	query := s.DB.WithContext(c.Request.Context()).Model(&models.Offer{})

	if src := c.Query("source"); src != "" {
		query = query.Where("source = ?", src)
	}
	if posted := c.Query("posted"); posted != "" {
		query = query.Where("is_posted = ?", posted == "true")
	}
	if minDiscount := c.Query("min_discount"); minDiscount != "" {
		if v, err := strconv.Atoi(minDiscount); err == nil {
			query = query.Where("discount_percent >= ?", v)
		}
	}

	limit := 50
	if v, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil && v > 0 && v <= 200 {
		limit = v
	}

	var offers []models.Offer
	if err := query.Order("discount_percent DESC").Limit(limit).Find(&offers).Error; err != nil {
		s.Logger.Error("Failed to list offers", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list offers"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"offers": offers})
}

func (s *Server) handleDeleteOffer(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid offer id"})
		return
	}

	// Soft delete: the row stays behind its deleted_at marker so history
	// references keep resolving.
	if err := s.DB.WithContext(c.Request.Context()).Delete(&models.Offer{}, id).Error; err != nil {
		s.Logger.Error("Failed to delete offer", zap.Int("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete offer"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "offer deleted"})
}

func (s *Server) handleGetAutomationConfig(c *gin.Context) {
	cfg, err := s.Automation.GetConfig(c.Request.Context())
	if err != nil {
		s.Logger.Error("Failed to get automation config", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get config"})
		return
	}
	if cfg == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "automation not configured"})
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (s *Server) handleSaveAutomationConfig(c *gin.Context) {
	var cfg models.AutomationConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if cfg.StartHour < 0 || cfg.StartHour > 23 || cfg.EndHour < 0 || cfg.EndHour > 23 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "hours must be between 0 and 23"})
		return
	}
	if cfg.DiscountWeight < 0 || cfg.DiscountWeight > 100 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "discount_weight must be between 0 and 100"})
		return
	}

	if err := s.Automation.SaveConfig(c.Request.Context(), &cfg); err != nil {
		s.Logger.Error("Failed to save automation config", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save config"})
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (s *Server) handleStartAutomation(c *gin.Context) {
	if err := s.Automation.SetActive(c.Request.Context(), true); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "automation started"})
}

func (s *Server) handleStopAutomation(c *gin.Context) {
	if err := s.Automation.SetActive(c.Request.Context(), false); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "automation stopped"})
}

func (s *Server) handlePreview(c *gin.Context) {
	limit := 10
	if v, err := strconv.Atoi(c.DefaultQuery("limit", "10")); err == nil && v > 0 && v <= 50 {
		limit = v
	}

	candidates, err := s.Automation.Preview(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"candidates": candidates})
}

func (s *Server) handleHistory(c *gin.Context) {
	limit := 50
	if v, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil && v > 0 && v <= 200 {
		limit = v
	}

	query := s.DB.WithContext(c.Request.Context()).
		Preload("Offer").
		Order("created_at DESC").
		Limit(limit)
	if ch := c.Query("channel"); ch != "" {
		query = query.Where("channel = ?", ch)
	}
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var history []models.PostHistory
	if err := query.Find(&history).Error; err != nil {
		s.Logger.Error("Failed to load post history", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"history": history})
}

func (s *Server) handleStatsSummary(c *gin.Context) {
	summary, err := s.Stats.Summary(c.Request.Context())
	if err != nil {
		s.Logger.Error("Failed to compute stats summary", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute stats"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) handleChannelStats(c *gin.Context) {
	stats, err := s.Stats.PerChannel(c.Request.Context())
	if err != nil {
		s.Logger.Error("Failed to compute channel stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute stats"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"channels": stats})
}

func (s *Server) handleSourceStats(c *gin.Context) {
	stats, err := s.Stats.PerSource(c.Request.Context())
	if err != nil {
		s.Logger.Error("Failed to compute source stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute stats"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sources": stats})
}

func (s *Server) Start(ctx context.Context) error {
	// Start scheduler
	if err := s.Scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", s.Config.Server.Host, s.Config.Server.Port)

	s.Server = &http.Server{
		Addr:    addr,
		Handler: s.Router,
	}

	s.Logger.Info("Starting HTTP server", zap.String("addr", addr))

	if s.Config.Server.CertFile != "" && s.Config.Server.KeyFile != "" {
		return s.Server.ListenAndServeTLS(s.Config.Server.CertFile, s.Config.Server.KeyFile)
	}

	return s.Server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	// Stop scheduler first
	s.Scheduler.Stop()

	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			s.Logger.Warn("Failed to close redis client", zap.Error(err))
		}
	}

	if s.Server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	return s.Server.Shutdown(shutdownCtx)
}
