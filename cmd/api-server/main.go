package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/Vikass76/MonVieuxGrimoire/internal/auth"
	"github.com/Vikass76/MonVieuxGrimoire/internal/books"
	"github.com/Vikass76/MonVieuxGrimoire/internal/images"
	"github.com/Vikass76/MonVieuxGrimoire/pkg/database"
	"github.com/Vikass76/MonVieuxGrimoire/pkg/logger"
	"github.com/Vikass76/MonVieuxGrimoire/pkg/utils"
)

func main() {
	cfg := utils.Load()
	log := logger.Get()

	db := database.MustOpen(database.Config{Path: cfg.DBPath})
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("db migrate failed")
	}

	proc, err := images.NewProcessor(cfg.ImagesDir, cfg.PublicBaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("images dir setup failed")
	}

	router := gin.Default()
	_ = router.SetTrustedProxies([]string{"127.0.0.1"})

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	router.Use(cors.New(corsConfig))

	// processed covers, cross-origin readable
	router.Static("/images", cfg.ImagesDir)

	tokenSvc := auth.TokenService{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Duration: cfg.JWTDuration,
	}

	api := router.Group("/api")

	api.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		dbState := "up"
		if err := db.PingContext(ctx); err != nil {
			dbState = "down"
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "db": dbState})
	})

	api.GET("/me", auth.Middleware(tokenSvc), func(c *gin.Context) {
		claims := auth.MustGetClaims(c)
		c.JSON(http.StatusOK, gin.H{"userId": claims.UserID})
	})

	authRepo := auth.NewRepo(db)
	authHandler := auth.NewHandler(authRepo, tokenSvc)
	authHandler.RegisterRoutes(api.Group("/auth"))

	bookRepo := books.NewRepo(db)
	bookHandler := books.NewHandler(bookRepo, proc)
	bookHandler.RegisterPublicRoutes(api.Group("/books"))

	protectedBooks := api.Group("/books")
	protectedBooks.Use(auth.Middleware(tokenSvc))
	bookHandler.RegisterProtectedRoutes(protectedBooks)

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", httpSrv.Addr).Msg("API server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown error")
	}
	log.Info().Msg("server stopped")
}
