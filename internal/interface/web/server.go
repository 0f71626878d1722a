package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/defilive/vaultd/internal/core/application"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

type Config struct {
	Port          uint32
	PublicURL     string
	AdminSecret   string
	SentryEnabled bool
}

type Service struct {
	config Config
	server *http.Server
}

func NewService(config Config, appSvc *application.Service) *Service {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if config.SentryEnabled {
		router.Use(SentryMiddleware())
	}

	h := &handler{svc: appSvc, publicURL: config.PublicURL}

	router.GET("/challenges", h.listChallenges)
	router.GET("/challenge/:id", h.getChallenge)
	router.GET("/qrcode/:id", h.qrCode)
	router.GET("/ws", h.websocket)

	// 10 rps with a small burst is plenty for a donation page and keeps a
	// misbehaving client from hammering the verifier.
	router.POST("/donate/:id", RateLimitMiddleware(rate.Limit(10), 20), h.donate)

	admin := router.Group("/", AdminAuthMiddleware(config.AdminSecret))
	admin.POST("/challenge", h.createChallenge)
	admin.POST("/validate/:id", h.validate)
	admin.POST("/refuse/:id", h.refuse)
	admin.POST("/refund/:id", h.refund)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", config.Port),
		Handler: router,
	}
	return &Service{config: config, server: server}
}

func (s *Service) Start() error {
	go func() {
		log.Infof("http server listening on %s", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("http server exited")
		}
	}()
	return nil
}

func (s *Service) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	// nolint:all
	s.server.Shutdown(ctx)
}
