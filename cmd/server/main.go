package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/venturus/cdm-teller/internal/api"
	"github.com/venturus/cdm-teller/internal/bank"
	"github.com/venturus/cdm-teller/internal/config"
	"github.com/venturus/cdm-teller/internal/database"
	"github.com/venturus/cdm-teller/internal/device"
	apperrors "github.com/venturus/cdm-teller/internal/errors"
	"github.com/venturus/cdm-teller/internal/flow"
	"github.com/venturus/cdm-teller/internal/logger"
	"github.com/venturus/cdm-teller/internal/repository"
	"github.com/venturus/cdm-teller/internal/service"
	ws "github.com/venturus/cdm-teller/internal/websocket"
)

var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Server owns the process lifecycle.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	repos    *repository.Manager
	services *service.Services
	notifier *bank.Notifier
	fleet    *flow.Fleet
	hub      *ws.Hub
	httpSrv  *http.Server

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func main() {
	var (
		configPath  = flag.String("config", "", "config file path")
		showVersion = flag.Bool("version", false, "print version and exit")
	)

	flag.Parse()

	if *showVersion {
		fmt.Printf("cdm-teller %s (built %s, commit %s)\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	if err := config.Init(*configPath); err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	cfg := config.Get()

	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Printf("failed to init logging: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	server := NewServer(cfg)

	if err := server.Start(); err != nil {
		logger.Fatal("server startup failed", zap.Error(err))
	}

	server.WaitForShutdown()

	if err := server.Shutdown(); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// NewServer creates the server instance.
func NewServer(cfg *config.Config) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		cfg:    cfg,
		logger: logger.GetLogger(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start initializes every component and begins serving.
func (s *Server) Start() error {
	s.logger.Info("starting teller server",
		zap.String("version", Version),
		zap.String("mode", s.cfg.Server.Mode),
	)

	if err := s.initDatabase(); err != nil {
		return err
	}

	s.repos = repository.NewManager(database.GetDB())

	s.services = service.NewServices(database.GetDB(), &service.Config{
		JWTSecret:          s.cfg.Security.JWT.Secret,
		AccessTokenExpiry:  time.Duration(s.cfg.Security.JWT.ExpireHours) * time.Hour,
		RefreshTokenExpiry: time.Duration(s.cfg.Security.JWT.RefreshHours) * time.Hour,
	}, s.logger)

	bankClient := bank.NewClient(&s.cfg.Bank)
	if bankClient.Configured() {
		s.notifier = bank.NewNotifier(bankClient, s.repos.BankAudit(), &s.cfg.Bank)
	} else {
		s.logger.Warn("bank API not configured, deposits will not be notified")
	}

	s.hub = ws.NewHub(s.logger)
	// the hub runs for the process lifetime
	go s.hub.Run()

	if err := s.initFleet(); err != nil {
		return err
	}

	if err := s.startHTTP(); err != nil {
		return err
	}

	config.Watch(func(newCfg *config.Config) {
		s.logger.Info("configuration reloaded")
	})

	s.logger.Info("server started",
		zap.String("http", fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)),
		zap.Strings("devices", s.fleet.Codes()),
	)

	return nil
}

func (s *Server) initDatabase() error {
	if err := database.Init(&s.cfg.Database); err != nil {
		return apperrors.Wrap(err, apperrors.ErrDatabaseConnect, "failed to connect database")
	}

	if s.cfg.Database.AutoMigrate {
		if err := database.AutoMigrate(); err != nil {
			return apperrors.Wrap(err, apperrors.ErrDatabaseConnect, "failed to migrate schema")
		}
	}

	if !database.IsConnected() {
		return apperrors.New(apperrors.ErrDatabaseConnect, "database connection check failed")
	}

	return nil
}

// initFleet builds one flow controller per active machine and wires its
// pushes into the websocket hub.
func (s *Server) initFleet() error {
	s.fleet = flow.NewFleet()

	devices, err := s.repos.Device().GetActive(s.ctx)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrDatabaseQuery, "failed to load device fleet")
	}
	if len(devices) == 0 {
		s.logger.Warn("no active devices registered")
	}

	for _, dev := range devices {
		client := device.NewClient(device.ClientConfig{
			BaseURL:        dev.APIURL,
			RequestTimeout: s.cfg.Device.RequestTimeout,
			UnlockTimeout:  s.cfg.Device.UnlockTimeout,
		})

		ctrl := flow.NewController(flow.ControllerOptions{
			Driver:     client,
			DeviceCode: dev.Code,
			DeviceName: dev.Name,
			DeviceCfg:  &s.cfg.Device,
			FlowCfg:    &s.cfg.Flow,
			BankCfg:    &s.cfg.Bank,
			Repos:      s.repos,
			Notifier:   s.notifier,
		})

		code := dev.Code
		ctrl.OnStateChange(func(from, to flow.State) {
			s.hub.PublishFlowState(code, ctrl.State())
		})
		ctrl.SetStatusObserver(func(status *device.Status) {
			s.hub.PublishDeviceStatus(code, status)
		})
		ctrl.SetBlockedObserver(func(blocked bool) {
			s.hub.PublishBlocked(code, blocked)
		})
		ctrl.SetReceiptObserver(func(receipt *flow.Receipt) {
			s.hub.PublishReceipt(code, receipt)
		})

		s.fleet.Add(code, ctrl)

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			ctrl.RunCollectionGuard(s.ctx)
		}()

		s.logger.Info("device controller ready",
			zap.String("device_code", code),
			zap.String("api_url", dev.APIURL))
	}

	return nil
}

func (s *Server) startHTTP() error {
	if s.cfg.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := api.NewRouter(api.RouterOptions{
		DB:       database.GetDB(),
		Services: s.services,
		Repos:    s.repos,
		Fleet:    s.fleet,
		Hub:      s.hub,
		Log:      s.logger,
	})

	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port),
		Handler:      router.GetEngine(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server failed", zap.Error(err))
			s.cancel()
		}
	}()

	return nil
}

// WaitForShutdown blocks until a termination signal arrives.
func (s *Server) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	select {
	case sig := <-sigCh:
		s.logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	case <-s.ctx.Done():
		s.logger.Info("internal shutdown requested")
	}
}

// Shutdown stops the HTTP server and the background workers.
func (s *Server) Shutdown() error {
	s.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("http shutdown incomplete", zap.Error(err))
		}
	}

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("workers stopped")
	case <-shutdownCtx.Done():
		s.logger.Warn("shutdown timed out")
	}

	if err := database.Close(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrDatabaseConnect, "failed to close database")
	}

	return nil
}
