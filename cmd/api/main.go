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

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/justsurfingit/campus-job-board/internal/auth"
	"github.com/justsurfingit/campus-job-board/internal/config"
	"github.com/justsurfingit/campus-job-board/internal/database"
	"github.com/justsurfingit/campus-job-board/internal/handlers"
	"github.com/justsurfingit/campus-job-board/internal/logger"
	"github.com/justsurfingit/campus-job-board/internal/quota"
	"github.com/justsurfingit/campus-job-board/internal/rematch"
	"github.com/justsurfingit/campus-job-board/internal/services"
)

func main() {
	// 1. Load configuration (.env, jobboard.yaml, JOBBOARD_* variables)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := logger.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	if err := run(cfg, zlog); err != nil {
		zlog.Fatalw("Server exited", logger.FieldError, err)
	}
}

func run(cfg *config.Config, zlog *zap.SugaredLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Database Connection
	db, err := database.Connect(cfg.Database.DSN, cfg.Database.LogLevel, zlog)
	if err != nil {
		return err
	}

	// 3. Initialize Core Services (Dependencies)
	loc, err := cfg.Quota.Location()
	if err != nil {
		return err
	}
	tracker := quota.NewTracker(db, cfg.Quota.DailyLimit, loc)

	matchService := services.NewMatchService(db, cfg.Matching.MinScore, logger.Component(zlog, "matches"))
	trigger := rematch.New(matchService, rematch.Options{
		Workers:   cfg.Matching.Workers,
		QueueSize: cfg.Matching.QueueSize,
		SweepCron: cfg.Matching.SweepCron,
	}, zlog)
	if err := trigger.Start(ctx); err != nil {
		return err
	}
	defer trigger.Stop()

	cvService := services.NewCVService(db, logger.Component(zlog, "cvs"))
	studentService := services.NewStudentService(db, trigger, logger.Component(zlog, "students"))
	jobService := services.NewJobService(db, trigger, logger.Component(zlog, "jobs"))

	appService := services.NewApplicationService(db, services.ApplicationDeps{
		Quota:           tracker,
		CVs:             cvService,
		Matches:         matchService,
		CoverLetters:    coverLetters(ctx, cfg, zlog),
		Dispatcher:      dispatcher(ctx, cfg, zlog),
		DispatchTimeout: cfg.Mail.DispatchTimeout(),
		PublicBaseURL:   cfg.Server.PublicBaseURL,
	}, logger.Component(zlog, "applications"))

	// 4. Initialize Handlers
	jobHandler := handlers.NewJobHandler(jobService, zlog)
	appHandler := handlers.NewApplicationHandler(appService, zlog)
	studentHandler := handlers.NewStudentHandler(studentService, cvService, matchService, zlog)

	// 5. Setup Router & CORS
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), handlers.RequestLogger(logger.Component(zlog, "http")))
	corsConfig := cors.DefaultConfig()
	if len(cfg.Server.AllowedOrigins) == 0 || cfg.Server.AllowedOrigins[0] == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.Server.AllowedOrigins
	}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", handlers.RequestIDHeader}
	corsConfig.ExposeHeaders = []string{handlers.RequestIDHeader}
	r.Use(cors.New(corsConfig))

	// 6. Define Routes
	handlers.Register(r.Group("/api/v1"), jobHandler, appHandler, studentHandler)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zlog.Infow("Server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	zlog.Infow("Shutting down")
	// In-flight submissions finish their dispatch and commit before exit
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Mail.DispatchTimeout()+5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// dispatcher picks the email transport: dry run when asked for or when Gmail is not authorized.
func dispatcher(ctx context.Context, cfg *config.Config, zlog *zap.SugaredLogger) services.NotificationDispatcher {
	mailLog := logger.Component(zlog, "mail")
	if cfg.Mail.DryRun {
		mailLog.Infow("Mail dry run enabled, application emails are logged only")
		return services.NewDryRunDispatcher(mailLog)
	}

	zlog.Infow("Initializing Gmail Client")
	gmailService, err := auth.GmailService(ctx, cfg.Gmail.CredentialsFile, cfg.Gmail.TokenFile)
	if err != nil {
		mailLog.Warnw("Gmail unavailable, falling back to dry run", logger.FieldError, err)
		return services.NewDryRunDispatcher(mailLog)
	}
	mailLog.Infow("Gmail Service connected successfully")
	return services.NewGmailDispatcher(gmailService, cfg.Gmail.Sender, cfg.Gmail.SendsPerSecond, mailLog)
}

func coverLetters(ctx context.Context, cfg *config.Config, zlog *zap.SugaredLogger) services.CoverLetterGenerator {
	if cfg.LLM.APIKey == "" {
		zlog.Infow("No LLM API key, using template cover letters")
		return services.TemplateCoverLetters{}
	}
	llm, err := services.NewLLMService(ctx, cfg.LLM.APIKey, cfg.LLM.Model, logger.Component(zlog, "llm"))
	if err != nil {
		zlog.Warnw("LLM unavailable, using template cover letters", logger.FieldError, err)
		return services.TemplateCoverLetters{}
	}
	return llm
}
