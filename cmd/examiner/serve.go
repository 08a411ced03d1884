package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hkoeze/chekhov-examiner-2/internal/api"
	"github.com/hkoeze/chekhov-examiner-2/internal/exam"
	"github.com/hkoeze/chekhov-examiner-2/internal/grading"
	"github.com/hkoeze/chekhov-examiner-2/internal/questions"
	"github.com/hkoeze/chekhov-examiner-2/internal/sessions"
	"github.com/hkoeze/chekhov-examiner-2/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP service",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := cfg.RequireSecret(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, svc, err := openService()
	if err != nil {
		return err
	}
	defer db.Close()

	router := api.NewRouter(db, svc, cfg.Secret, cfg.MaxWebhookBytes, logger)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("examiner server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		return err
	}
	logger.Info("server stopped")
	return nil
}

// openService wires storage, the question bank and the grader into an
// exam.Service. The caller owns the returned DB.
func openService() (*store.DB, *exam.Service, error) {
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	bank, err := questions.LoadBank(cfg.QuestionBankPath)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to load question bank: %w", err)
	}
	content, process := bank.Partition()
	logger.Info("question bank loaded",
		zap.String("path", cfg.QuestionBankPath),
		zap.Int("content", len(content)),
		zap.Int("process", len(process)),
	)

	var opts []exam.Option
	grader := grading.NewOllamaGrader(cfg.OllamaBaseURL, cfg.GradingModel, cfg.GradingEnabled, logger)
	if grader.IsEnabled() {
		opts = append(opts, exam.WithGrader(grader))
	} else {
		logger.Info("grading disabled; grade commands will report it unavailable")
	}

	svc := exam.NewService(
		sessions.NewStore(db),
		bank,
		exam.Limits{
			MaxEssayChars:           cfg.MaxEssayChars,
			DefaultContentQuestions: cfg.DefaultContentQuestions,
			DefaultProcessQuestions: cfg.DefaultProcessQuestions,
			AllowTranscriptReingest: cfg.AllowTranscriptReingest,
		},
		logger,
		opts...,
	)
	return db, svc, nil
}
