package main

import (
	"context"
	"fmt"

	"github.com/Anylayerorg/landing-sub001/config"
	"github.com/Anylayerorg/landing-sub001/pkg/logger"
	"github.com/Anylayerorg/landing-sub001/service"
)

// app holds the wired services shared by the server and the CLI
type app struct {
	cfg         *config.Config
	store       service.DocumentStore
	inbox       service.InboxStore
	controller  *service.Controller
	submissions *service.SubmissionService
	inboxSvc    *service.InboxService
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	store, inbox, err := service.NewDocumentStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize document store: %w", err)
	}

	var screenshots service.ScreenshotStorage
	if cfg.Minio.Enabled {
		evidence, err := service.NewEvidenceStorage(&cfg.Minio)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize evidence storage: %w", err)
		}
		if err := evidence.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("failed to ensure evidence bucket: %w", err)
		}
		screenshots = evidence
	}

	if cfg.Verification.WebhookURL == "" {
		logger.Warn(ctx, "verification webhook url is not configured; every review will fail")
	}
	verifier := service.NewVerificationClient(&cfg.Verification)

	return newAppWith(cfg, store, inbox, verifier, screenshots), nil
}

func newAppWith(cfg *config.Config, store service.DocumentStore, inbox service.InboxStore, verifier service.Verifier, screenshots service.ScreenshotStorage) *app {
	return &app{
		cfg:         cfg,
		store:       store,
		inbox:       inbox,
		controller:  service.NewController(store, verifier, &cfg.Review),
		submissions: service.NewSubmissionService(store, screenshots),
		inboxSvc:    service.NewInboxService(inbox),
	}
}
