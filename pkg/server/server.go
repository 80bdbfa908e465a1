// Package server wires configuration into a running synkerd instance:
// stores, upload coordinator, delta-sync engine, share manager, identity,
// change notification and the garbage collector.
package server

import (
	"context"
	"fmt"
	"time"

	"github.com/marmos91/synkerd/internal/logger"
	"github.com/marmos91/synkerd/pkg/config"
	"github.com/marmos91/synkerd/pkg/content"
	"github.com/marmos91/synkerd/pkg/deltasync"
	"github.com/marmos91/synkerd/pkg/gc"
	"github.com/marmos91/synkerd/pkg/identity"
	"github.com/marmos91/synkerd/pkg/metadata"
	"github.com/marmos91/synkerd/pkg/notify"
	"github.com/marmos91/synkerd/pkg/share"
	"github.com/marmos91/synkerd/pkg/upload"
)

// Server owns the lifecycle of all synkerd components.
//
// Lifecycle:
//  1. New() builds stores and components from configuration
//  2. Run() starts background work and blocks until the context is
//     cancelled
//  3. shutdown stops the collector and closes the stores, bounded by the
//     configured shutdown timeout
type Server struct {
	cfg *config.Config

	meta  metadata.MetadataStore
	blobs content.WritableContentStore

	auth      *identity.Authenticator
	uploads   *upload.Coordinator
	sync      *deltasync.Engine
	shares    *share.Manager
	notifier  *notify.Dispatcher
	collector *gc.Collector
}

// New builds a server from configuration. All components share the same
// store instances, so every surface sees one consistent namespace.
func New(ctx context.Context, cfg *config.Config) (*Server, error) {
	meta, err := config.CreateMetadataStore(ctx, &cfg.Metadata)
	if err != nil {
		return nil, fmt.Errorf("creating metadata store: %w", err)
	}

	blobs, err := config.CreateContentStore(ctx, &cfg.Content)
	if err != nil {
		meta.Close()
		return nil, fmt.Errorf("creating content store: %w", err)
	}

	provider, err := config.CreateIdentityProvider(&cfg.Identity)
	if err != nil {
		meta.Close()
		return nil, fmt.Errorf("creating identity provider: %w", err)
	}

	notifier := notify.NewDispatcher(cfg.Notify.SubscriberBuffer)
	meta.SetChangeSink(notify.Multi{notifier, notify.LogSink{}})

	uploads := upload.NewCoordinator(meta, blobs, upload.WithSessionTTL(cfg.Upload.SessionTTL))

	s := &Server{
		cfg:      cfg,
		meta:     meta,
		blobs:    blobs,
		auth:     identity.NewAuthenticator(provider, meta),
		uploads:  uploads,
		sync:     deltasync.NewEngine(meta),
		shares:   share.NewManager(meta, blobs),
		notifier: notifier,
		collector: gc.NewCollector(meta, blobs, uploads, gc.Config{
			Enabled:      cfg.GC.Enabled,
			Interval:     cfg.GC.Interval,
			LogRetention: cfg.GC.LogRetention,
			DryRun:       cfg.GC.DryRun,
		}),
	}
	return s, nil
}

// Run starts background work and blocks until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	if err := s.meta.Healthcheck(ctx); err != nil {
		return fmt.Errorf("metadata store unhealthy: %w", err)
	}

	s.collector.Start()
	logger.Info("synkerd running: metadata=%s content=%s identity=%s",
		s.cfg.Metadata.Type, s.cfg.Content.Type, s.cfg.Identity.Type)

	<-ctx.Done()
	logger.Info("shutdown signal received (reason: %v)", ctx.Err())
	return s.shutdown()
}

// shutdown stops the collector and closes the stores, bounded by the
// configured shutdown timeout.
func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	var firstErr error
	if err := s.collector.Stop(ctx); err != nil {
		firstErr = fmt.Errorf("stopping collector: %w", err)
	}
	if err := s.meta.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing metadata store: %w", err)
	}

	if firstErr != nil {
		return firstErr
	}
	logger.Info("synkerd stopped gracefully")
	return nil
}

// Close releases resources without waiting for background work. Intended
// for error paths before Run.
func (s *Server) Close() error {
	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = s.collector.Stop(stopCtx)
	return s.meta.Close()
}

// Metadata returns the shared metadata store.
func (s *Server) Metadata() metadata.MetadataStore { return s.meta }

// Content returns the shared content store.
func (s *Server) Content() content.WritableContentStore { return s.blobs }

// Auth returns the authenticator.
func (s *Server) Auth() *identity.Authenticator { return s.auth }

// Uploads returns the upload coordinator.
func (s *Server) Uploads() *upload.Coordinator { return s.uploads }

// Sync returns the delta-sync engine.
func (s *Server) Sync() *deltasync.Engine { return s.sync }

// Shares returns the share-link manager.
func (s *Server) Shares() *share.Manager { return s.shares }

// Notifier returns the change-notification dispatcher.
func (s *Server) Notifier() *notify.Dispatcher { return s.notifier }

// Collector returns the garbage collector.
func (s *Server) Collector() *gc.Collector { return s.collector }
