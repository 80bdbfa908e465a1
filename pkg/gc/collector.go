// Package gc reclaims storage the normal request path leaves behind.
//
// Three kinds of garbage accumulate over time:
//   - expired upload sessions and their staged blobs
//   - change-log entries every active device has already consumed
//   - orphaned content blobs (crash between blob write and metadata commit,
//     or between tombstone prune and blob delete)
//
// The collector runs all three sweeps periodically in the background. Each
// sweep is independently safe to re-run; a crashed run is retried wholesale
// on the next tick.
package gc

import (
	"context"
	"fmt"
	"time"

	"github.com/marmos91/synkerd/internal/logger"
	"github.com/marmos91/synkerd/pkg/content"
	"github.com/marmos91/synkerd/pkg/metadata"
)

// UploadSweeper is the slice of the upload coordinator the collector needs.
type UploadSweeper interface {
	// SweepExpired abandons sessions idle past their TTL and returns how
	// many were reclaimed.
	SweepExpired(ctx context.Context, now time.Time) (int, error)

	// ActiveStagingRefs returns the staging refs of in-flight uploads.
	// Staged blobs are unreferenced by metadata until commit; the orphan
	// sweep must not reclaim them.
	ActiveStagingRefs() []string
}

// Config contains configuration for the garbage collector.
type Config struct {
	// Enabled controls whether background collection runs (default: true
	// from the config layer).
	Enabled bool

	// Interval is how often to run collection (default: 1h).
	Interval time.Duration

	// LogRetention is how long change-log entries are kept for devices
	// that have not synced. A session idle longer than this no longer
	// holds back trimming; the device full-resyncs from a snapshot when
	// it returns (default: 30 days).
	LogRetention time.Duration

	// DryRun logs what would be reclaimed without deleting anything.
	DryRun bool
}

// Stats summarizes one collection run.
type Stats struct {
	StartTime time.Time
	EndTime   time.Time

	// ExpiredUploads is the number of upload sessions reclaimed.
	ExpiredUploads int

	// TrimmedUsers is the number of users whose change log was trimmed.
	TrimmedUsers int

	// ReferencedCount and ExistingCount describe the orphan-sweep inputs.
	ReferencedCount uint64
	ExistingCount   uint64

	// OrphanedCount is the number of unreferenced blobs found;
	// DeletedCount how many were actually removed.
	OrphanedCount uint64
	DeletedCount  uint64
}

// Summary renders the stats for log output.
func (s *Stats) Summary() string {
	return fmt.Sprintf("uploads=%d trimmed_users=%d referenced=%d existing=%d orphaned=%d deleted=%d duration=%s",
		s.ExpiredUploads, s.TrimmedUsers, s.ReferencedCount, s.ExistingCount,
		s.OrphanedCount, s.DeletedCount, s.EndTime.Sub(s.StartTime).Round(time.Millisecond))
}

// Collector performs the periodic sweeps.
//
// Thread Safety: safe for concurrent use.
type Collector struct {
	meta    metadata.MetadataStore
	blobs   content.WritableContentStore
	uploads UploadSweeper
	config  Config
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewCollector creates a collector. Call Start to begin background runs.
func NewCollector(meta metadata.MetadataStore, blobs content.WritableContentStore, uploads UploadSweeper, config Config) *Collector {
	if config.Interval == 0 {
		config.Interval = time.Hour
	}
	if config.LogRetention == 0 {
		config.LogRetention = 30 * 24 * time.Hour
	}

	return &Collector{
		meta:    meta,
		blobs:   blobs,
		uploads: uploads,
		config:  config,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start begins background collection. No-op when disabled.
func (c *Collector) Start() {
	if !c.config.Enabled {
		logger.Info("garbage collection disabled")
		return
	}

	logger.Info("starting garbage collector: interval=%s retention=%s dry_run=%v",
		c.config.Interval, c.config.LogRetention, c.config.DryRun)
	go c.worker()
}

// Stop signals the worker and waits for it to finish or ctx to expire.
func (c *Collector) Stop(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	close(c.stopCh)
	select {
	case <-c.doneCh:
		return nil
	case <-ctx.Done():
		logger.Warn("garbage collector shutdown timeout")
		return ctx.Err()
	}
}

// RunNow triggers an immediate collection run and blocks until it finishes.
func (c *Collector) RunNow(ctx context.Context) (*Stats, error) {
	return c.collect(ctx, time.Now())
}

func (c *Collector) worker() {
	defer close(c.doneCh)

	ticker := time.NewTicker(c.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			stats, err := c.collect(ctx, time.Now())
			cancel()

			if err != nil {
				logger.Error("garbage collection failed: %v", err)
			} else {
				logger.Info("garbage collection completed: %s", stats.Summary())
			}

		case <-c.stopCh:
			return
		}
	}
}

// collect performs one full run: expired uploads, change-log trim, orphan
// sweep. The upload sweep runs first so freshly abandoned staging blobs are
// reclaimed by the orphan sweep in the same run.
func (c *Collector) collect(ctx context.Context, now time.Time) (*Stats, error) {
	stats := &Stats{StartTime: now}

	swept, err := c.uploads.SweepExpired(ctx, now)
	if err != nil {
		return stats, fmt.Errorf("sweeping expired uploads: %w", err)
	}
	stats.ExpiredUploads = swept

	trimmed, err := c.trimChangeLogs(ctx, now)
	if err != nil {
		return stats, fmt.Errorf("trimming change logs: %w", err)
	}
	stats.TrimmedUsers = trimmed

	if err := c.sweepOrphans(ctx, stats); err != nil {
		return stats, fmt.Errorf("sweeping orphaned content: %w", err)
	}

	stats.EndTime = time.Now()
	return stats, nil
}

// trimChangeLogs trims each user's log up to the slowest cursor that still
// matters: the minimum over active sessions synced within the retention
// window. With no such session the whole log is trimmable.
func (c *Collector) trimChangeLogs(ctx context.Context, now time.Time) (int, error) {
	users, err := c.meta.ListUsers(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := now.Add(-c.config.LogRetention)
	trimmed := 0

	for _, user := range users {
		head, err := c.meta.LatestCursor(ctx, user.ID)
		if err != nil {
			return trimmed, err
		}
		if head == 0 {
			continue
		}

		sessions, err := c.meta.ListSessions(ctx, user.ID)
		if err != nil {
			return trimmed, err
		}

		upto := head
		for _, s := range sessions {
			if !s.Active || s.LastSync.Before(cutoff) {
				continue
			}
			if s.Cursor < upto {
				upto = s.Cursor
			}
		}
		if upto == 0 {
			continue
		}

		if c.config.DryRun {
			logger.Info("gc dry run: would trim log of user %s up to %d (head %d)", user.Username, upto, head)
			continue
		}
		if err := c.meta.TrimChangeLog(ctx, user.ID, upto); err != nil {
			return trimmed, err
		}
		logger.Debug("gc: trimmed log of user %s up to %d", user.Username, upto)
		trimmed++
	}
	return trimmed, nil
}

// sweepOrphans deletes blobs referenced neither by live metadata nor by an
// in-flight upload.
func (c *Collector) sweepOrphans(ctx context.Context, stats *Stats) error {
	// The blob listing comes first: a blob staged or committed after this
	// point is not a deletion candidate, and the keep sets read below
	// cover everything referenced before it.
	existing, err := c.blobs.ListAllContent(ctx)
	if err != nil {
		return fmt.Errorf("listing content store: %w", err)
	}
	stats.ExistingCount = uint64(len(existing))

	// Staging refs are read before the metadata refs. A commit adds the
	// metadata ref before retiring the upload session, so a session gone by
	// this read already shows up in the metadata listing below; a session
	// still present is kept directly.
	keep := make(map[string]struct{})
	for _, ref := range c.uploads.ActiveStagingRefs() {
		keep[ref] = struct{}{}
	}

	referenced, err := c.meta.ListContentRefs(ctx)
	if err != nil {
		return fmt.Errorf("listing referenced content: %w", err)
	}
	for _, ref := range referenced {
		keep[ref] = struct{}{}
	}
	stats.ReferencedCount = uint64(len(keep))

	for _, ref := range existing {
		if _, ok := keep[ref]; ok {
			continue
		}
		stats.OrphanedCount++

		if c.config.DryRun {
			logger.Info("gc dry run: would delete orphaned blob %s", ref)
			continue
		}
		if err := c.blobs.DeleteContent(ctx, ref); err != nil {
			// Another sweep or a concurrent abandon may have raced us.
			logger.Warn("gc: deleting orphaned blob %s: %v", ref, err)
			continue
		}
		stats.DeletedCount++
	}
	return nil
}
