package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/cadencehq/cadence/internal/steps"
	"github.com/cadencehq/cadence/internal/store"
	"github.com/cadencehq/cadence/pkg/schema"
)

// MessageSource is the scheduled-message queue the dispatcher drains.
// Satisfied by *store.LibSQLStore.
type MessageSource interface {
	DueMessages(ctx context.Context, now time.Time, limit int) ([]*store.ScheduledMessage, error)
	MarkDelivered(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, reason string, retryAt *time.Time) error
}

// LeadDirectory resolves a scheduled message's lead to a deliverable address.
type LeadDirectory interface {
	GetLead(ctx context.Context, id string) (*schema.Lead, error)
}

// CampaignFunc is one recurring campaign invocation, typically a workflow
// batch run.
type CampaignFunc func(ctx context.Context) error

// Dispatcher delivery tuning.
const (
	DefaultTickInterval = 60 * time.Second
	DefaultBatchLimit   = 100
	DefaultMaxAttempts  = 5

	retryBaseDelay = time.Minute
	retryMaxDelay  = time.Hour
)

// DispatcherConfig holds configuration for the dispatcher.
type DispatcherConfig struct {
	TickInterval time.Duration
	BatchLimit   int
	MaxAttempts  int
}

// Dispatcher drains due scheduled messages to the transport on a fixed tick
// and drives recurring campaign schedules through cron expressions.
// Messages missed during downtime are due on the first tick after restart.
type Dispatcher struct {
	source    MessageSource
	directory LeadDirectory
	transport steps.MessageTransport
	config    DispatcherConfig
	cron      *cron.Cron
	logger    *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	inflightMu sync.Mutex
	inflight   map[int64]struct{} // message IDs currently delivering (dedup)
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(source MessageSource, directory LeadDirectory, transport steps.MessageTransport, cfg DispatcherConfig, logger *slog.Logger) *Dispatcher {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = DefaultBatchLimit
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		source:    source,
		directory: directory,
		transport: transport,
		config:    cfg,
		cron:      cron.New(),
		logger:    logger,
		inflight:  make(map[int64]struct{}),
	}
}

// AddCampaign registers a recurring campaign under a standard five-field
// cron expression. Must be called before Start takes effect on schedule.
func (d *Dispatcher) AddCampaign(cronExpr string, fn CampaignFunc) error {
	_, err := d.cron.AddFunc(cronExpr, func() {
		if err := fn(context.Background()); err != nil {
			d.logger.Error("campaign run failed",
				slog.String("schedule", cronExpr),
				slog.String("error", err.Error()),
			)
		}
	})
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeScheduling, "invalid campaign schedule %q: %s", cronExpr, err.Error()).WithCause(err)
	}
	return nil
}

// Start launches the background delivery loop and the campaign cron.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.done != nil {
		d.mu.Unlock()
		return fmt.Errorf("dispatcher already started")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})
	d.mu.Unlock()

	d.cron.Start()
	go d.loop(loopCtx)
	d.logger.Info("dispatcher started")
	return nil
}

func (d *Dispatcher) loop(ctx context.Context) {
	defer close(d.done)

	ticker := time.NewTicker(d.config.TickInterval)
	defer ticker.Stop()

	// Run an initial tick immediately; this also recovers messages that
	// came due while the process was down.
	d.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Tick(ctx)
		}
	}
}

// Tick delivers all currently due messages. Exported for deterministic tests.
func (d *Dispatcher) Tick(ctx context.Context) {
	now := time.Now().UTC()
	msgs, err := d.source.DueMessages(ctx, now, d.config.BatchLimit)
	if err != nil {
		d.logger.Error("failed to list due messages", slog.String("error", err.Error()))
		return
	}

	for _, msg := range msgs {
		if ctx.Err() != nil {
			return
		}
		if !d.tryAcquire(msg.ID) {
			continue // already delivering (dedup)
		}
		d.deliver(ctx, msg, now)
		d.release(msg.ID)
	}
}

// deliver sends one message and records the outcome. Retryable failures are
// pushed back with exponential backoff until the attempt cap.
func (d *Dispatcher) deliver(ctx context.Context, msg *store.ScheduledMessage, now time.Time) {
	lead, err := d.directory.GetLead(ctx, msg.LeadID)
	if err != nil {
		d.fail(ctx, msg, now, fmt.Sprintf("lead lookup failed: %s", err.Error()), IsRetryableError(err))
		return
	}
	if lead.Email == "" {
		d.fail(ctx, msg, now, fmt.Sprintf("lead %s has no email address", lead.ID), false)
		return
	}

	_, err = d.transport.Send(ctx, steps.OutboundMessage{
		To:      lead.Email,
		Subject: msg.Subject,
		Body:    msg.Body,
	})
	if err != nil {
		d.fail(ctx, msg, now, err.Error(), IsRetryableError(err))
		return
	}

	if err := d.source.MarkDelivered(ctx, msg.ID); err != nil {
		d.logger.Warn("delivered message could not be marked",
			slog.Int64("message_id", msg.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	d.logger.Info("scheduled message delivered",
		slog.Int64("message_id", msg.ID),
		slog.String("lead_id", msg.LeadID),
	)
}

func (d *Dispatcher) fail(ctx context.Context, msg *store.ScheduledMessage, now time.Time, reason string, retryable bool) {
	var retryAt *time.Time
	if retryable && msg.Attempts+1 < d.config.MaxAttempts {
		at := now.Add(ComputeBackoff(retryBaseDelay, retryMaxDelay, msg.Attempts))
		retryAt = &at
	}

	if err := d.source.MarkFailed(ctx, msg.ID, reason, retryAt); err != nil {
		d.logger.Error("failed message could not be marked",
			slog.Int64("message_id", msg.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	if retryAt != nil {
		d.logger.Warn("delivery failed, retry scheduled",
			slog.Int64("message_id", msg.ID),
			slog.Time("retry_at", *retryAt),
			slog.String("reason", reason),
		)
	} else {
		d.logger.Error("delivery failed permanently",
			slog.Int64("message_id", msg.ID),
			slog.String("reason", reason),
		)
	}
}

// tryAcquire returns true and marks the message in-flight if it is not
// already delivering.
func (d *Dispatcher) tryAcquire(id int64) bool {
	d.inflightMu.Lock()
	defer d.inflightMu.Unlock()
	if _, ok := d.inflight[id]; ok {
		return false
	}
	d.inflight[id] = struct{}{}
	return true
}

func (d *Dispatcher) release(id int64) {
	d.inflightMu.Lock()
	defer d.inflightMu.Unlock()
	delete(d.inflight, id)
}

// Stop gracefully shuts down the delivery loop and the campaign cron.
func (d *Dispatcher) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cancel == nil {
		return nil
	}

	<-d.cron.Stop().Done()
	d.cancel()
	<-d.done
	d.cancel = nil
	d.done = nil

	d.logger.Info("dispatcher stopped")
	return nil
}
