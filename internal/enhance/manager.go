package enhance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"spectral/internal/config"
	"spectral/internal/encounter"
	"spectral/internal/logging"
	"spectral/internal/services"
	"spectral/internal/store"
	"spectral/internal/workqueue"
)

// Manager runs the enhancement pipeline off the work queue.
type Manager struct {
	store *store.Store
	queue *workqueue.Queue
	log   *slog.Logger

	narrative    *NarrativeStage
	illustration *IllustrationStage
	narration    *NarrationStage
	publish      *PublishStage

	pollInterval       time.Duration
	errorRetryInterval time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewManager wires the four pipeline stages to the store and queue.
func NewManager(
	cfg *config.Config,
	st *store.Store,
	queue *workqueue.Queue,
	narrative *NarrativeStage,
	illustration *IllustrationStage,
	narration *NarrationStage,
	publish *PublishStage,
	logger *slog.Logger,
) *Manager {
	return &Manager{
		store:              st,
		queue:              queue,
		log:                componentLogger(logger, "enhance.manager"),
		narrative:          narrative,
		illustration:       illustration,
		narration:          narration,
		publish:            publish,
		pollInterval:       time.Duration(cfg.Enhancer.QueuePollInterval) * time.Second,
		errorRetryInterval: time.Duration(cfg.Enhancer.ErrorRetryInterval) * time.Second,
	}
}

// Start begins background processing.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("enhancement manager already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(1)
	m.mu.Unlock()

	go m.run(runCtx)
	return nil
}

// Stop terminates background processing and waits for completion.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if reclaimed, err := m.queue.ReclaimExpired(ctx); err != nil {
			m.log.WarnContext(ctx, "reclaim expired leases failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "queue_reclaim_failed"))
		} else if reclaimed > 0 {
			m.log.InfoContext(ctx, "reclaimed expired leases",
				logging.Int64("count", reclaimed))
		}

		msg, err := m.queue.Receive(ctx)
		if err != nil {
			m.handleReceiveError(ctx, err)
			continue
		}
		if msg == nil {
			m.waitForMessageOrShutdown(ctx)
			continue
		}

		if err := m.Process(ctx, msg); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
		}
	}
}

func (m *Manager) handleReceiveError(ctx context.Context, err error) {
	m.log.ErrorContext(ctx, "failed to receive queue message",
		logging.Error(err),
		logging.String(logging.FieldEventType, "queue_receive_failed"),
		logging.String(logging.FieldErrorHint, "check queue database access"))
	select {
	case <-ctx.Done():
	case <-time.After(m.errorRetryInterval):
	}
}

func (m *Manager) waitForMessageOrShutdown(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(m.pollInterval):
	}
}

// Process runs one message through the full pipeline. Exported so tests and
// synchronous callers can drive the pipeline without the poll loop.
func (m *Manager) Process(ctx context.Context, msg *workqueue.Message) error {
	id := msg.Payload.EncounterID
	ctx = services.WithEncounterID(ctx, id)
	log := m.log.With(logging.String(logging.FieldEncounterID, id))

	enc, err := m.store.GetEncounter(ctx, id)
	if err != nil {
		log.ErrorContext(ctx, "load encounter failed", logging.Error(err))
		return m.queue.Fail(ctx, msg.ID, fmt.Sprintf("load encounter: %v", err))
	}
	if enc == nil {
		log.WarnContext(ctx, "encounter vanished, dropping message")
		return m.queue.Ack(ctx, msg.ID)
	}

	moved, err := m.store.UpdateStatusIf(ctx, id, encounter.StatusEnhancing,
		encounter.StatusApproved, encounter.StatusEnhancementFailed)
	if err != nil {
		log.ErrorContext(ctx, "move to enhancing failed", logging.Error(err))
		return m.queue.Fail(ctx, msg.ID, fmt.Sprintf("move to enhancing: %v", err))
	}
	if !moved {
		// A redelivered message for an encounter still marked enhancing is
		// crash recovery: the previous worker died mid-pipeline. Re-running
		// the pipeline is safe because every output is written to a
		// deterministic key and publish is conditional.
		if enc.Status == encounter.StatusEnhancing && msg.DeliveryCount > 1 {
			log.InfoContext(ctx, "resuming enhancement after redelivery",
				logging.Int("delivery_count", msg.DeliveryCount))
		} else {
			log.InfoContext(ctx, "enhancement not applicable, dropping message",
				logging.String("status", string(enc.Status)))
			return m.queue.Ack(ctx, msg.ID)
		}
	}

	narrative, err := m.narrative.Run(ctx, msg.Payload)
	if err != nil {
		return m.failEnhancement(ctx, log, msg, err)
	}

	illustrations, err := m.illustration.Run(ctx, id, narrative, msg.Payload.Address)
	if err != nil {
		return m.failEnhancement(ctx, log, msg, err)
	}

	narrationKey, err := m.narration.Run(ctx, id, narrative)
	if err != nil {
		return m.failEnhancement(ctx, log, msg, err)
	}

	if err := m.publish.Run(ctx, id, narrative, illustrations, narrationKey); err != nil {
		return m.failEnhancement(ctx, log, msg, err)
	}

	if err := m.queue.Ack(ctx, msg.ID); err != nil {
		log.ErrorContext(ctx, "ack failed after publish", logging.Error(err))
		return err
	}
	log.InfoContext(ctx, "encounter enhanced",
		logging.Int("illustrations", len(illustrations)),
		logging.String(logging.FieldEventType, "enhancement_complete"))
	return nil
}

// failEnhancement records the failure on the encounter and fails the message
// back to the queue so its redelivery/dead-letter policy applies.
func (m *Manager) failEnhancement(ctx context.Context, log *slog.Logger, msg *workqueue.Message, cause error) error {
	if errors.Is(cause, context.Canceled) {
		// Shutdown mid-pipeline: leave the lease to expire so another worker
		// picks the message up, and leave the status for crash recovery.
		return context.Canceled
	}

	id := msg.Payload.EncounterID
	reason := cause.Error()
	log.ErrorContext(ctx, "enhancement failed",
		logging.Error(cause),
		logging.String(logging.FieldEventType, "enhancement_failed"))

	if _, err := m.store.MarkEnhancementFailed(ctx, id, reason); err != nil {
		log.ErrorContext(ctx, "record enhancement failure failed", logging.Error(err))
	}
	if err := m.queue.Fail(ctx, msg.ID, reason); err != nil {
		log.ErrorContext(ctx, "fail queue message failed", logging.Error(err))
		return err
	}
	return cause
}
