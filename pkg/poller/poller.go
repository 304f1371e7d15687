// Package poller reconciles the processed/unprocessed state of uploaded
// documents against the document service.
package poller

import (
	"context"
	"time"

	"github.com/otherjamesbrown/docchat-cli/pkg/documents"
	"github.com/otherjamesbrown/docchat-cli/pkg/logging"
	"github.com/otherjamesbrown/docchat-cli/pkg/observability"
)

// DefaultInterval is the default spacing between poll cycles.
const DefaultInterval = 3 * time.Second

// StatusFetcher returns the current record for one document.
type StatusFetcher interface {
	GetStatus(ctx context.Context, id string) (documents.Document, error)
}

// Poller periodically queries status for every known unprocessed document.
// Polling for a document stops the moment it becomes processed; when the
// unprocessed set drains, the loop exits entirely so no idle timers remain.
type Poller struct {
	collection *documents.Collection
	fetch      StatusFetcher
	interval   time.Duration
	log        logging.Logger
	tracer     *observability.Tracer

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a poller over the given collection.
func New(collection *documents.Collection, fetch StatusFetcher, interval time.Duration, log logging.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Poller{
		collection: collection,
		fetch:      fetch,
		interval:   interval,
		log:        log,
		tracer:     observability.NewTracer(),
	}
}

// Start launches the poll loop. It returns false without starting anything
// when the unprocessed set is already empty or a loop is running.
func (p *Poller) Start(ctx context.Context) bool {
	if p.done != nil {
		select {
		case <-p.done:
			// Previous loop finished; fall through and start a new one.
		default:
			return false
		}
	}
	if len(p.collection.Unprocessed()) == 0 {
		return false
	}

	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.loop(loopCtx)
	return true
}

// Stop halts the poll loop and waits for it to exit.
func (p *Poller) Stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
	p.cancel = nil
	p.done = nil
}

// Wait blocks until the loop exits on its own (unprocessed set drained) or
// the context is cancelled.
func (p *Poller) Wait(ctx context.Context) {
	if p.done == nil {
		return
	}
	select {
	case <-p.done:
	case <-ctx.Done():
	}
}

func (p *Poller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if remaining := p.PollOnce(ctx); remaining == 0 {
				p.log.Debug("all documents processed, polling stopped")
				return
			}
		}
	}
}

// PollOnce runs one reconciliation cycle and returns how many documents
// remain unprocessed. Per-document failures are logged and skipped; a bad
// cycle never stops future polling.
func (p *Poller) PollOnce(ctx context.Context) int {
	pending := p.collection.Unprocessed()
	if len(pending) == 0 {
		return 0
	}

	_, span := p.tracer.StartPollSpan(ctx, len(pending))
	defer observability.EndSpan(span)

	remaining := 0
	for _, id := range pending {
		doc, err := p.fetch.GetStatus(ctx, id)
		if err != nil {
			p.log.Warn("status poll failed, skipping cycle for document",
				logging.F("document_id", id),
				logging.Err(err))
			remaining++
			continue
		}

		if !doc.Processed {
			remaining++
			continue
		}

		// Transition: replace the record (and, inside the collection, the
		// selection reference when this document is selected).
		p.collection.Replace(doc)
		p.log.Info("document processed",
			logging.F("document_id", id),
			logging.F("chunks", doc.ChunkCount))
	}
	return remaining
}
