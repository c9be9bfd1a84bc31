package scanrunner

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// ScanProcessor performs the scan work for a scan id.
type ScanProcessor interface {
	Process(ctx context.Context, scanID string) error
}

// Pool runs accepted scans in the background with bounded concurrency.
// Dispatch never blocks the caller and never drops a scan: work beyond the
// limit waits for a free slot.
type Pool struct {
	ctx       context.Context
	processor ScanProcessor
	slots     chan struct{}
	wg        sync.WaitGroup
	log       *logrus.Entry
}

// NewPool starts a pool whose scans run under ctx. Canceling ctx interrupts
// in-flight scans; they are then finalized as failed by the processor.
func NewPool(ctx context.Context, processor ScanProcessor, concurrency int, log *logrus.Entry) *Pool {
	if concurrency < 1 {
		concurrency = 1
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Pool{
		ctx:       ctx,
		processor: processor,
		slots:     make(chan struct{}, concurrency),
		log:       log.WithField("component", "scanrunner"),
	}
}

func (p *Pool) Dispatch(scanID string) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		select {
		case p.slots <- struct{}{}:
			defer func() { <-p.slots }()
		case <-p.ctx.Done():
			// Still hand the scan over so it reaches a terminal state.
		}
		if err := p.processor.Process(p.ctx, scanID); err != nil {
			p.log.WithError(err).WithField("scan_id", scanID).Warn("scan did not complete")
		}
	}()
}

// Wait blocks until every dispatched scan has returned.
func (p *Pool) Wait() { p.wg.Wait() }
