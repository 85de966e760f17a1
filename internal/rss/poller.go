package rss

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Poller runs scheduled refreshes over all active feeds.
type Poller struct {
	engine   *Engine
	interval time.Duration
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewPoller creates a background poller with the given refresh interval.
func NewPoller(engine *Engine, interval time.Duration) *Poller {
	return &Poller{
		engine:   engine,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start begins the polling loop.
func (p *Poller) Start() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			if _, err := p.engine.RefreshAll(ctx); err != nil {
				log.WithError(err).Error("scheduled refresh failed")
			}
			cancel()

			select {
			case <-p.stopChan:
				return
			case <-time.After(p.interval):
			}
		}
	}()
}

// Stop stops the poller and waits for an in-flight refresh to finish.
func (p *Poller) Stop() {
	close(p.stopChan)
	p.wg.Wait()
}
