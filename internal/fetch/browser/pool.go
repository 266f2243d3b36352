// Package browser manages a pool of headless Chrome instances used by the
// Stealth Fetcher (C6) to render listing pages.
package browser

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/oklog/ulid/v2"

	"github.com/falense/PriceTracker-sub001/internal/config"
)

var (
	// ErrPoolClosed is returned when trying to use a closed pool.
	ErrPoolClosed = errors.New("browser pool is closed")
)

// ManagedBrowser wraps a rod.Browser with the pool's bookkeeping.
type ManagedBrowser struct {
	ID           string
	Browser      *rod.Browser
	InUse        bool
	CreatedAt    time.Time
	LastUsedAt   time.Time
	RequestCount int
}

// Pool manages a set of browser instances shared across the worker pool's
// concurrent fetches, recycling them by age and request count.
type Pool struct {
	mu       sync.RWMutex
	browsers map[string]*ManagedBrowser
	waiting  []chan *ManagedBrowser
	cfg      config.FetcherConfig
	logger   *slog.Logger
	closed   bool

	ready     bool
	readyChan chan struct{}
}

// NewPool creates a new, not-yet-warmed browser pool.
func NewPool(cfg config.FetcherConfig, logger *slog.Logger) *Pool {
	return &Pool{
		browsers:  make(map[string]*ManagedBrowser),
		waiting:   make([]chan *ManagedBrowser, 0),
		cfg:       cfg,
		logger:    logger,
		readyChan: make(chan struct{}),
	}
}

// Ready reports whether Warmup has completed.
func (p *Pool) Ready() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ready
}

// WaitReady blocks until the pool is ready or ctx is cancelled.
func (p *Pool) WaitReady(ctx context.Context) error {
	select {
	case <-p.readyChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Warmup ensures a Chromium binary is available and optionally pre-creates
// browsers so the first fetch doesn't pay the launch cost.
func (p *Pool) Warmup(ctx context.Context, preCreate int) error {
	p.logger.Info("warming up browser pool")

	if p.cfg.ChromePath == "" {
		browserPath, err := launcher.NewBrowser().Get()
		if err != nil {
			return err
		}
		p.logger.Info("chromium ready", "path", browserPath)
	} else {
		p.logger.Info("using custom chrome path", "path", p.cfg.ChromePath)
	}

	if preCreate > p.cfg.BrowserPoolSize {
		preCreate = p.cfg.BrowserPoolSize
	}
	for i := 0; i < preCreate; i++ {
		b, err := p.createBrowser()
		if err != nil {
			return err
		}
		b.InUse = false
		p.mu.Lock()
		p.browsers[b.ID] = b
		p.mu.Unlock()
	}

	p.mu.Lock()
	p.ready = true
	close(p.readyChan)
	p.mu.Unlock()
	return nil
}

// Acquire returns an available browser, creating one if the pool has spare
// capacity, or blocks until one is released.
func (p *Pool) Acquire(ctx context.Context) (*ManagedBrowser, error) {
	p.mu.Lock()

	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}

	for _, b := range p.browsers {
		if !b.InUse && p.isHealthy(b) {
			b.InUse = true
			b.LastUsedAt = time.Now()
			p.mu.Unlock()
			return b, nil
		}
	}

	if len(p.browsers) < p.cfg.BrowserPoolSize {
		b, err := p.createBrowser()
		if err != nil {
			p.mu.Unlock()
			return nil, err
		}
		p.browsers[b.ID] = b
		p.mu.Unlock()
		return b, nil
	}

	waitCh := make(chan *ManagedBrowser, 1)
	p.waiting = append(p.waiting, waitCh)
	p.mu.Unlock()

	select {
	case b := <-waitCh:
		if b == nil {
			return nil, ErrPoolClosed
		}
		return b, nil
	case <-ctx.Done():
		p.mu.Lock()
		for i, ch := range p.waiting {
			if ch == waitCh {
				p.waiting = append(p.waiting[:i], p.waiting[i+1:]...)
				break
			}
		}
		p.mu.Unlock()
		return nil, ctx.Err()
	}
}

// Release returns a browser to the pool, recycling it if it has aged out.
func (p *Pool) Release(b *ManagedBrowser) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		p.closeBrowser(b)
		return
	}

	b.InUse = false
	b.RequestCount++
	b.LastUsedAt = time.Now()

	if p.needsRecycle(b) {
		p.recycleBrowser(b)
		return
	}

	if len(p.waiting) > 0 {
		waitCh := p.waiting[0]
		p.waiting = p.waiting[1:]
		b.InUse = true
		b.LastUsedAt = time.Now()
		waitCh <- b
	}
}

// Close shuts down every browser in the pool and rejects further Acquires.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for _, b := range p.browsers {
		p.closeBrowser(b)
	}
	p.browsers = make(map[string]*ManagedBrowser)
	for _, ch := range p.waiting {
		close(ch)
	}
	p.waiting = nil
}

// Stats reports pool occupancy for operator visibility.
type Stats struct {
	Total     int
	InUse     int
	Available int
	MaxSize   int
	Waiting   int
	Ready     bool
}

func (p *Pool) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s := Stats{Total: len(p.browsers), MaxSize: p.cfg.BrowserPoolSize, Waiting: len(p.waiting), Ready: p.ready}
	for _, b := range p.browsers {
		if b.InUse {
			s.InUse++
		} else {
			s.Available++
		}
	}
	return s
}

func (p *Pool) createBrowser() (*ManagedBrowser, error) {
	l := launcher.New()
	if p.cfg.ChromePath != "" {
		l = l.Bin(p.cfg.ChromePath)
	}
	l = l.
		Headless(true).
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-dev-shm-usage").
		Set("disable-gpu").
		Set("no-sandbox").
		Set("disable-setuid-sandbox").
		Set("disable-infobars").
		Set("disable-extensions").
		Set("disable-background-networking").
		Set("disable-background-timer-throttling").
		Set("disable-backgrounding-occluded-windows").
		Set("disable-renderer-backgrounding").
		Set("window-size", "1920,1080").
		Set("lang", "en-US,en")

	u, err := l.Launch()
	if err != nil {
		return nil, err
	}
	rb := rod.New().ControlURL(u)
	if err := rb.Connect(); err != nil {
		return nil, err
	}

	id := ulid.Make().String()
	p.logger.Info("browser created", "id", id)
	return &ManagedBrowser{
		ID:         id,
		Browser:    rb,
		InUse:      true,
		CreatedAt:  time.Now(),
		LastUsedAt: time.Now(),
	}, nil
}

func (p *Pool) isHealthy(b *ManagedBrowser) bool {
	if time.Since(b.CreatedAt) > p.cfg.BrowserMaxAge {
		return false
	}
	if b.RequestCount >= p.cfg.BrowserMaxRequests {
		return false
	}
	if !b.InUse && time.Since(b.LastUsedAt) > p.cfg.BrowserIdleTimeout {
		return false
	}
	defer func() { recover() }()
	_, err := b.Browser.Pages()
	return err == nil
}

func (p *Pool) needsRecycle(b *ManagedBrowser) bool {
	return time.Since(b.CreatedAt) > p.cfg.BrowserMaxAge || b.RequestCount >= p.cfg.BrowserMaxRequests
}

func (p *Pool) recycleBrowser(b *ManagedBrowser) {
	p.logger.Info("recycling browser", "id", b.ID, "age", time.Since(b.CreatedAt), "requests", b.RequestCount)
	p.closeBrowser(b)
	delete(p.browsers, b.ID)

	go func() {
		newBrowser, err := p.createBrowser()
		if err != nil {
			p.logger.Error("failed to create replacement browser", "error", err)
			return
		}
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.closed {
			p.closeBrowser(newBrowser)
			return
		}
		newBrowser.InUse = false
		p.browsers[newBrowser.ID] = newBrowser
		if len(p.waiting) > 0 {
			waitCh := p.waiting[0]
			p.waiting = p.waiting[1:]
			newBrowser.InUse = true
			newBrowser.LastUsedAt = time.Now()
			waitCh <- newBrowser
		}
	}()
}

func (p *Pool) closeBrowser(b *ManagedBrowser) {
	if b.Browser != nil {
		if err := b.Browser.Close(); err != nil {
			p.logger.Warn("error closing browser", "id", b.ID, "error", err)
		}
	}
	p.logger.Info("browser closed", "id", b.ID)
}

// StartCleanup runs until ctx is cancelled, periodically closing browsers
// that have sat idle past BrowserIdleTimeout.
func (p *Pool) StartCleanup(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.cleanupIdleBrowsers()
		}
	}
}

func (p *Pool) cleanupIdleBrowsers() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	var stale []string
	for id, b := range p.browsers {
		if !b.InUse && time.Since(b.LastUsedAt) > p.cfg.BrowserIdleTimeout {
			stale = append(stale, id)
		}
	}
	for _, id := range stale {
		b := p.browsers[id]
		p.closeBrowser(b)
		delete(p.browsers, id)
	}
}
