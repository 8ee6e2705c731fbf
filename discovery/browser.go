// Package discovery watches the local network for printers announcing
// themselves over mDNS/DNS-SD and turns each advertisement into a record
// candidate ready to hand to the printers facade.
package discovery

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
)

// Logger interface for discovery operations. A nil logger disables logging.
type Logger interface {
	Error(msg string, context ...interface{})
	Warn(msg string, context ...interface{})
	Info(msg string, context ...interface{})
	Debug(msg string, context ...interface{})
}

// Config controls what the browser listens for
type Config struct {
	ServiceTypes []string      // DNS-SD service types to browse
	Domain       string        // browse domain, "local." when empty
	Timeout      time.Duration // window for a one-shot Discover scan
}

const (
	defaultDomain  = "local."
	defaultTimeout = 15 * time.Second
)

var defaultServiceTypes = []string{"_octoprint._tcp"}

func (c Config) withDefaults() Config {
	if len(c.ServiceTypes) == 0 {
		c.ServiceTypes = defaultServiceTypes
	}
	if c.Domain == "" {
		c.Domain = defaultDomain
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	return c
}

// Browser watches for printer advertisements until stopped. Each service
// instance is reported to the callback once; re-announcements refresh the
// stored candidate without firing the callback again. Known returns
// everything seen so far.
type Browser struct {
	config      Config
	onCandidate func(Candidate)
	logger      Logger

	mu      sync.Mutex
	known   map[string]Candidate
	running bool
	cancel  context.CancelFunc

	wg sync.WaitGroup
}

// NewBrowser creates a browser. The callback may be nil for pull-only use
// through Known; the logger may be nil.
func NewBrowser(config Config, onCandidate func(Candidate), logger Logger) *Browser {
	return &Browser{
		config:      config.withDefaults(),
		onCandidate: onCandidate,
		logger:      logger,
		known:       make(map[string]Candidate),
	}
}

// Start begins browsing on all configured service types
func (b *Browser) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return fmt.Errorf("browser already running")
	}

	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.running = true

	for _, serviceType := range b.config.ServiceTypes {
		b.wg.Add(1)
		go b.browse(ctx, serviceType)
	}
	return nil
}

// Stop ends browsing and waits for the browse goroutines to exit
func (b *Browser) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	cancel := b.cancel
	b.mu.Unlock()

	cancel()
	b.wg.Wait()
}

// browse runs one service type until the context is canceled
func (b *Browser) browse(ctx context.Context, serviceType string) {
	defer b.wg.Done()

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		if b.logger != nil {
			b.logger.Error("Failed to create mDNS resolver", "service", serviceType, "error", err)
		}
		return
	}

	entries := make(chan *zeroconf.ServiceEntry)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-entries:
				if !ok {
					return
				}
				if entry != nil {
					b.handleEntry(entry, serviceType)
				}
			}
		}
	}()

	if b.logger != nil {
		b.logger.Info("Browsing for printers", "service", serviceType, "domain", b.config.Domain)
	}
	// Browse keeps listening until ctx is canceled, then closes entries
	if err := resolver.Browse(ctx, serviceType, b.config.Domain, entries); err != nil {
		if b.logger != nil {
			b.logger.Warn("mDNS browse failed", "service", serviceType, "error", err)
		}
	}
}

func (b *Browser) handleEntry(entry *zeroconf.ServiceEntry, serviceType string) {
	candidate := CandidateFromEntry(entry, serviceType)

	key := serviceType + "/" + candidate.Name
	b.mu.Lock()
	_, seen := b.known[key]
	b.known[key] = candidate
	b.mu.Unlock()
	if seen {
		return
	}

	if b.logger != nil {
		b.logger.Debug("Discovered printer service",
			"name", candidate.Name, "hostname", candidate.Hostname, "port", candidate.Port)
	}
	if b.onCandidate != nil {
		b.onCandidate(candidate)
	}
}

// Known returns the candidates seen so far, sorted by name then service type
func (b *Browser) Known() []Candidate {
	b.mu.Lock()
	defer b.mu.Unlock()

	known := make([]Candidate, 0, len(b.known))
	for _, candidate := range b.known {
		known = append(known, candidate)
	}
	sort.Slice(known, func(i, j int) bool {
		if known[i].Name != known[j].Name {
			return known[i].Name < known[j].Name
		}
		return known[i].ServiceType < known[j].ServiceType
	})
	return known
}

// Discover runs a single bounded scan and returns everything found. The
// continuous Browser suits background use; this is the "scan for printers"
// entry point.
func Discover(ctx context.Context, config Config, logger Logger) ([]Candidate, error) {
	config = config.withDefaults()

	ctx, cancel := context.WithTimeout(ctx, config.Timeout)
	defer cancel()

	browser := NewBrowser(config, nil, logger)
	if err := browser.Start(); err != nil {
		return nil, err
	}
	<-ctx.Done()
	browser.Stop()

	return browser.Known(), nil
}
