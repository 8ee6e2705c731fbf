package discovery

import (
	"net"
	"sync"
	"testing"

	"github.com/grandcat/zeroconf"
)

func TestBrowserReportsEachInstanceOnce(t *testing.T) {
	var mu sync.Mutex
	var reported []Candidate

	browser := NewBrowser(Config{}, func(c Candidate) {
		mu.Lock()
		reported = append(reported, c)
		mu.Unlock()
	}, nil)

	entry := zeroconf.NewServiceEntry("Voron 2.4", "_octoprint._tcp", "local.")
	entry.HostName = "voron.local."
	entry.Port = 5000
	entry.AddrIPv4 = []net.IP{net.ParseIP("192.168.1.50")}

	browser.handleEntry(entry, "_octoprint._tcp")
	browser.handleEntry(entry, "_octoprint._tcp")

	mu.Lock()
	count := len(reported)
	mu.Unlock()
	if count != 1 {
		t.Fatalf("Expected one callback for a re-announced instance, got %d", count)
	}

	// A re-announcement with a new address refreshes the stored candidate
	// without firing the callback again
	entry.AddrIPv4 = []net.IP{net.ParseIP("192.168.1.60")}
	browser.handleEntry(entry, "_octoprint._tcp")

	known := browser.Known()
	if len(known) != 1 {
		t.Fatalf("Expected one known candidate, got %d", len(known))
	}
	if len(known[0].Addresses) != 1 || known[0].Addresses[0] != "192.168.1.60" {
		t.Errorf("Expected refreshed address, got %v", known[0].Addresses)
	}

	mu.Lock()
	count = len(reported)
	mu.Unlock()
	if count != 1 {
		t.Errorf("Expected refresh to stay silent, got %d callbacks", count)
	}
}

func TestBrowserTracksServiceTypesSeparately(t *testing.T) {
	browser := NewBrowser(Config{}, nil, nil)

	entry := zeroconf.NewServiceEntry("Voron 2.4", "_octoprint._tcp", "local.")
	browser.handleEntry(entry, "_octoprint._tcp")
	browser.handleEntry(entry, "_ipp._tcp")

	if got := len(browser.Known()); got != 2 {
		t.Errorf("Expected one candidate per service type, got %d", got)
	}
}

func TestBrowserKnownSorted(t *testing.T) {
	browser := NewBrowser(Config{}, nil, nil)

	for _, name := range []string{"zephyr", "Atlas", "mk3"} {
		entry := zeroconf.NewServiceEntry(name, "_octoprint._tcp", "local.")
		browser.handleEntry(entry, "_octoprint._tcp")
	}

	known := browser.Known()
	if len(known) != 3 || known[0].Name != "Atlas" || known[1].Name != "mk3" || known[2].Name != "zephyr" {
		names := make([]string, 0, len(known))
		for _, candidate := range known {
			names = append(names, candidate.Name)
		}
		t.Errorf("Expected byte-wise name order, got %v", names)
	}
}

func TestBrowserStartStop(t *testing.T) {
	browser := NewBrowser(Config{ServiceTypes: []string{"_octoprint._tcp"}}, nil, nil)

	if err := browser.Start(); err != nil {
		t.Fatalf("Failed to start browser: %v", err)
	}
	if err := browser.Start(); err == nil {
		t.Error("Expected error on double start")
	}

	browser.Stop()
	browser.Stop()
}
