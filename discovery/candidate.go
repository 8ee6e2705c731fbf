package discovery

import (
	"net"
	"strconv"
	"strings"

	"github.com/grandcat/zeroconf"

	"printdock/storage"
)

// Candidate is one discovered printer advertisement, parsed just far enough
// to prefill a record. It carries no live connection state.
type Candidate struct {
	Name        string            `json:"name"`      // service instance, usually the printer's display name
	Hostname    string            `json:"hostname"`  // advertised host with the trailing dot trimmed
	Port        int               `json:"port"`
	ServiceType string            `json:"service_type"`
	Addresses   []string          `json:"addresses"` // IPv4 first, then IPv6
	Text        map[string]string `json:"text,omitempty"`
}

// CandidateFromEntry converts a raw DNS-SD entry into a Candidate.
func CandidateFromEntry(entry *zeroconf.ServiceEntry, serviceType string) Candidate {
	candidate := Candidate{
		Name:        entry.Instance,
		Hostname:    strings.TrimSuffix(entry.HostName, "."),
		Port:        entry.Port,
		ServiceType: serviceType,
		Text:        parseTXT(entry.Text),
	}
	for _, addr := range entry.AddrIPv4 {
		candidate.Addresses = append(candidate.Addresses, addr.String())
	}
	for _, addr := range entry.AddrIPv6 {
		candidate.Addresses = append(candidate.Addresses, addr.String())
	}
	return candidate
}

// parseTXT splits DNS-SD TXT items into a map. Keys are case-insensitive
// per RFC 6763 and are lowercased; a bare key maps to the empty string.
func parseTXT(items []string) map[string]string {
	if len(items) == 0 {
		return nil
	}
	txt := make(map[string]string, len(items))
	for _, item := range items {
		if item == "" {
			continue
		}
		key, value, _ := strings.Cut(item, "=")
		txt[strings.ToLower(key)] = value
	}
	return txt
}

// Host returns the best connection target: the advertised hostname when
// present, otherwise the first address.
func (c Candidate) Host() string {
	if c.Hostname != "" {
		return c.Hostname
	}
	if len(c.Addresses) > 0 {
		return c.Addresses[0]
	}
	return ""
}

// Printer prefills a record from the advertisement. Position, credentials
// and the default flag are the caller's to fill in; capability flags keep
// their defaults until live probing overwrites them.
func (c Candidate) Printer() *storage.Printer {
	host := c.Host()
	if host != "" && c.Port != 0 && c.Port != 80 && c.Port != 443 {
		host = net.JoinHostPort(host, strconv.Itoa(c.Port))
	}
	name := c.Name
	if name == "" {
		name = c.Host()
	}
	return storage.NewPrinter(name, host, "")
}
