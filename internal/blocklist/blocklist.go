// Package blocklist holds the enforcement set: domains and extension
// identifiers whose traffic is rejected outright. Blocks persist until
// explicitly removed; there is no expiry.
package blocklist

import (
	"net"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Seed holds the raw yaml shape of a blocklist seed file.
type Seed struct {
	Domains    []string `yaml:"domains"`
	Extensions []string `yaml:"extensions"`
}

// Blocklist is a mutable set of blocked domains and extension ids.
// Reads and writes observe a consistent snapshot; no request sees a
// half-applied block.
type Blocklist struct {
	mu         sync.RWMutex
	domains    map[string]struct{}
	extensions map[string]struct{}
}

// New creates an empty Blocklist.
func New() *Blocklist {
	return &Blocklist{
		domains:    make(map[string]struct{}),
		extensions: make(map[string]struct{}),
	}
}

// Load reads a blocklist seed from a YAML file. A missing file yields an
// empty blocklist; an empty path too.
func Load(path string) (*Blocklist, error) {
	b := New()
	if path == "" {
		return b, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return b, nil
		}
		return nil, err
	}

	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, err
	}
	b.Apply(seed)
	return b, nil
}

// Apply adds every entry of a seed to the set.
func (b *Blocklist) Apply(seed Seed) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, d := range seed.Domains {
		if d = BareHost(d); d != "" {
			b.domains[d] = struct{}{}
		}
	}
	for _, e := range seed.Extensions {
		if e != "" {
			b.extensions[e] = struct{}{}
		}
	}
}

// Replace swaps the entire set for the seed's contents. Used by hot-reload.
func (b *Blocklist) Replace(seed Seed) {
	b.mu.Lock()
	b.domains = make(map[string]struct{})
	b.extensions = make(map[string]struct{})
	b.mu.Unlock()
	b.Apply(seed)
}

// Block adds a domain. Empty input is a no-op.
func (b *Blocklist) Block(domain string) {
	domain = BareHost(domain)
	if domain == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.domains[domain] = struct{}{}
}

// Unblock removes a domain. Unknown or empty input is a no-op.
func (b *Blocklist) Unblock(domain string) {
	domain = BareHost(domain)
	if domain == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.domains, domain)
}

// IsBlocked reports whether the host's bare name (port stripped) is blocked.
func (b *Blocklist) IsBlocked(host string) bool {
	host = BareHost(host)
	if host == "" {
		return false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.domains[host]
	return ok
}

// BlockExtension records an extension-level block, keyed by the opaque
// extension id. Empty input is a no-op.
func (b *Blocklist) BlockExtension(id string) {
	if id == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.extensions[id] = struct{}{}
}

// UnblockExtension removes an extension-level block.
func (b *Blocklist) UnblockExtension(id string) {
	if id == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.extensions, id)
}

// IsExtensionBlocked reports whether the extension id is blocked.
func (b *Blocklist) IsExtensionBlocked(id string) bool {
	if id == "" {
		return false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.extensions[id]
	return ok
}

// Snapshot returns the current contents, sorted, for serialization.
func (b *Blocklist) Snapshot() Seed {
	b.mu.RLock()
	defer b.mu.RUnlock()
	seed := Seed{
		Domains:    make([]string, 0, len(b.domains)),
		Extensions: make([]string, 0, len(b.extensions)),
	}
	for d := range b.domains {
		seed.Domains = append(seed.Domains, d)
	}
	for e := range b.extensions {
		seed.Extensions = append(seed.Extensions, e)
	}
	sort.Strings(seed.Domains)
	sort.Strings(seed.Extensions)
	return seed
}

// BareHost strips any port suffix and surrounding space, lowercasing the
// result: "Evil.IO:8443" becomes "evil.io".
func BareHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	} else if strings.Count(host, ":") == 1 {
		// SplitHostPort errors on a missing or empty port; a single colon
		// still means a port suffix to strip. More than one colon without
		// brackets is a bare IPv6 literal, left intact.
		host = host[:strings.Index(host, ":")]
	}
	return strings.TrimSpace(strings.Trim(host, "[]"))
}
