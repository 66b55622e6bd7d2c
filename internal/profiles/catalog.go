package profiles

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Catalog is the queryable vendor profile table. Lookups never fail: unknown
// vendors fall back to the generic profile so every device has something to try.
type Catalog struct {
	mu       sync.RWMutex
	profiles map[string]Profile
	oui      map[string]string
	priority map[string][]Kind
	log      zerolog.Logger
}

func NewCatalog(log zerolog.Logger) *Catalog {
	c := &Catalog{
		profiles: make(map[string]Profile, len(builtin)),
		oui:      make(map[string]string, len(builtinOUI)),
		priority: make(map[string][]Kind, len(builtinPriority)),
		log:      log.With().Str("component", "profiles").Logger(),
	}
	for k, v := range builtin {
		c.profiles[k] = v
	}
	for k, v := range builtinOUI {
		c.oui[k] = v
	}
	for k, v := range builtinPriority {
		c.priority[k] = v
	}
	return c
}

// Get returns the profile for a vendor id, or the generic profile.
func (c *Catalog) Get(vendorID string) Profile {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if p, ok := c.profiles[strings.ToLower(vendorID)]; ok {
		return p
	}
	return c.profiles["generic"]
}

// Vendors lists the known vendor ids, sorted.
func (c *Catalog) Vendors() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.profiles))
	for k := range c.profiles {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// DetectVendorFromMAC maps a hardware address to a vendor id via the OUI
// prefix table. Accepts any common MAC notation.
func (c *Catalog) DetectVendorFromMAC(mac string) (string, bool) {
	norm := strings.ToUpper(strings.NewReplacer(":", "", "-", "", ".", "").Replace(mac))
	if len(norm) < 6 {
		return "", false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.oui[norm[:6]]
	return v, ok
}

// PriorityOrder returns the connection-kind order to try for a vendor.
func (c *Catalog) PriorityOrder(vendorID string) []Kind {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if p, ok := c.priority[strings.ToLower(vendorID)]; ok {
		return append([]Kind(nil), p...)
	}
	return append([]Kind(nil), defaultPriority...)
}

// Expand is the catalog-level convenience around ExpandURLs: vendor lookup
// plus template expansion in one call.
func (c *Catalog) Expand(vendorID, ip, username, password string, channel, streamIdx int) CandidateURLs {
	return ExpandURLs(c.Get(vendorID), ip, username, password, channel, streamIdx)
}

type overlayFile struct {
	Profiles map[string]Profile  `yaml:"profiles"`
	OUI      map[string]string   `yaml:"oui"`
	Priority map[string][]string `yaml:"priority"`
}

// LoadOverlay merges a YAML profile overlay into the catalog. Overlay entries
// replace built-ins of the same id.
func (c *Catalog) LoadOverlay(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read overlay: %w", err)
	}
	var f overlayFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parse overlay: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for id, p := range f.Profiles {
		c.profiles[strings.ToLower(id)] = p
	}
	for prefix, vendor := range f.OUI {
		norm := strings.ToUpper(strings.NewReplacer(":", "", "-", "").Replace(prefix))
		c.oui[norm] = strings.ToLower(vendor)
	}
	for id, kinds := range f.Priority {
		order := make([]Kind, 0, len(kinds))
		for _, k := range kinds {
			order = append(order, Kind(k))
		}
		c.priority[strings.ToLower(id)] = order
	}
	c.log.Info().Str("path", path).Int("profiles", len(f.Profiles)).Msg("profile overlay loaded")
	return nil
}

// Watch reloads the overlay whenever the file changes. Blocks until stop is
// closed; run it in its own goroutine.
func (c *Catalog) Watch(path string, stop <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := c.LoadOverlay(path); err != nil {
				c.log.Warn().Err(err).Msg("overlay reload failed, keeping previous profiles")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			c.log.Warn().Err(err).Msg("overlay watcher error")
		case <-stop:
			return nil
		}
	}
}
