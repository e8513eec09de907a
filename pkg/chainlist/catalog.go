// Package chainlist holds the static chain/RPC directory the engine selects
// providers from. The directory is produced offline and shipped as an
// embedded data file; at runtime it is read-only apart from the one-shot
// Prune during startup.
package chainlist

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed chains.yaml
var rawChains []byte

type directory struct {
	Chains []Chain `yaml:"chains"`
}

// Catalog is the loaded directory. Lookups are safe for concurrent use.
type Catalog struct {
	mu     sync.RWMutex
	chains []Chain
}

// Load parses the embedded directory.
func Load() (*Catalog, error) {
	return Parse(rawChains)
}

// Parse builds a catalog from a YAML directory dump. Exposed for tests and
// for callers that carry their own dump.
func Parse(data []byte) (*Catalog, error) {
	var dir directory
	if err := yaml.Unmarshal(data, &dir); err != nil {
		return nil, fmt.Errorf("parse chain directory: %w", err)
	}
	return &Catalog{chains: dir.Chains}, nil
}

// MustLoad is Load for program init paths where a broken embedded file is
// unrecoverable.
func MustLoad() *Catalog {
	c, err := Load()
	if err != nil {
		panic(err)
	}
	return c
}

// ChainInfo returns the name/tvl summary for a network.
func (c *Catalog) ChainInfo(id NetworkID) (ChainInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, ch := range c.chains {
		if ch.NetworkID == id {
			return ChainInfo{NetworkID: ch.NetworkID, Name: ch.Name, TVL: ch.TVL}, true
		}
	}
	return ChainInfo{}, false
}

// ExtraRPCs returns a copy of the directory RPCs for a network.
func (c *Catalog) ExtraRPCs(id NetworkID) []Rpc {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, ch := range c.chains {
		if ch.NetworkID == id {
			out := make([]Rpc, len(ch.RPCs))
			copy(out, ch.RPCs)
			return out
		}
	}
	return nil
}

// ChainsByTVL returns all chains ordered by descending TVL.
func (c *Catalog) ChainsByTVL() []ChainInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ChainInfo, 0, len(c.chains))
	for _, ch := range c.chains {
		out = append(out, ChainInfo{NetworkID: ch.NetworkID, Name: ch.Name, TVL: ch.TVL})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TVL > out[j].TVL })
	return out
}

// FindChainsByName returns chains whose name contains the search term,
// case-insensitively.
func (c *Catalog) FindChainsByName(name string) []ChainInfo {
	term := strings.ToLower(name)
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []ChainInfo
	for _, ch := range c.chains {
		if strings.Contains(strings.ToLower(ch.Name), term) {
			out = append(out, ChainInfo{NetworkID: ch.NetworkID, Name: ch.Name, TVL: ch.TVL})
		}
	}
	return out
}

// Prune drops every network not listed in retain. Used once during startup
// when the caller only serves a known set of networks.
func (c *Catalog) Prune(retain []NetworkID) {
	keep := make(map[NetworkID]struct{}, len(retain))
	for _, id := range retain {
		keep[id] = struct{}{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	filtered := c.chains[:0]
	for _, ch := range c.chains {
		if _, ok := keep[ch.NetworkID]; ok {
			filtered = append(filtered, ch)
		}
	}
	c.chains = filtered
}
