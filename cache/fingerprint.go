// Package cache implements the content-addressed response cache.
//
// DESIGN: Cache keys are fingerprints of everything that affects a model's
// output and nothing else. Which request parameters count is declared per
// agent via an explicit include/exclude list rather than inferred: a tracing
// id accidentally folded into the key would silently kill the hit rate, and
// a voice parameter accidentally left out would serve the wrong audio.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// KeySpec declares which request parameters participate in an agent's cache
// fingerprint.
type KeySpec struct {
	// Namespace prefixes every fingerprint. Defaults to "agents".
	Namespace string `yaml:"namespace"`

	// IncludeParams are parameter names folded into the fingerprint
	// (voice, size, language, temperature, ...).
	IncludeParams []string `yaml:"include_params"`

	// ExcludeParams are parameter names declared output-irrelevant
	// (trace ids and similar). Listing a name in both lists is a
	// configuration error.
	ExcludeParams []string `yaml:"exclude_params"`
}

// Validate rejects specs that list a parameter as both included and excluded.
func (s *KeySpec) Validate() error {
	excluded := make(map[string]bool, len(s.ExcludeParams))
	for _, name := range s.ExcludeParams {
		excluded[name] = true
	}
	for _, name := range s.IncludeParams {
		if excluded[name] {
			return fmt.Errorf("cache: param %q is both included and excluded", name)
		}
	}
	return nil
}

const delimiter = ":"

// Fingerprint builds the deterministic cache key for a request. Included
// params are folded in sorted order so map iteration cannot perturb the key;
// params absent from the request contribute an empty value, so adding a
// param to a request and setting it to "" produce the same key.
func Fingerprint(spec KeySpec, agentType, agentVersion, model string, params map[string]string, input string) string {
	ns := spec.Namespace
	if ns == "" {
		ns = "agents"
	}

	parts := []string{ns, "cache", agentType, agentVersion, model}

	names := append([]string(nil), spec.IncludeParams...)
	sort.Strings(names)
	for _, name := range names {
		parts = append(parts, name+"="+params[name])
	}

	sum := sha256.Sum256([]byte(input))
	parts = append(parts, hex.EncodeToString(sum[:])[:32])

	return strings.Join(parts, delimiter)
}
