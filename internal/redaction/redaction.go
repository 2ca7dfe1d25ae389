// Package redaction implements the two-pass redaction applied to every
// record leaving the search surface: key-based metadata masking and
// regex-based pattern masking over message/rawContent. Configuration
// reloads are lock-free for readers via a copy-on-write pointer swap.
package redaction

import (
	"regexp"
	"strings"
	"sync/atomic"
)

const defaultMask = "*****"

// Config is the redaction configuration: metadata keys to mask outright
// (case-insensitive) and regex patterns to mask wherever they match.
type Config struct {
	Enabled  bool
	Keys     []string
	Patterns []string
	Mask     string
}

func DefaultConfig() Config {
	return Config{
		Enabled: true,
		Keys:    []string{"password", "secret", "token", "apikey", "api_key", "private_key", "authorization"},
		Patterns: []string{
			`(?i)(api[_-]?key|apikey)["']?\s*[:=]\s*["']?([^"'\s,}]+)["']?`,
			`(?i)(secret|token|auth)["']?\s*[:=]\s*["']?([^"'\s,}]+)["']?`,
			`(?i)Bearer\s+[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`,
			`(?i)password["']?\s*[:=]\s*["']?([^"'\s,}]+)["']?`,
		},
		Mask: defaultMask,
	}
}

// compiled is the immutable, compiled form of a Config, swapped atomically
// on reload.
type compiled struct {
	source   Config // original config, for introspection endpoints
	enabled  bool
	keys     map[string]struct{}
	patterns []*regexp.Regexp
	mask     string
}

func compile(cfg Config) *compiled {
	mask := cfg.Mask
	if mask == "" {
		mask = defaultMask
	}
	keys := make(map[string]struct{}, len(cfg.Keys))
	for _, k := range cfg.Keys {
		keys[strings.ToLower(k)] = struct{}{}
	}
	patterns := make([]*regexp.Regexp, 0, len(cfg.Patterns))
	for _, p := range cfg.Patterns {
		if re, err := regexp.Compile(p); err == nil {
			patterns = append(patterns, re)
		}
	}
	return &compiled{source: cfg, enabled: cfg.Enabled, keys: keys, patterns: patterns, mask: mask}
}

// Redactor applies redaction rules to records and metadata maps. Safe for
// concurrent use; Reload swaps in a new compiled ruleset without locking readers.
type Redactor struct {
	current atomic.Pointer[compiled]
}

func New(cfg Config) *Redactor {
	r := &Redactor{}
	r.current.Store(compile(cfg))
	return r
}

// Reload atomically replaces the active configuration.
func (r *Redactor) Reload(cfg Config) {
	r.current.Store(compile(cfg))
}

// RedactString masks every pattern match in s.
func (r *Redactor) RedactString(s string) string {
	c := r.current.Load()
	if !c.enabled {
		return s
	}
	result := s
	for _, pattern := range c.patterns {
		result = pattern.ReplaceAllString(result, c.mask)
	}
	return result
}

// RedactMetadata returns a copy of metadata with blocked keys masked.
// Non-blocklisted values pass through unchanged: pattern masking only
// applies to message/rawContent, not metadata.
func (r *Redactor) RedactMetadata(metadata map[string]string) map[string]string {
	c := r.current.Load()
	if !c.enabled || metadata == nil {
		return metadata
	}
	out := make(map[string]string, len(metadata))
	for k, v := range metadata {
		if _, blocked := c.keys[strings.ToLower(k)]; blocked {
			out[k] = c.mask
			continue
		}
		out[k] = v
	}
	return out
}

// Fields is the minimal shape of a record the redactor needs to mask:
// message, raw content, and metadata. Defined here (rather than imported
// from the record package) so redaction has no dependency on record's types.
type Fields struct {
	Message    string
	RawContent string
	Metadata   map[string]string
}

// Redact applies both passes and returns a redacted copy.
func (r *Redactor) Redact(f Fields) Fields {
	c := r.current.Load()
	if !c.enabled {
		return f
	}
	return Fields{
		Message:    r.RedactString(f.Message),
		RawContent: r.RedactString(f.RawContent),
		Metadata:   r.RedactMetadata(f.Metadata),
	}
}

// Enabled reports whether redaction is currently active.
func (r *Redactor) Enabled() bool {
	return r.current.Load().enabled
}

// Config returns the active configuration, e.g. for the `*/redaction/config`
// and `*/redaction/keys` REST endpoints.
func (r *Redactor) Config() Config {
	return r.current.Load().source
}
