// Package sropts parses the strategy options map (spec.md §6) shared by
// every compaction strategy, plus the per-strategy extensions.
//
// Reference: teacher internal/options (ReadOptionsFile/ParseOptionsFile
// parsing style: typed accessors over a flat key/value source) and
// ScyllaDB compaction_strategy_impl::compaction_strategy_impl /
// property_definitions::to_double / to_long (unknown keys rejected,
// bad values are a construction-time error, never a runtime one —
// spec.md §7 "Configuration invalid — fatal before start; never
// during").
package sropts

import (
	"fmt"
	"strconv"
	"strings"
)

// Class selects which concrete strategy to build.
type Class string

const (
	ClassSizeTiered Class = "SizeTieredCompactionStrategy"
	ClassLeveled    Class = "LeveledCompactionStrategy"
	ClassTimeWindow Class = "TimeWindowCompactionStrategy"
)

// Common holds the option set every strategy shares (spec.md §4.1, §6).
type Common struct {
	Class                       Class
	MinThreshold                int
	MaxThreshold                int
	TombstoneThreshold          float64
	TombstoneCompactionInterval int64 // seconds
}

// DefaultCommon returns the spec's defaults.
func DefaultCommon() Common {
	return Common{
		Class:                       ClassSizeTiered,
		MinThreshold:                4,
		MaxThreshold:                32,
		TombstoneThreshold:          0.2,
		TombstoneCompactionInterval: 86400,
	}
}

// Map is the raw option source: map of string to string, as the CQL
// layer (out of scope) hands it to this module.
type Map map[string]string

// knownKeys is the union of every key recognized by ParseCommon plus the
// per-strategy keys in stcs.go/lcs.go/twcs.go. Every parser validates
// against this one union set, so "unknown keys rejected" (spec.md §6)
// means unknown to all three strategies, not just the common keys.
var knownKeys = map[string]bool{
	"class":                           true,
	"min_threshold":                   true,
	"max_threshold":                   true,
	"tombstone_threshold":             true,
	"tombstone_compaction_interval":   true,
	"min_sstable_size":                true,
	"bucket_low":                      true,
	"bucket_high":                     true,
	"sstable_size_in_mb":              true,
	"timestamp_resolution":            true,
	"compaction_window_unit":          true,
	"compaction_window_size":          true,
}

// ValidateKeys rejects any key in m not present in the known set
// (spec.md §6: "unknown keys rejected").
func ValidateKeys(m Map) error {
	for k := range m {
		if !knownKeys[k] {
			return fmt.Errorf("sropts: unknown option %q", k)
		}
	}
	return nil
}

// ParseCommon parses the shared fields, falling back to defaults for
// anything absent. It does not validate keys; callers validate once
// against the full known-key set via ValidateKeys.
func ParseCommon(m Map) (Common, error) {
	c := DefaultCommon()
	if v, ok := m["class"]; ok {
		c.Class = Class(v)
	}
	var err error
	if c.MinThreshold, err = toInt(m, "min_threshold", c.MinThreshold); err != nil {
		return c, err
	}
	if c.MaxThreshold, err = toInt(m, "max_threshold", c.MaxThreshold); err != nil {
		return c, err
	}
	if c.TombstoneThreshold, err = toFloat(m, "tombstone_threshold", c.TombstoneThreshold); err != nil {
		return c, err
	}
	if c.TombstoneCompactionInterval, err = toInt64(m, "tombstone_compaction_interval", c.TombstoneCompactionInterval); err != nil {
		return c, err
	}
	if c.MinThreshold <= 0 || c.MaxThreshold < c.MinThreshold {
		return c, fmt.Errorf("sropts: invalid threshold bounds min=%d max=%d", c.MinThreshold, c.MaxThreshold)
	}
	return c, nil
}

func toInt(m Map, key string, def int) (int, error) {
	v, ok := m[key]
	if !ok || strings.TrimSpace(v) == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def, fmt.Errorf("sropts: option %q: %w", key, err)
	}
	return n, nil
}

func toInt64(m Map, key string, def int64) (int64, error) {
	v, ok := m[key]
	if !ok || strings.TrimSpace(v) == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return def, fmt.Errorf("sropts: option %q: %w", key, err)
	}
	return n, nil
}

func toFloat(m Map, key string, def float64) (float64, error) {
	v, ok := m[key]
	if !ok || strings.TrimSpace(v) == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return def, fmt.Errorf("sropts: option %q: %w", key, err)
	}
	return f, nil
}
