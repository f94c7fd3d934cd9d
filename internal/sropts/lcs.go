package sropts

import "fmt"

// LCS holds the Leveled-specific options (spec.md §4.3, §6).
type LCS struct {
	Common
	MaxSSTableSizeMB int
}

const defaultMaxSSTableSizeMB = 160

// ParseLCS parses the full LCS option set, common fields included.
func ParseLCS(m Map) (LCS, error) {
	if err := ValidateKeys(m); err != nil {
		return LCS{}, err
	}
	common, err := ParseCommon(m)
	if err != nil {
		return LCS{}, err
	}
	o := LCS{Common: common, MaxSSTableSizeMB: defaultMaxSSTableSizeMB}
	if o.MaxSSTableSizeMB, err = toInt(m, "sstable_size_in_mb", defaultMaxSSTableSizeMB); err != nil {
		return o, err
	}
	if o.MaxSSTableSizeMB <= 0 {
		return o, fmt.Errorf("sropts: invalid sstable_size_in_mb %d", o.MaxSSTableSizeMB)
	}
	return o, nil
}

// MaxSSTableBytes returns the configured target size in bytes.
func (o LCS) MaxSSTableBytes() uint64 {
	return uint64(o.MaxSSTableSizeMB) * 1024 * 1024
}
