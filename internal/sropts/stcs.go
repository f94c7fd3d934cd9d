package sropts

import "fmt"

// STCS holds the Size-Tiered-specific options (spec.md §4.2, §6).
type STCS struct {
	Common
	MinSSTableSize uint64 // bytes
	BucketLow      float64
	BucketHigh     float64
}

const (
	defaultMinSSTableSize = 50 * 1024 * 1024
	defaultBucketLow      = 0.5
	defaultBucketHigh     = 1.5
)

// ParseSTCS parses the full STCS option set, common fields included.
func ParseSTCS(m Map) (STCS, error) {
	if err := ValidateKeys(m); err != nil {
		return STCS{}, err
	}
	common, err := ParseCommon(m)
	if err != nil {
		return STCS{}, err
	}
	o := STCS{Common: common, MinSSTableSize: defaultMinSSTableSize, BucketLow: defaultBucketLow, BucketHigh: defaultBucketHigh}

	minSize, err := toInt64(m, "min_sstable_size", int64(defaultMinSSTableSize))
	if err != nil {
		return o, err
	}
	o.MinSSTableSize = uint64(minSize)

	if o.BucketLow, err = toFloat(m, "bucket_low", defaultBucketLow); err != nil {
		return o, err
	}
	if o.BucketHigh, err = toFloat(m, "bucket_high", defaultBucketHigh); err != nil {
		return o, err
	}
	if o.BucketLow <= 0 || o.BucketHigh < o.BucketLow {
		return o, fmt.Errorf("sropts: invalid bucket bounds low=%v high=%v", o.BucketLow, o.BucketHigh)
	}
	return o, nil
}
