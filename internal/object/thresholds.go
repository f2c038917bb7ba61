package object

import "sync/atomic"

// Thresholds governs the size/content limits at which compact
// encodings convert to their general counterpart. Transitions are
// one-way: once a collection is promoted to its general encoding it
// never reverts, even if it later shrinks below the threshold again.
type Thresholds struct {
	ListMaxZiplistLen  int
	ListMaxZiplistSize int
	SetMaxIntsetLen    int
	HashMaxZiplistLen  int
	HashMaxZiplistSize int
	ZSetMaxZiplistLen  int
	ZSetMaxZiplistSize int
}

// DefaultThresholds mirrors redis.conf's stock defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ListMaxZiplistLen:  128,
		ListMaxZiplistSize: 64,
		SetMaxIntsetLen:    512,
		HashMaxZiplistLen:  128,
		HashMaxZiplistSize: 64,
		ZSetMaxZiplistLen:  128,
		ZSetMaxZiplistSize: 64,
	}
}

var activeThresholds atomic.Pointer[Thresholds]

func init() {
	t := DefaultThresholds()
	activeThresholds.Store(&t)
}

// SetThresholds installs the process-wide encoding thresholds, read
// from internal/config at startup.
func SetThresholds(t Thresholds) {
	activeThresholds.Store(&t)
}

func currentThresholds() Thresholds {
	return *activeThresholds.Load()
}
