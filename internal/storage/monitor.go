// Package storage inspects volume usage and offloads finished recordings to
// external storage.
package storage

import (
	"fmt"

	"golang.org/x/sys/unix"
)

const bytesPerGB = 1 << 30

// Snapshot is an instantaneous point-in-time read of a mounted filesystem.
// It is never cached; re-snapshot after any write or delete for a fresh view.
type Snapshot struct {
	Total uint64
	Used  uint64
	Free  uint64
}

// TotalGB returns the volume size in gigabytes (1 GB = 1024³ bytes).
func (s Snapshot) TotalGB() float64 { return float64(s.Total) / bytesPerGB }

// UsedGB returns the used space in gigabytes.
func (s Snapshot) UsedGB() float64 { return float64(s.Used) / bytesPerGB }

// FreeGB returns the space available to unprivileged writes, in gigabytes.
func (s Snapshot) FreeGB() float64 { return float64(s.Free) / bytesPerGB }

// SpareGB returns total minus used, the figure compared against the
// spare-margin policy threshold.
func (s Snapshot) SpareGB() float64 { return s.TotalGB() - s.UsedGB() }

// UsedExceeds reports whether used space exceeds the threshold.
func (s Snapshot) UsedExceeds(thresholdGB float64) bool { return s.UsedGB() > thresholdGB }

// HasHeadroomFor reports whether free space can absorb the given amount,
// used to decide whether an offload would overflow the volume.
func (s Snapshot) HasHeadroomFor(amountGB float64) bool { return s.FreeGB() >= amountGB }

// SpareBelow reports whether spare space has fallen below the margin.
func (s Snapshot) SpareBelow(marginGB float64) bool { return s.SpareGB() < marginGB }

// StatFunc reads a filesystem snapshot for a mount path.
type StatFunc func(path string) (Snapshot, error)

// Monitor reads storage snapshots. The stat function is injectable so policy
// tests can fabricate volumes of any size.
type Monitor struct {
	stat StatFunc
}

// NewMonitor creates a Monitor backed by statfs.
func NewMonitor() *Monitor {
	return &Monitor{stat: diskUsage}
}

// NewMonitorWithStat creates a Monitor with a custom stat function.
func NewMonitorWithStat(stat StatFunc) *Monitor {
	return &Monitor{stat: stat}
}

// Snapshot reads the current usage of the filesystem mounted at path.
func (m *Monitor) Snapshot(path string) (Snapshot, error) {
	return m.stat(path)
}

func diskUsage(path string) (Snapshot, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return Snapshot{}, fmt.Errorf("statfs %s: %w", path, err)
	}

	bsize := uint64(st.Bsize)
	total := st.Blocks * bsize
	return Snapshot{
		Total: total,
		Used:  total - st.Bfree*bsize,
		Free:  st.Bavail * bsize,
	}, nil
}
