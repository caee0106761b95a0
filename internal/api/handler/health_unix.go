//go:build !windows

package handler

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// Process CPU time at the previous Stats call.
var (
	cpuMu       sync.Mutex
	lastCPUTime time.Duration
	lastWall    time.Time
)

// getDiskStats reports usage of the filesystem holding path.
func getDiskStats(path string) (total, free, used int64, usedPct float64) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, 0, 0, 0
	}
	total = int64(st.Blocks) * int64(st.Bsize)
	free = int64(st.Bavail) * int64(st.Bsize)
	used = total - free
	if total > 0 {
		usedPct = float64(used) / float64(total) * 100
	}
	return total, free, used, usedPct
}

// getCPUUsage returns single-core CPU percent since the previous call, capped
// at 100. The first call returns 0.
func getCPUUsage() float64 {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &ru); err != nil {
		return 0
	}
	cpu := time.Duration(ru.Utime.Nano()) + time.Duration(ru.Stime.Nano())
	now := time.Now()

	cpuMu.Lock()
	defer cpuMu.Unlock()

	prevCPU, prevWall := lastCPUTime, lastWall
	lastCPUTime, lastWall = cpu, now
	if prevWall.IsZero() {
		return 0
	}

	wall := now.Sub(prevWall)
	if wall <= 0 {
		return 0
	}
	pct := float64(cpu-prevCPU) / float64(wall) * 100
	switch {
	case pct > 100:
		return 100
	case pct < 0:
		return 0
	}
	return pct
}
