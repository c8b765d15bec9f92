package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"
)

const sysBlockDir = "/sys/block"

// SystemProbe inspects the host's mount table and sysfs to decide whether a
// directory is backed by mounted removable media.
type SystemProbe struct {
	partitions func(ctx context.Context, all bool) ([]disk.PartitionStat, error)
	sysBlock   string
}

func NewSystemProbe() *SystemProbe {
	return &SystemProbe{
		partitions: disk.PartitionsWithContext,
		sysBlock:   sysBlockDir,
	}
}

// Mounted reports whether path lives on a dedicated, writable mount.
// Paths that only resolve to the root filesystem are not considered mounted media.
func (p *SystemProbe) Mounted(ctx context.Context, path string) (bool, error) {
	part, ok, err := p.partitionFor(ctx, path)
	if err != nil || !ok {
		return false, err
	}

	if part.Mountpoint == "/" {
		return false, nil
	}

	return !slices.Contains(part.Opts, "ro"), nil
}

// Removable reports whether the block device backing path has the removable flag set.
func (p *SystemProbe) Removable(ctx context.Context, path string) (bool, error) {
	part, ok, err := p.partitionFor(ctx, path)
	if err != nil || !ok {
		return false, err
	}

	dev := blockDevice(filepath.Base(part.Device))
	if dev == "" {
		return false, nil
	}

	raw, err := os.ReadFile(filepath.Join(p.sysBlock, dev, "removable"))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, fmt.Errorf("failed to read removable flag for %s: %w", dev, err)
	}

	return strings.TrimSpace(string(raw)) == "1", nil
}

// partitionFor returns the mount with the longest mountpoint containing path.
func (p *SystemProbe) partitionFor(ctx context.Context, path string) (disk.PartitionStat, bool, error) {
	parts, err := p.partitions(ctx, true)
	if err != nil {
		return disk.PartitionStat{}, false, fmt.Errorf("failed to list partitions: %w", err)
	}

	var (
		best  disk.PartitionStat
		found bool
	)

	for _, part := range parts {
		if !within(path, part.Mountpoint) {
			continue
		}

		if !found || len(part.Mountpoint) > len(best.Mountpoint) {
			best = part
			found = true
		}
	}

	return best, found, nil
}

func within(path, mountpoint string) bool {
	if mountpoint == "" {
		return false
	}

	rel, err := filepath.Rel(mountpoint, path)
	if err != nil {
		return false
	}

	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// blockDevice maps a partition name to its parent block device:
// sdb1 -> sdb, mmcblk0p1 -> mmcblk0, nvme0n1p2 -> nvme0n1.
func blockDevice(name string) string {
	if !strings.HasPrefix(name, "sd") && !strings.HasPrefix(name, "mmcblk") &&
		!strings.HasPrefix(name, "nvme") && !strings.HasPrefix(name, "vd") {
		return ""
	}

	if strings.HasPrefix(name, "mmcblk") || strings.HasPrefix(name, "nvme") {
		if i := strings.LastIndex(name, "p"); i > 0 && isDigits(name[i+1:]) && isDigits(name[i-1:i]) {
			return name[:i]
		}

		return name
	}

	return strings.TrimRightFunc(name, func(r rune) bool { return r >= '0' && r <= '9' })
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}

	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}

	return true
}

// DiskUsage returns used and total bytes of the filesystem holding path.
func DiskUsage(ctx context.Context, path string) (used, total uint64, err error) {
	stat, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read disk usage for %s: %w", path, err)
	}

	return stat.Used, stat.Total, nil
}
