package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockDevice(t *testing.T) {
	tests := map[string]string{
		"sdb1":      "sdb",
		"sda":       "sda",
		"mmcblk0p1": "mmcblk0",
		"mmcblk1":   "mmcblk1",
		"nvme0n1p2": "nvme0n1",
		"vdb3":      "vdb",
		"loop0":     "",
		"tmpfs":     "",
	}

	for in, want := range tests {
		assert.Equal(t, want, blockDevice(in), in)
	}
}

func TestWithin(t *testing.T) {
	assert.True(t, within("/media/sd/Android", "/media/sd"))
	assert.True(t, within("/media/sd", "/media/sd"))
	assert.True(t, within("/media/sd", "/"))
	assert.False(t, within("/media/sdx", "/media/sd"))
	assert.False(t, within("/home", "/media/sd"))
	assert.False(t, within("/home", ""))
}

func newTestProbe(t *testing.T, parts []disk.PartitionStat, removable map[string]string) *SystemProbe {
	t.Helper()

	sys := t.TempDir()
	for dev, flag := range removable {
		require.NoError(t, os.MkdirAll(filepath.Join(sys, dev), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(sys, dev, "removable"), []byte(flag+"\n"), 0o644))
	}

	return &SystemProbe{
		partitions: func(context.Context, bool) ([]disk.PartitionStat, error) {
			return parts, nil
		},
		sysBlock: sys,
	}
}

func TestSystemProbe(t *testing.T) {
	ctx := context.Background()
	parts := []disk.PartitionStat{
		{Device: "/dev/nvme0n1p2", Mountpoint: "/", Fstype: "ext4", Opts: []string{"rw"}},
		{Device: "/dev/mmcblk0p1", Mountpoint: "/media/sd", Fstype: "exfat", Opts: []string{"rw", "nosuid"}},
		{Device: "/dev/sdb1", Mountpoint: "/media/usb", Fstype: "vfat", Opts: []string{"ro"}},
	}
	probe := newTestProbe(t, parts, map[string]string{"mmcblk0": "1", "sdb": "1", "nvme0n1": "0"})

	mounted, err := probe.Mounted(ctx, "/media/sd/Android/data")
	require.NoError(t, err)
	assert.True(t, mounted)

	removable, err := probe.Removable(ctx, "/media/sd/Android/data")
	require.NoError(t, err)
	assert.True(t, removable)

	mounted, err = probe.Mounted(ctx, "/media/usb")
	require.NoError(t, err)
	assert.False(t, mounted, "read-only mounts are not ready")

	mounted, err = probe.Mounted(ctx, "/home/user")
	require.NoError(t, err)
	assert.False(t, mounted, "the root filesystem is not mounted media")

	removable, err = probe.Removable(ctx, "/home/user")
	require.NoError(t, err)
	assert.False(t, removable)
}

func TestSystemProbe_PartitionError(t *testing.T) {
	probe := &SystemProbe{
		partitions: func(context.Context, bool) ([]disk.PartitionStat, error) {
			return nil, errors.New("no mtab")
		},
		sysBlock: t.TempDir(),
	}

	_, err := probe.Mounted(context.Background(), "/media/sd")
	require.ErrorContains(t, err, "no mtab")
}

func TestDiskUsage(t *testing.T) {
	used, total, err := DiskUsage(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Positive(t, total)
	assert.LessOrEqual(t, used, total)
}
