package admin

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// Usage is a resource usage snapshot in percent.
type Usage struct {
	CPU    float64
	Memory float64
	Disk   float64
	Uptime time.Duration
}

// HostStats samples resource usage of the machine.
type HostStats interface {
	Usage(ctx context.Context) (Usage, error)
}

// SystemHost reads usage with gopsutil.
type SystemHost struct {
	DiskPath    string
	CPUInterval time.Duration
}

// NewSystemHost returns a sampler watching the filesystem holding diskPath.
func NewSystemHost(diskPath string) *SystemHost {
	if diskPath == "" {
		diskPath = "/"
	}
	return &SystemHost{DiskPath: diskPath, CPUInterval: time.Second}
}

// Usage implements HostStats.
func (h *SystemHost) Usage(ctx context.Context) (Usage, error) {
	var u Usage
	percents, err := cpu.PercentWithContext(ctx, h.CPUInterval, false)
	if err != nil {
		return u, err
	}
	if len(percents) > 0 {
		u.CPU = percents[0]
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return u, err
	}
	u.Memory = vm.UsedPercent
	du, err := disk.UsageWithContext(ctx, h.DiskPath)
	if err != nil {
		return u, err
	}
	u.Disk = du.UsedPercent
	secs, err := host.UptimeWithContext(ctx)
	if err != nil {
		return u, err
	}
	u.Uptime = time.Duration(secs) * time.Second
	return u, nil
}
