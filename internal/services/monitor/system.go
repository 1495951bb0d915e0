// Package monitor snapshots host health for the node this panel runs on.
package monitor

import (
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
)

type NodeStats struct {
	NodeID  string       `json:"node_id"`
	CPU     CPUStats     `json:"cpu"`
	Memory  MemoryStats  `json:"memory"`
	Disk    []DiskStats  `json:"disk"`
	Network NetworkStats `json:"network"`
	Load    LoadStats    `json:"load"`
	Host    HostInfo     `json:"host"`
}

type CPUStats struct {
	UsagePercent float64   `json:"usage_percent"`
	Cores        int       `json:"cores"`
	PerCore      []float64 `json:"per_core"`
}

type MemoryStats struct {
	Total       uint64  `json:"total"`
	Used        uint64  `json:"used"`
	Free        uint64  `json:"free"`
	UsedPercent float64 `json:"used_percent"`
}

type DiskStats struct {
	Device      string  `json:"device"`
	Mountpoint  string  `json:"mountpoint"`
	Total       uint64  `json:"total"`
	Used        uint64  `json:"used"`
	Free        uint64  `json:"free"`
	UsedPercent float64 `json:"used_percent"`
}

type NetworkStats struct {
	BytesSent   uint64 `json:"bytes_sent"`
	BytesRecv   uint64 `json:"bytes_recv"`
	PacketsSent uint64 `json:"packets_sent"`
	PacketsRecv uint64 `json:"packets_recv"`
}

type LoadStats struct {
	Load1  float64 `json:"load_1"`
	Load5  float64 `json:"load_5"`
	Load15 float64 `json:"load_15"`
}

type HostInfo struct {
	Hostname        string `json:"hostname"`
	OS              string `json:"os"`
	Platform        string `json:"platform"`
	PlatformVersion string `json:"platform_version"`
	KernelArch      string `json:"kernel_arch"`
	Uptime          uint64 `json:"uptime"`
	BootTime        uint64 `json:"boot_time"`
}

// Monitor samples stats for a single node.
type Monitor struct {
	nodeID string
}

func New(nodeID string) *Monitor {
	return &Monitor{nodeID: nodeID}
}

// Stats takes one snapshot. Individual probe failures leave their section
// zeroed rather than failing the whole snapshot.
func (m *Monitor) Stats() *NodeStats {
	stats := &NodeStats{NodeID: m.nodeID}

	// One sampling window shared by the overall and per-core numbers.
	if perCore, err := cpu.Percent(time.Second, true); err == nil && len(perCore) > 0 {
		stats.CPU.PerCore = perCore
		var sum float64
		for _, p := range perCore {
			sum += p
		}
		stats.CPU.UsagePercent = sum / float64(len(perCore))
	}
	stats.CPU.Cores = runtime.NumCPU()

	if memInfo, err := mem.VirtualMemory(); err == nil {
		stats.Memory = MemoryStats{
			Total:       memInfo.Total,
			Used:        memInfo.Used,
			Free:        memInfo.Available,
			UsedPercent: memInfo.UsedPercent,
		}
	}

	if parts, err := disk.Partitions(false); err == nil {
		for _, p := range parts {
			usage, err := disk.Usage(p.Mountpoint)
			if err != nil {
				continue
			}
			stats.Disk = append(stats.Disk, DiskStats{
				Device:      p.Device,
				Mountpoint:  p.Mountpoint,
				Total:       usage.Total,
				Used:        usage.Used,
				Free:        usage.Free,
				UsedPercent: usage.UsedPercent,
			})
		}
	}

	if counters, err := net.IOCounters(false); err == nil && len(counters) > 0 {
		stats.Network = NetworkStats{
			BytesSent:   counters[0].BytesSent,
			BytesRecv:   counters[0].BytesRecv,
			PacketsSent: counters[0].PacketsSent,
			PacketsRecv: counters[0].PacketsRecv,
		}
	}

	if avg, err := load.Avg(); err == nil {
		stats.Load = LoadStats{Load1: avg.Load1, Load5: avg.Load5, Load15: avg.Load15}
	}

	if info, err := host.Info(); err == nil {
		stats.Host = HostInfo{
			Hostname:        info.Hostname,
			OS:              info.OS,
			Platform:        info.Platform,
			PlatformVersion: info.PlatformVersion,
			KernelArch:      info.KernelArch,
			Uptime:          info.Uptime,
			BootTime:        info.BootTime,
		}
	}

	return stats
}
