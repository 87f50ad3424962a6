package detector

import (
	"fmt"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	gnet "github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"
)

// osReader reads live counters from the operating system via gopsutil.
// Individual read failures are tolerated: the affected fields keep their
// zero values and only a fully failed memory read aborts the sample.
type osReader struct {
	proc *process.Process
}

func newOSReader() (*osReader, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("resolving own process: %w", err)
	}
	return &osReader{proc: proc}, nil
}

func (r *osReader) read() (*rawCounters, error) {
	raw := &rawCounters{at: time.Now()}

	vm, err := mem.VirtualMemory()
	if err != nil {
		return nil, fmt.Errorf("reading virtual memory: %w", err)
	}
	raw.memUsed = vm.Used
	raw.memAvail = vm.Available
	raw.memPercent = vm.UsedPercent

	if sw, err := mem.SwapMemory(); err == nil {
		raw.swapUsed = sw.Used
		raw.swapPercent = sw.UsedPercent
	}

	// Interval 0 computes usage since the previous gopsutil call, which
	// matches the sampling cadence without blocking the loop.
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		raw.cpuPercent = percents[0]
	}
	if perCore, err := cpu.Percent(0, true); err == nil {
		raw.perCore = perCore
	}

	if avg, err := load.Avg(); err == nil {
		raw.load1 = avg.Load1
		raw.load5 = avg.Load5
		raw.load15 = avg.Load15
	}

	if counters, err := disk.IOCounters(); err == nil {
		for _, c := range counters {
			raw.diskReadBytes += c.ReadBytes
			raw.diskWriteBytes += c.WriteBytes
		}
	}

	if counters, err := gnet.IOCounters(false); err == nil && len(counters) > 0 {
		raw.netSentBytes = counters[0].BytesSent
		raw.netRecvBytes = counters[0].BytesRecv
	}

	if mi, err := r.proc.MemoryInfo(); err == nil && mi != nil {
		raw.procRSS = mi.RSS
	}
	if pct, err := r.proc.MemoryPercent(); err == nil {
		raw.procMemPercent = float64(pct)
	}
	if pct, err := r.proc.CPUPercent(); err == nil {
		raw.procCPU = pct
	}
	if threads, err := r.proc.NumThreads(); err == nil {
		raw.procThreads = threads
	}
	if fds, err := r.proc.NumFDs(); err == nil {
		raw.procFDs = fds
	}

	if uptime, err := host.Uptime(); err == nil {
		raw.sysUptime = time.Duration(uptime) * time.Second
	}
	if created, err := r.proc.CreateTime(); err == nil {
		raw.procUptime = time.Since(time.UnixMilli(created))
	}

	return raw, nil
}

func (r *osReader) readFacts() (SystemInfo, error) {
	info := SystemInfo{
		PID:         os.Getpid(),
		RefreshedAt: time.Now(),
	}

	if hostname, err := os.Hostname(); err == nil {
		info.Hostname = hostname
	}

	logical, err := cpu.Counts(true)
	if err != nil {
		return info, fmt.Errorf("counting logical cores: %w", err)
	}
	info.LogicalCores = logical

	if physical, err := cpu.Counts(false); err == nil {
		info.PhysicalCores = physical
	}
	if infos, err := cpu.Info(); err == nil && len(infos) > 0 {
		info.CPUModel = infos[0].ModelName
		info.CPUMhz = infos[0].Mhz
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		info.TotalMemory = vm.Total
	}
	if sw, err := mem.SwapMemory(); err == nil {
		info.TotalSwap = sw.Total
	}
	if usage, err := disk.Usage("/"); err == nil {
		info.TotalDisk = usage.Total
	}

	if ifaces, err := gnet.Interfaces(); err == nil {
		names := make([]string, 0, len(ifaces))
		for _, iface := range ifaces {
			names = append(names, iface.Name)
		}
		info.Interfaces = names
	}

	if created, err := r.proc.CreateTime(); err == nil {
		info.ProcessStart = time.UnixMilli(created)
	}

	return info, nil
}
