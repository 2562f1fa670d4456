package service

import (
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/marquee-app/marquee/config"
	"github.com/marquee-app/marquee/database"
	"github.com/marquee-app/marquee/logger"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/net"
)

var startTime = time.Now()

// Usage is a used/total pair in bytes.
type Usage struct {
	Current uint64 `json:"current"`
	Total   uint64 `json:"total"`
}

// Percent is Current as a share of Total, 0 when Total is unknown.
func (u Usage) Percent() float64 {
	if u.Total == 0 {
		return 0
	}
	return float64(u.Current) * 100 / float64(u.Total)
}

// Status is the host and process snapshot shown on the admin dashboard.
type Status struct {
	T          time.Time `json:"-"`
	Hostname   string    `json:"hostname"`
	Platform   string    `json:"platform"`
	Cpu        float64   `json:"cpu"`
	CpuCores   int       `json:"cpuCores"`
	LogicalPro int       `json:"logicalPro"`
	Mem        Usage     `json:"mem"`
	Swap       Usage     `json:"swap"`
	Disk       Usage     `json:"disk"`
	Uptime     uint64    `json:"uptime"`
	Loads      []float64 `json:"loads"`
	TcpCount   int       `json:"tcpCount"`
	UdpCount   int       `json:"udpCount"`
	DbTime     string    `json:"dbTime"`
	Version    string    `json:"version"`
	AppStats   struct {
		Threads uint32 `json:"threads"`
		Mem     uint64 `json:"mem"`
		Uptime  uint64 `json:"uptime"`
	} `json:"appStats"`
}

// ServerService collects host statistics. The static host facts are looked up once.
type ServerService struct {
	once     sync.Once
	hostname string
	platform string
	cores    int
}

func (s *ServerService) loadHostInfo() {
	info, err := host.Info()
	if err != nil {
		logger.Warning("get host info failed:", err)
	} else {
		s.hostname = info.Hostname
		s.platform = info.Platform + " " + info.PlatformVersion
	}
	s.cores, err = cpu.Counts(false)
	if err != nil {
		logger.Warning("get cpu cores count failed:", err)
	}
}

func (s *ServerService) GetStatus() *Status {
	s.once.Do(s.loadHostInfo)

	status := &Status{
		T:          time.Now(),
		Hostname:   s.hostname,
		Platform:   s.platform,
		CpuCores:   s.cores,
		LogicalPro: runtime.NumCPU(),
		Version:    config.GetVersion(),
	}

	// non-blocking: compares against the previous call
	if percents, err := cpu.Percent(0, false); err != nil {
		logger.Warning("get cpu percent failed:", err)
	} else if len(percents) > 0 {
		status.Cpu = percents[0]
	}

	if upTime, err := host.Uptime(); err != nil {
		logger.Warning("get uptime failed:", err)
	} else {
		status.Uptime = upTime
	}

	if memInfo, err := mem.VirtualMemory(); err != nil {
		logger.Warning("get virtual memory failed:", err)
	} else {
		status.Mem = Usage{Current: memInfo.Used, Total: memInfo.Total}
	}

	if swapInfo, err := mem.SwapMemory(); err != nil {
		logger.Warning("get swap memory failed:", err)
	} else {
		status.Swap = Usage{Current: swapInfo.Used, Total: swapInfo.Total}
	}

	if diskInfo, err := disk.Usage("/"); err != nil {
		logger.Warning("get disk usage failed:", err)
	} else {
		status.Disk = Usage{Current: diskInfo.Used, Total: diskInfo.Total}
	}

	if avg, err := load.Avg(); err != nil {
		logger.Debug("get load avg failed:", err)
	} else {
		status.Loads = []float64{avg.Load1, avg.Load5, avg.Load15}
	}

	if n, err := connectionCount("tcp"); err != nil {
		logger.Debug("get tcp connections failed:", err)
	} else {
		status.TcpCount = n
	}
	if n, err := connectionCount("udp"); err != nil {
		logger.Debug("get udp connections failed:", err)
	} else {
		status.UdpCount = n
	}

	if database.GetDB() != nil {
		if now, err := database.CurrentTime(); err != nil {
			logger.Warning("get database time failed:", err)
		} else {
			status.DbTime = now
		}
	}

	var rtm runtime.MemStats
	runtime.ReadMemStats(&rtm)
	status.AppStats.Mem = rtm.Sys
	status.AppStats.Threads = uint32(runtime.NumGoroutine())
	status.AppStats.Uptime = uint64(time.Since(startTime).Seconds())

	return status
}

func connectionCount(kind string) (int, error) {
	conns, err := net.ConnectionsWithoutUids(kind)
	if err != nil {
		return 0, err
	}
	return len(conns), nil
}

// GetLogs returns up to count buffered log lines at or above level, newest first.
func (s *ServerService) GetLogs(count string, level string) []string {
	c, err := strconv.Atoi(count)
	if err != nil || c < 1 {
		c = 50
	}
	if c > 1000 {
		c = 1000
	}
	if level == "" {
		level = "info"
	}
	return logger.GetLogs(c, level)
}
