// Package config defines the configuration surface for the resource-pressure
// controller. All values are plain data; components fall back to DefaultConfig
// when no configuration is supplied.
package config

import (
	"fmt"
	"time"
)

// Config aggregates all configuration groups recognized by the controller.
type Config struct {
	GC         *GCConfig         `json:"gc"`
	Thresholds *ThresholdConfig  `json:"thresholds"`
	Monitoring *MonitoringConfig `json:"monitoring"`
	Stress     *StressConfig     `json:"stress"`
	API        *APIConfig        `json:"api"`
}

// GCConfig contains collector tuning and reclamation settings.
type GCConfig struct {
	Enabled          bool    `json:"enabled"`
	ThresholdPercent float64 `json:"threshold_percent"` // process memory % that triggers a pass
	IntervalSeconds  int     `json:"interval_seconds"`  // background reclamation loop interval
	TuneFactor       float64 `json:"tune_factor"`       // memory-size scaling factor for GOGC
	TuneMinPercent   int     `json:"tune_min_percent"`  // lower clamp for the tuned GOGC value
	TuneMaxPercent   int     `json:"tune_max_percent"`  // upper clamp for the tuned GOGC value
	MinPercentFloor  int     `json:"min_percent_floor"` // absolute safety floor for GOGC
}

// ThresholdConfig contains memory pressure thresholds as percentages of
// total system memory.
type ThresholdConfig struct {
	WarningPercent     float64 `json:"warning_percent"`
	CriticalPercent    float64 `json:"critical_percent"`
	EmergencyPercent   float64 `json:"emergency_percent"`
	LeakPercentPerHour float64 `json:"leak_percent_per_hour"`
}

// MonitoringConfig contains resource sampling settings.
type MonitoringConfig struct {
	IntervalSeconds   int `json:"interval_seconds"`
	HistorySize       int `json:"history_size"`
	FactsRefreshTicks int `json:"facts_refresh_ticks"` // hardware facts refreshed every Nth sample
}

// StressConfig contains stress classification and mitigation settings.
type StressConfig struct {
	Enabled             bool          `json:"enabled"`
	NormalCheckInterval time.Duration `json:"normal_check_interval"`
	StressCheckInterval time.Duration `json:"stress_check_interval"`
	CPUThresholdPercent float64       `json:"cpu_threshold_percent"`
	NetworkThresholdMBs float64       `json:"network_threshold_mbs"`
	MaxStressTime       time.Duration `json:"max_stress_time"` // continuous stress beyond this triggers the emergency path
	CriticalEndpoints   []string      `json:"critical_endpoints"`
}

// APIConfig is consumed only by the surrounding status surface; the core
// validates it but never reads it.
type APIConfig struct {
	Enabled             bool     `json:"enabled"`
	EndpointPrefix      string   `json:"endpoint_prefix"`
	DetailedEndpoints   bool     `json:"detailed_endpoints"`
	ManagementEndpoints bool     `json:"management_endpoints"`
	AuthToken           string   `json:"auth_token"`
	CORSOrigins         []string `json:"cors_origins"`
}

// DefaultConfig returns a configuration with sensible defaults for a
// long-running server process.
func DefaultConfig() *Config {
	return &Config{
		GC: &GCConfig{
			Enabled:          true,
			ThresholdPercent: 70.0,
			IntervalSeconds:  60,
			TuneFactor:       0.5,
			TuneMinPercent:   50,
			TuneMaxPercent:   400,
			MinPercentFloor:  25,
		},
		Thresholds: &ThresholdConfig{
			WarningPercent:     75.0,
			CriticalPercent:    85.0,
			EmergencyPercent:   95.0,
			LeakPercentPerHour: 10.0,
		},
		Monitoring: &MonitoringConfig{
			IntervalSeconds:   5,
			HistorySize:       720, // one hour at the default interval
			FactsRefreshTicks: 120,
		},
		Stress: &StressConfig{
			Enabled:             true,
			NormalCheckInterval: 30 * time.Second,
			StressCheckInterval: 5 * time.Second,
			CPUThresholdPercent: 80.0,
			NetworkThresholdMBs: 100.0,
			MaxStressTime:       5 * time.Minute,
			CriticalEndpoints:   []string{"/health", "/metrics"},
		},
		API: &APIConfig{
			Enabled:             true,
			EndpointPrefix:      "/system",
			DetailedEndpoints:   true,
			ManagementEndpoints: false,
			CORSOrigins:         []string{},
		},
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.GC != nil {
		if c.GC.ThresholdPercent <= 0 || c.GC.ThresholdPercent > 100 {
			return fmt.Errorf("gc threshold percent must be in (0, 100], got %.1f", c.GC.ThresholdPercent)
		}
		if c.GC.IntervalSeconds <= 0 {
			return fmt.Errorf("gc interval must be positive, got %d", c.GC.IntervalSeconds)
		}
		if c.GC.TuneFactor <= 0 {
			return fmt.Errorf("gc tune factor must be positive, got %.2f", c.GC.TuneFactor)
		}
		if c.GC.TuneMinPercent <= 0 || c.GC.TuneMaxPercent < c.GC.TuneMinPercent {
			return fmt.Errorf("gc tune clamp range [%d, %d] is invalid", c.GC.TuneMinPercent, c.GC.TuneMaxPercent)
		}
		if c.GC.MinPercentFloor <= 0 {
			return fmt.Errorf("gc percent floor must be positive, got %d", c.GC.MinPercentFloor)
		}
	}
	if c.Thresholds != nil {
		t := c.Thresholds
		if t.WarningPercent <= 0 || t.WarningPercent >= t.CriticalPercent || t.CriticalPercent >= t.EmergencyPercent {
			return fmt.Errorf("thresholds must satisfy 0 < warning < critical < emergency, got %.1f/%.1f/%.1f",
				t.WarningPercent, t.CriticalPercent, t.EmergencyPercent)
		}
		if t.EmergencyPercent > 100 {
			return fmt.Errorf("emergency threshold cannot exceed 100, got %.1f", t.EmergencyPercent)
		}
		if t.LeakPercentPerHour <= 0 {
			return fmt.Errorf("leak threshold must be positive, got %.1f", t.LeakPercentPerHour)
		}
	}
	if c.Monitoring != nil {
		if c.Monitoring.IntervalSeconds <= 0 {
			return fmt.Errorf("monitoring interval must be positive, got %d", c.Monitoring.IntervalSeconds)
		}
		if c.Monitoring.HistorySize <= 0 {
			return fmt.Errorf("monitoring history size must be positive, got %d", c.Monitoring.HistorySize)
		}
		if c.Monitoring.FactsRefreshTicks <= 0 {
			return fmt.Errorf("facts refresh ticks must be positive, got %d", c.Monitoring.FactsRefreshTicks)
		}
	}
	if c.Stress != nil {
		s := c.Stress
		if s.NormalCheckInterval <= 0 || s.StressCheckInterval <= 0 {
			return fmt.Errorf("stress check intervals must be positive")
		}
		if s.StressCheckInterval > s.NormalCheckInterval {
			return fmt.Errorf("stress check interval %v must not exceed normal check interval %v",
				s.StressCheckInterval, s.NormalCheckInterval)
		}
		if s.CPUThresholdPercent <= 0 || s.CPUThresholdPercent > 100 {
			return fmt.Errorf("cpu threshold percent must be in (0, 100], got %.1f", s.CPUThresholdPercent)
		}
		if s.NetworkThresholdMBs <= 0 {
			return fmt.Errorf("network threshold must be positive, got %.1f", s.NetworkThresholdMBs)
		}
		if s.MaxStressTime <= 0 {
			return fmt.Errorf("max stress time must be positive, got %v", s.MaxStressTime)
		}
	}
	return nil
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := &Config{}
	if c.GC != nil {
		gc := *c.GC
		clone.GC = &gc
	}
	if c.Thresholds != nil {
		t := *c.Thresholds
		clone.Thresholds = &t
	}
	if c.Monitoring != nil {
		m := *c.Monitoring
		clone.Monitoring = &m
	}
	if c.Stress != nil {
		s := *c.Stress
		s.CriticalEndpoints = append([]string(nil), c.Stress.CriticalEndpoints...)
		clone.Stress = &s
	}
	if c.API != nil {
		a := *c.API
		a.CORSOrigins = append([]string(nil), c.API.CORSOrigins...)
		clone.API = &a
	}
	return clone
}

// Normalized returns a copy with any missing groups replaced by defaults.
// A nil receiver yields the full default configuration.
func (c *Config) Normalized() *Config {
	def := DefaultConfig()
	if c == nil {
		return def
	}
	out := c.Clone()
	if out.GC == nil {
		out.GC = def.GC
	}
	if out.Thresholds == nil {
		out.Thresholds = def.Thresholds
	}
	if out.Monitoring == nil {
		out.Monitoring = def.Monitoring
	}
	if out.Stress == nil {
		out.Stress = def.Stress
	}
	if out.API == nil {
		out.API = def.API
	}
	return out
}
