// Package config loads the flat bridge configuration consumed once at
// activation. Fields are pointers so a partial JSON file only overrides what
// it names; the Get* accessors supply the documented defaults for the rest.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// JointLimitOverride carries per-joint limit overrides. Absent fields fall
// back to the process-wide defaults in the limits package.
type JointLimitOverride struct {
	MinPosition *float64 `json:"min_position,omitempty"`
	MaxPosition *float64 `json:"max_position,omitempty"`
	MaxEffort   *float64 `json:"max_effort,omitempty"`
}

// BridgeConfig is the root configuration for the joint-command bridge.
type BridgeConfig struct {
	// Telemetry gating
	PublishCoreRobotState *bool `json:"publish_core_robot_state,omitempty"`
	PublishEstRobotState  *bool `json:"publish_est_robot_state,omitempty"`

	// ApplyCommands gates whether computed outputs are written to hardware.
	// Outputs are always computed and telemetered.
	ApplyCommands *bool `json:"apply_commands,omitempty"`

	// Joints restricts claiming to the listed names. Empty or absent means
	// claim every handle the hardware advertises.
	Joints []string `json:"joints,omitempty"`

	// MaxEffortChange is the maximum permitted per-cycle effort delta
	// relative to the measured effort.
	MaxEffortChange *float64 `json:"max_effort_change,omitempty"`

	// Limits holds per-joint limit overrides keyed by joint name.
	Limits map[string]JointLimitOverride `json:"limits,omitempty"`

	// CommandListen is the UDP address the inbound command receiver binds.
	CommandListen *string `json:"command_listen,omitempty"`

	// TelemetryTarget is the UDP address telemetry snapshots are sent to.
	TelemetryTarget *string `json:"telemetry_target,omitempty"`

	// BlackboxPath is the sqlite file for the flight recorder. Empty
	// disables recording.
	BlackboxPath *string `json:"blackbox_path,omitempty"`

	// EffortSampleEvery records one commanded-effort sample to the
	// blackbox every N cycles. Zero disables sampling.
	EffortSampleEvery *int `json:"effort_sample_every,omitempty"`
}

// EmptyBridgeConfig returns a BridgeConfig with all fields unset.
func EmptyBridgeConfig() *BridgeConfig {
	return &BridgeConfig{}
}

// LoadBridgeConfig loads a BridgeConfig from a JSON file. Fields omitted from
// the file retain their defaults, so partial configs are safe.
func LoadBridgeConfig(path string) (*BridgeConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyBridgeConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are usable.
func (c *BridgeConfig) Validate() error {
	if c.MaxEffortChange != nil && *c.MaxEffortChange <= 0 {
		return fmt.Errorf("max_effort_change must be positive, got %f", *c.MaxEffortChange)
	}
	if c.EffortSampleEvery != nil && *c.EffortSampleEvery < 0 {
		return fmt.Errorf("effort_sample_every must be non-negative, got %d", *c.EffortSampleEvery)
	}
	for name, lim := range c.Limits {
		if lim.MinPosition != nil && lim.MaxPosition != nil && *lim.MinPosition > *lim.MaxPosition {
			return fmt.Errorf("limits for %q: min_position %f exceeds max_position %f",
				name, *lim.MinPosition, *lim.MaxPosition)
		}
		if lim.MaxEffort != nil && *lim.MaxEffort < 0 {
			return fmt.Errorf("limits for %q: max_effort must be non-negative, got %f", name, *lim.MaxEffort)
		}
	}
	return nil
}

// GetPublishCoreRobotState returns the publish_core_robot_state value or the default.
func (c *BridgeConfig) GetPublishCoreRobotState() bool {
	if c.PublishCoreRobotState == nil {
		return true // default
	}
	return *c.PublishCoreRobotState
}

// GetPublishEstRobotState returns the publish_est_robot_state value or the default.
func (c *BridgeConfig) GetPublishEstRobotState() bool {
	if c.PublishEstRobotState == nil {
		return false // default
	}
	return *c.PublishEstRobotState
}

// GetApplyCommands returns the apply_commands value or the default.
func (c *BridgeConfig) GetApplyCommands() bool {
	if c.ApplyCommands == nil {
		return false // default: compute and telemeter only
	}
	return *c.ApplyCommands
}

// GetMaxEffortChange returns the max_effort_change value or the default.
func (c *BridgeConfig) GetMaxEffortChange() float64 {
	if c.MaxEffortChange == nil {
		return 10.0 // default
	}
	return *c.MaxEffortChange
}

// GetCommandListen returns the command_listen value or the default.
func (c *BridgeConfig) GetCommandListen() string {
	if c.CommandListen == nil || *c.CommandListen == "" {
		return ":7667" // default
	}
	return *c.CommandListen
}

// GetTelemetryTarget returns the telemetry_target value or the default.
func (c *BridgeConfig) GetTelemetryTarget() string {
	if c.TelemetryTarget == nil || *c.TelemetryTarget == "" {
		return "127.0.0.1:7668" // default
	}
	return *c.TelemetryTarget
}

// GetBlackboxPath returns the blackbox_path value; empty disables recording.
func (c *BridgeConfig) GetBlackboxPath() string {
	if c.BlackboxPath == nil {
		return ""
	}
	return *c.BlackboxPath
}

// GetEffortSampleEvery returns the effort_sample_every value or the default.
func (c *BridgeConfig) GetEffortSampleEvery() int {
	if c.EffortSampleEvery == nil {
		return 50 // default: one sample per 100ms at 500Hz
	}
	return *c.EffortSampleEvery
}
