package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := EmptyBridgeConfig()

	if cfg.GetPublishCoreRobotState() != true {
		t.Errorf("GetPublishCoreRobotState() = false, want true")
	}
	if cfg.GetPublishEstRobotState() != false {
		t.Errorf("GetPublishEstRobotState() = true, want false")
	}
	if cfg.GetApplyCommands() != false {
		t.Errorf("GetApplyCommands() = true, want false")
	}
	if cfg.GetMaxEffortChange() != 10.0 {
		t.Errorf("GetMaxEffortChange() = %f, want 10.0", cfg.GetMaxEffortChange())
	}
	if cfg.GetCommandListen() != ":7667" {
		t.Errorf("GetCommandListen() = %q, want :7667", cfg.GetCommandListen())
	}
	if cfg.GetTelemetryTarget() != "127.0.0.1:7668" {
		t.Errorf("GetTelemetryTarget() = %q, want 127.0.0.1:7668", cfg.GetTelemetryTarget())
	}
	if cfg.GetBlackboxPath() != "" {
		t.Errorf("GetBlackboxPath() = %q, want empty", cfg.GetBlackboxPath())
	}
	if cfg.GetEffortSampleEvery() != 50 {
		t.Errorf("GetEffortSampleEvery() = %d, want 50", cfg.GetEffortSampleEvery())
	}
}

func TestLoadBridgeConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "bridge.json")

	testJSON := `{
  "publish_core_robot_state": false,
  "publish_est_robot_state": true,
  "apply_commands": true,
  "joints": ["knee", "hip"],
  "max_effort_change": 5.5,
  "command_listen": ":9001",
  "limits": {
    "knee": {"min_position": -1.0, "max_position": 1.0, "max_effort": 50}
  }
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadBridgeConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.GetPublishCoreRobotState() != false {
		t.Errorf("Expected publish_core_robot_state false")
	}
	if cfg.GetPublishEstRobotState() != true {
		t.Errorf("Expected publish_est_robot_state true")
	}
	if cfg.GetApplyCommands() != true {
		t.Errorf("Expected apply_commands true")
	}
	if len(cfg.Joints) != 2 || cfg.Joints[0] != "knee" {
		t.Errorf("Expected joints [knee hip], got %v", cfg.Joints)
	}
	if cfg.GetMaxEffortChange() != 5.5 {
		t.Errorf("Expected max_effort_change 5.5, got %f", cfg.GetMaxEffortChange())
	}
	if cfg.GetCommandListen() != ":9001" {
		t.Errorf("Expected command_listen :9001, got %q", cfg.GetCommandListen())
	}
	knee, ok := cfg.Limits["knee"]
	if !ok {
		t.Fatalf("Expected knee limit override")
	}
	if knee.MaxEffort == nil || *knee.MaxEffort != 50 {
		t.Errorf("Expected knee max_effort 50, got %v", knee.MaxEffort)
	}
}

func TestLoadBridgeConfigMissing(t *testing.T) {
	if _, err := LoadBridgeConfig("/nonexistent/path/bridge.json"); err == nil {
		t.Error("Expected error when loading missing file, got nil")
	}
}

func TestLoadBridgeConfigBadExtension(t *testing.T) {
	if _, err := LoadBridgeConfig("/tmp/bridge.yaml"); err == nil {
		t.Error("Expected error for non-json extension, got nil")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*BridgeConfig)
		wantErr bool
	}{
		{
			name:    "empty config valid",
			mutate:  func(c *BridgeConfig) {},
			wantErr: false,
		},
		{
			name: "negative max_effort_change",
			mutate: func(c *BridgeConfig) {
				v := -1.0
				c.MaxEffortChange = &v
			},
			wantErr: true,
		},
		{
			name: "inverted position limits",
			mutate: func(c *BridgeConfig) {
				lo, hi := 2.0, 1.0
				c.Limits = map[string]JointLimitOverride{
					"knee": {MinPosition: &lo, MaxPosition: &hi},
				}
			},
			wantErr: true,
		},
		{
			name: "negative max_effort",
			mutate: func(c *BridgeConfig) {
				v := -5.0
				c.Limits = map[string]JointLimitOverride{"knee": {MaxEffort: &v}}
			},
			wantErr: true,
		},
		{
			name: "negative effort_sample_every",
			mutate: func(c *BridgeConfig) {
				v := -1
				c.EffortSampleEvery = &v
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := EmptyBridgeConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
