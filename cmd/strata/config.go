package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// mergeYAMLConfig overlays fields set in the file at path onto cfg.
// Zero-valued fields in the file are left untouched so that flags
// remain the default and the file only overrides what it names.
func mergeYAMLConfig(path string, cfg *masterConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	var fromFile masterConfig
	if err := yaml.Unmarshal(data, &fromFile); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	if fromFile.NodeID != "" {
		cfg.NodeID = fromFile.NodeID
	}
	if fromFile.BindAddr != "" {
		cfg.BindAddr = fromFile.BindAddr
	}
	if fromFile.APIAddr != "" {
		cfg.APIAddr = fromFile.APIAddr
	}
	if fromFile.DataDir != "" {
		cfg.DataDir = fromFile.DataDir
	}
	if len(fromFile.TierOrder) > 0 {
		cfg.TierOrder = fromFile.TierOrder
	}
	if fromFile.WorkerTimeoutMs != 0 {
		cfg.WorkerTimeoutMs = fromFile.WorkerTimeoutMs
	}
	if fromFile.HeartbeatIntervalMs != 0 {
		cfg.HeartbeatIntervalMs = fromFile.HeartbeatIntervalMs
	}
	return nil
}
