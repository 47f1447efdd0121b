package config

import (
	"fmt"
)

// Validate checks config values for correctness.
// Every violation is collected so one run reports all of them.
func (c *Config) Validate() error {
	var errs []string

	// Runner validation
	if c.Runner.Port < 1 || c.Runner.Port > 65535 {
		errs = append(errs, "runner.port must be between 1 and 65535")
	}
	if c.Runner.WorkspaceRoot == "" {
		errs = append(errs, "runner.workspace_root must not be empty")
	}
	if c.Runner.HeartbeatTimeoutMs < 1 {
		errs = append(errs, "runner.heartbeat_timeout_ms must be >= 1")
	}
	if c.Runner.WatchdogCheckIntervalMs < 1 {
		errs = append(errs, "runner.watchdog_check_interval_ms must be >= 1")
	}
	if c.Runner.MaxConcurrentCommands < 1 {
		errs = append(errs, "runner.max_concurrent_commands must be >= 1")
	}
	if c.Runner.ShutdownTimeoutMs < 1 {
		errs = append(errs, "runner.shutdown_timeout_ms must be >= 1")
	}

	// Controller validation
	if c.Controller.Image == "" {
		errs = append(errs, "controller.image must not be empty")
	}
	if c.Controller.ContainerName == "" {
		errs = append(errs, "controller.container_name must not be empty")
	}
	if c.Controller.HostPort < 1 || c.Controller.HostPort > 65535 {
		errs = append(errs, "controller.host_port must be between 1 and 65535")
	}
	if c.Controller.HostDir == "" {
		errs = append(errs, "controller.host_dir must not be empty")
	}
	if c.Controller.RuntimeBinary == "" {
		errs = append(errs, "controller.runtime_binary must not be empty")
	}
	if c.Controller.HeartbeatIntervalSeconds < 1 {
		errs = append(errs, "controller.heartbeat_interval_seconds must be >= 1")
	}
	if c.Controller.HeartbeatTimeoutMs < 1 {
		errs = append(errs, "controller.heartbeat_timeout_ms must be >= 1")
	}
	if c.Controller.CommandTimeoutMs < 1 {
		errs = append(errs, "controller.command_timeout_ms must be >= 1")
	}
	if c.Controller.StartupAttempts < 1 {
		errs = append(errs, "controller.startup_attempts must be >= 1")
	}
	if c.Controller.StartupIntervalMs < 1 {
		errs = append(errs, "controller.startup_interval_ms must be >= 1")
	}
	if c.Controller.ProbeTimeoutMs < 1 {
		errs = append(errs, "controller.probe_timeout_ms must be >= 1")
	}

	// Semantic validation: a heartbeat must be able to arrive before the timeout
	if c.Controller.HeartbeatTimeoutMs <= c.Controller.HeartbeatIntervalSeconds*1000 {
		errs = append(errs, "controller.heartbeat_timeout_ms must be > controller.heartbeat_interval_seconds")
	}
	if c.Runner.WatchdogCheckIntervalMs >= c.Runner.HeartbeatTimeoutMs {
		errs = append(errs, "runner.watchdog_check_interval_ms must be < runner.heartbeat_timeout_ms")
	}

	// Tools validation
	if c.Tools.GracefulShutdownMs < 1 {
		errs = append(errs, "tools.graceful_shutdown_ms must be >= 1")
	}
	if c.Tools.Shell == "" {
		errs = append(errs, "tools.shell must not be empty")
	}
	if c.Tools.MaxLineLength < 1 {
		errs = append(errs, "tools.max_line_length must be >= 1")
	}
	if c.Tools.InitialScannerBufferSize < 1 {
		errs = append(errs, "tools.initial_scanner_buffer_size must be >= 1")
	}
	if c.Tools.MaxScanTokenSize < c.Tools.InitialScannerBufferSize {
		errs = append(errs, "tools.max_scan_token_size must be >= tools.initial_scanner_buffer_size")
	}
	if c.Tools.InfoStructureLimit < 1 {
		errs = append(errs, "tools.info_structure_limit must be >= 1")
	}

	switch c.Log.Level {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Sprintf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %v", errs)
	}

	return nil
}
