package config

// Config holds all runner and controller configuration values.
// Defaults are set in DefaultConfig() and can be overridden via dotfile and
// environment variables, in that order.
// NOTE: Values in config files override defaults, including explicit zero values.
// Missing keys are left at their default values.
type Config struct {
	Runner     RunnerConfig     `json:"runner"`
	Controller ControllerConfig `json:"controller"`
	Tools      ToolsConfig      `json:"tools"`
	Log        LogConfig        `json:"log"`
}

// RunnerConfig configures the process running inside the container.
type RunnerConfig struct {
	Port           int    `json:"port"`            // Default: 8080
	WorkspaceRoot  string `json:"workspace_root"`  // Default: /workspace
	SandboxProfile string `json:"sandbox_profile"` // Default: "" (permissive)

	// Watchdog
	HeartbeatTimeoutMs      int `json:"heartbeat_timeout_ms"`       // Default: 30000
	WatchdogCheckIntervalMs int `json:"watchdog_check_interval_ms"` // Default: 2000

	MaxConcurrentCommands int `json:"max_concurrent_commands"` // Default: 8
	ShutdownTimeoutMs     int `json:"shutdown_timeout_ms"`     // Default: 5000
}

// ControllerConfig configures the host-side lifecycle manager.
type ControllerConfig struct {
	Image         string `json:"image"`          // Default: workspace-runner:latest
	ContainerName string `json:"container_name"` // Default: workspace-runner
	HostPort      int    `json:"host_port"`      // Default: 8080
	HostDir       string `json:"host_dir"`       // Default: ./workspace
	RuntimeBinary string `json:"runtime_binary"` // Default: docker

	// Liveness
	HeartbeatIntervalSeconds int `json:"heartbeat_interval_seconds"` // Default: 5
	HeartbeatTimeoutMs       int `json:"heartbeat_timeout_ms"`       // Default: 15000

	CommandTimeoutMs int `json:"command_timeout_ms"` // Default: 30000

	// Readiness
	StartupAttempts   int `json:"startup_attempts"`    // Default: 10
	StartupIntervalMs int `json:"startup_interval_ms"` // Default: 1000
	ProbeTimeoutMs    int `json:"probe_timeout_ms"`    // Default: 2000
}

// ToolsConfig tunes the filesystem and shell capability.
type ToolsConfig struct {
	// Command Execution
	GracefulShutdownMs int    `json:"graceful_shutdown_ms"` // Default: 2000
	Shell              string `json:"shell"`                // Default: /bin/sh

	// Search
	MaxLineLength            int `json:"max_line_length"`             // Default: 10000
	InitialScannerBufferSize int `json:"initial_scanner_buffer_size"` // Default: 65536
	MaxScanTokenSize         int `json:"max_scan_token_size"`         // Default: 10485760

	// Workspace info
	InfoStructureLimit int `json:"info_structure_limit"` // Default: 200
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level string `json:"level"` // Default: info
	JSON  bool   `json:"json"`  // Default: false
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Runner: RunnerConfig{
			Port:                    8080,
			WorkspaceRoot:           "/workspace",
			SandboxProfile:          "",
			HeartbeatTimeoutMs:      30000,
			WatchdogCheckIntervalMs: 2000,
			MaxConcurrentCommands:   8,
			ShutdownTimeoutMs:       5000,
		},
		Controller: ControllerConfig{
			Image:                    "workspace-runner:latest",
			ContainerName:            "workspace-runner",
			HostPort:                 8080,
			HostDir:                  "./workspace",
			RuntimeBinary:            "docker",
			HeartbeatIntervalSeconds: 5,
			HeartbeatTimeoutMs:       15000,
			CommandTimeoutMs:         30000,
			StartupAttempts:          10,
			StartupIntervalMs:        1000,
			ProbeTimeoutMs:           2000,
		},
		Tools: ToolsConfig{
			GracefulShutdownMs:       2000,
			Shell:                    "/bin/sh",
			MaxLineLength:            10000,
			InitialScannerBufferSize: 64 * 1024,
			MaxScanTokenSize:         10 * 1024 * 1024,
			InfoStructureLimit:       200,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
