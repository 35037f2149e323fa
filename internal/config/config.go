// Package config assembles the runtime Config from environment variables:
// each setting reads from its own env var, or from an env var suffixed
// "_FILE" pointing at a file holding the value.
package config

import (
	"fmt"
	"time"
)

// Config holds every daemon option, plus the operational knobs
// the bulk engine and orchestrators need to be configurable rather than
// hard-coded constants.
type Config struct {
	ListenPort      int    // HTTP/WS TCP port
	ConsoleIP       string // default target for the console connection
	ConsolePort     int    // default 10023
	SceneDir        string // sandbox root for scene (.scn) backups
	BackupDir       string // sandbox root for full-console (.bak) backups
	MockMode        bool   // replace the live transport with the synthesizing mock

	PerRequestTimeout time.Duration // C3 per-call deadline, default 500ms
	MaxAttempts       int           // C4 retry budget, default 3
	InflightWindow    int           // C4 max concurrent outstanding requests, default 1
	InterSendGap      time.Duration // C4/C7 minimum gap between sends, default 3ms
	ProgressCadence   int           // invoke progress callback every Nth address, default 1
	IdleWindow        time.Duration // C2 silence before reconnect probe, default 10s

	DiscoverTimeout time.Duration // discovery sweep collection window
}

const (
	envListenPort      = "X32MGR_LISTEN_PORT"
	envConsoleIP       = "X32MGR_CONSOLE_IP"
	envConsolePort     = "X32MGR_CONSOLE_PORT"
	envSceneDir        = "X32MGR_SCENE_DIR"
	envBackupDir       = "X32MGR_BACKUP_DIR"
	envMockMode        = "X32MGR_MOCK_MODE"
	envPerReqTimeoutMS = "X32MGR_REQUEST_TIMEOUT_MS"
	envMaxAttempts     = "X32MGR_MAX_ATTEMPTS"
	envInflightWindow  = "X32MGR_INFLIGHT_WINDOW"
	envInterSendGapMS  = "X32MGR_INTER_SEND_GAP_MS"
	envProgressCadence = "X32MGR_PROGRESS_CADENCE"
	envIdleWindowS     = "X32MGR_IDLE_WINDOW_S"
	envDiscoverTimeoutS = "X32MGR_DISCOVER_TIMEOUT_S"
)

// Load assembles a Config from the process environment, applying the
// defaults for anything unset.
func Load() (c Config, err error) {
	if c.ListenPort, err = Int(envListenPort, 8080); err != nil {
		return c, fmt.Errorf("config: %s: %w", envListenPort, err)
	}
	if c.ConsoleIP, err = String(envConsoleIP, ""); err != nil {
		return c, fmt.Errorf("config: %s: %w", envConsoleIP, err)
	}
	if c.ConsolePort, err = Int(envConsolePort, 10023); err != nil {
		return c, fmt.Errorf("config: %s: %w", envConsolePort, err)
	}
	if c.SceneDir, err = String(envSceneDir, "./scenes"); err != nil {
		return c, fmt.Errorf("config: %s: %w", envSceneDir, err)
	}
	if c.BackupDir, err = String(envBackupDir, c.SceneDir); err != nil {
		return c, fmt.Errorf("config: %s: %w", envBackupDir, err)
	}
	if c.MockMode, err = Bool(envMockMode, false); err != nil {
		return c, fmt.Errorf("config: %s: %w", envMockMode, err)
	}

	var ms int
	if ms, err = Int(envPerReqTimeoutMS, 500); err != nil {
		return c, fmt.Errorf("config: %s: %w", envPerReqTimeoutMS, err)
	}
	c.PerRequestTimeout = time.Duration(ms) * time.Millisecond

	if c.MaxAttempts, err = Int(envMaxAttempts, 3); err != nil {
		return c, fmt.Errorf("config: %s: %w", envMaxAttempts, err)
	}
	if c.InflightWindow, err = Int(envInflightWindow, 1); err != nil {
		return c, fmt.Errorf("config: %s: %w", envInflightWindow, err)
	}
	if ms, err = Int(envInterSendGapMS, 3); err != nil {
		return c, fmt.Errorf("config: %s: %w", envInterSendGapMS, err)
	}
	c.InterSendGap = time.Duration(ms) * time.Millisecond

	if c.ProgressCadence, err = Int(envProgressCadence, 1); err != nil {
		return c, fmt.Errorf("config: %s: %w", envProgressCadence, err)
	}

	var secs int
	if secs, err = Int(envIdleWindowS, 10); err != nil {
		return c, fmt.Errorf("config: %s: %w", envIdleWindowS, err)
	}
	c.IdleWindow = time.Duration(secs) * time.Second

	if secs, err = Int(envDiscoverTimeoutS, 2); err != nil {
		return c, fmt.Errorf("config: %s: %w", envDiscoverTimeoutS, err)
	}
	c.DiscoverTimeout = time.Duration(secs) * time.Second

	return c, nil
}
