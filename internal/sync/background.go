package sync

import (
	"context"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"gomarks/internal/config"
	"gomarks/internal/utils"
)

// BackgroundCommand is the hidden command a spawned sync process runs
const BackgroundCommand = "_internal_background_sync"

// backgroundTimeout bounds a detached cycle
const backgroundTimeout = 2 * time.Minute

// SpawnBackgroundSync spawns a detached process that runs one sync cycle,
// so the CLI can exit immediately after a local change
func SpawnBackgroundSync(configPath string) error {
	executable, err := os.Executable()
	if err != nil {
		return err
	}
	executable, err = filepath.EvalSymlinks(executable)
	if err != nil {
		return err
	}

	args := []string{BackgroundCommand}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}
	cmd := exec.Command(executable, args...)

	detach(cmd)
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Stdin = nil

	if err := cmd.Start(); err != nil {
		return err
	}
	return cmd.Process.Release()
}

// RunBackgroundSyncInProcess runs one cycle for cfg in the current process,
// logging to the background log. It is what the hidden command executes.
func RunBackgroundSyncInProcess(cfg *config.Config) error {
	logger := log.New(os.Stderr, "[AutoSync] ", log.LstdFlags)
	bg, err := utils.NewBackgroundLogger(cfg.Log.BackgroundFile)
	if err == nil {
		defer bg.Close()
		logger.SetOutput(bg.Writer())
	}
	logger.Printf("Started background sync (PID: %d)", os.Getpid())

	if !cfg.Sync.Enabled || !cfg.Sync.AutoSync {
		logger.Printf("Sync or auto_sync not enabled")
		return nil
	}

	engine, err := OpenEngine(cfg)
	if err != nil {
		logger.Printf("Failed to open sync engine: %v", err)
		return err
	}
	defer engine.Close()

	ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
	defer cancel()

	pingCtx, pingCancel := context.WithTimeout(ctx, probeTimeout)
	err = engine.Client.Ping(pingCtx)
	pingCancel()
	if err != nil {
		logger.Printf("Skipping sync: authority unreachable: %v", err)
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		result, err := engine.Manager.Sync(ctx)
		if err != nil {
			logger.Printf("Sync error: %v", err)
			return
		}
		logger.Printf("Sync completed: %s", result.Summary())
		for _, e := range result.Errors {
			logger.Printf("  error: %v", e)
		}
	}()

	select {
	case <-done:
	case <-ctx.Done():
		logger.Printf("Timeout after %s", backgroundTimeout)
	}
	return nil
}
