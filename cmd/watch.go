// Copyright © 2024 NAME HERE tejiriaustin123@gmail.com

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tejiriaustin/tiffwatch/clients"
	"github.com/tejiriaustin/tiffwatch/config"
	"github.com/tejiriaustin/tiffwatch/daemon"
	"github.com/tejiriaustin/tiffwatch/db"
	"github.com/tejiriaustin/tiffwatch/logger"
	"github.com/tejiriaustin/tiffwatch/monitoring"
	"github.com/tejiriaustin/tiffwatch/notify"
	"github.com/tejiriaustin/tiffwatch/server"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch a directory for TIFF files and report to the webhooks",
	Example: `  tiffwatch watch -w /data/scans
  tiffwatch watch -w /data/scans -i 5m -d 8h --low-space 50`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringP("watch", "w", "", "directory to watch")
	watchCmd.Flags().DurationP("interval", "i", 21*time.Minute, "time between polls")
	watchCmd.Flags().DurationP("duration", "d", 0, "how long to watch; 0 runs until stopped")
	watchCmd.Flags().Float64("low-space", 75, "warn when free space drops below this many GB")
	watchCmd.Flags().String("webhook", "", "webhook URL for status messages")
	watchCmd.Flags().String("warn-webhook", "", "webhook URL for warnings; defaults to --webhook")
	watchCmd.Flags().Bool("verify", false, "only count files whose content is TIFF")

	for key, flag := range map[string]string{
		"watch_directory":  "watch",
		"interval":         "interval",
		"duration":         "duration",
		"low_space_gb":     "low-space",
		"log_webhook_url":  "webhook",
		"warn_webhook_url": "warn-webhook",
		"verify_content":   "verify",
	} {
		if err := viper.BindPFlag(key, watchCmd.Flags().Lookup(flag)); err != nil {
			panic(fmt.Errorf("failed to bind flag %s: %w", flag, err))
		}
	}

	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(viper.GetViper(), validate)
	if err != nil {
		return err
	}

	log.Infow("Starting TIFF watcher",
		"directory", cfg.WatchDirectory,
		"interval", cfg.Interval.String(),
		"duration", cfg.Duration.String(),
		"low_space_gb", cfg.LowSpaceGB,
	)

	if err := cfg.WritePidFile(os.Getpid()); err != nil {
		return err
	}
	defer func() {
		if err := cfg.RemovePidFile(); err != nil {
			log.Warnw("Failed to remove PID file", "error", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scanner, err := newScanner(cfg, log)
	if err != nil {
		return err
	}
	defer scanner.Close()

	repo, err := db.NewClient(ctx, cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer repo.Close()

	webhook := clients.NewWebhookClient(
		clients.WithTimeout(cfg.WebhookTimeout),
		clients.WithMaxRetries(cfg.WebhookRetries),
		clients.WithRateLimit(cfg.WebhookRate, 3),
	)
	notifier := notify.NewNotifier(webhook, cfg.LogWebhookURL, cfg.WarnWebhookURL, log.Named("notify"))

	cmdChan := make(chan daemon.Command, 1)
	d, err := daemon.New(cfg, log.Named("daemon"), scanner, notifier, repo, cmdChan)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	var (
		wg      sync.WaitGroup
		errChan = make(chan error, 3)
		// closed once the watch session ends on its own
		finished = make(chan struct{})
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		h := server.NewHandler(log.Named("http")).SetupHandler(d, repo, cmdChan)
		if err := server.New(cfg, log.Named("http")).Start(ctx, h); err != nil {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	go func() {
		defer wg.Done()
		defer close(finished)
		if err := d.StartDaemon(ctx); err != nil {
			errChan <- fmt.Errorf("daemon error: %w", err)
		}
	}()

	if cfg.OsquerySocket != "" {
		ext, err := monitoring.NewExtension(cfg.OsquerySocket, d, log.Named("osquery"))
		if err != nil {
			log.Warnw("osquery extension disabled", "socket", cfg.OsquerySocket, "error", err)
		} else {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := ext.Start(ctx); err != nil {
					// osqueryd going away should not end the watch
					log.Warnw("osquery extension stopped", "error", err)
				}
			}()
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var runErr error
	select {
	case runErr = <-errChan:
		log.Errorw("Error in watcher service", "error", runErr)
	case sig := <-sigChan:
		log.Infow("Shutdown signal received", "signal", sig.String())
	case <-finished:
		log.Infow("Watch session finished", "run_id", d.RunID())
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("All goroutines finished")
	case <-shutdownCtx.Done():
		log.Warn("Shutdown timed out")
	}

	if runErr == nil {
		select {
		case runErr = <-errChan:
		default:
		}
	}

	log.Info("Watcher stopped")
	return runErr
}

func newScanner(cfg *config.Config, log *logger.Logger) (*monitoring.DirScanner, error) {
	opts := []monitoring.Options{
		monitoring.WithExtensions(cfg.Extensions),
		monitoring.WithContentCheck(cfg.VerifyContent),
		monitoring.WithLogger(log.Named("scanner")),
	}

	if cfg.SettleWindow > 0 {
		tracker, err := monitoring.NewActivityTracker(cfg.WatchDirectory, log.Named("activity"))
		if err != nil {
			log.Warnw("File activity tracking disabled, falling back to modification times", "error", err)
			opts = append(opts, monitoring.WithActivityTracker(nil, cfg.SettleWindow))
		} else {
			opts = append(opts, monitoring.WithActivityTracker(tracker, cfg.SettleWindow))
		}
	}

	return monitoring.NewDirScanner(cfg.WatchDirectory, opts...)
}

func stopDaemon(cmd *cobra.Command, args []string) {
	cfg := currentConfig()
	switch runtime.GOOS {
	case "darwin", "linux", "freebsd":
		stopUnixDaemon(cfg, log)
	case "windows":
		stopWindowsDaemon(cfg, log)
	default:
		log.Errorw("Unsupported operating system", "os", runtime.GOOS)
		os.Exit(1)
	}
}

func stopUnixDaemon(cfg *config.Config, log *logger.Logger) {
	pid, err := cfg.ReadPidFile()
	if err != nil {
		log.Infow("Failed to read PID file", "error", err)
		os.Exit(1)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		log.Errorw("Failed to find process", "pid", pid, "error", err)
		if err := cfg.RemovePidFile(); err != nil {
			log.Infow("Failed to remove PID file", "error", err)
		}
		os.Exit(1)
	}

	// SIGTERM lets the watcher send its final notice
	if err := process.Signal(syscall.SIGTERM); err != nil {
		log.Infow("Failed to stop watcher using SIGTERM", "pid", pid, "error", err)

		if err := process.Kill(); err != nil {
			log.Infow("Failed to stop watcher using SIGKILL", "pid", pid, "error", err)
			os.Exit(1)
		}
		log.Infow("Watcher stopped using SIGKILL", "pid", pid)
		if err := cfg.RemovePidFile(); err != nil {
			log.Infow("Failed to remove PID file", "error", err)
		}
		return
	}
	log.Infow("Watcher stopped using SIGTERM", "pid", pid)
}

func stopWindowsDaemon(cfg *config.Config, log *logger.Logger) {
	pid, err := cfg.ReadPidFile()
	if err != nil {
		log.Errorw("Failed to read PID file", "error", err)
		os.Exit(1)
	}

	// a graceful close lets the watcher send its final notice
	output, err := exec.Command("taskkill", taskkillArgs(pid, false)...).CombinedOutput()
	if err != nil {
		log.Infow("Graceful stop refused, forcing", "pid", pid, "error", err, "output", string(output))

		output, err = exec.Command("taskkill", taskkillArgs(pid, true)...).CombinedOutput()
		if err != nil {
			log.Errorw("Failed to stop watcher", "pid", pid, "error", err, "output", string(output))
			os.Exit(1)
		}
		log.Warnw("Watcher terminated forcefully, no final notice was sent", "pid", pid)
	} else {
		log.Infow("Watcher stopped successfully", "pid", pid, "output", string(output))
	}

	if err := cfg.RemovePidFile(); err != nil {
		log.Infow("Failed to remove PID file", "error", err)
	}
}

func taskkillArgs(pid int, force bool) []string {
	args := []string{"/PID", strconv.Itoa(pid)}
	if force {
		args = append([]string{"/F"}, args...)
	}
	return args
}
