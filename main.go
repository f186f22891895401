package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/peterbourgon/ff/v3"
	"golang.org/x/sync/errgroup"

	"github.com/und3rrr/media-cleaner/api"
	"github.com/und3rrr/media-cleaner/config"
	"github.com/und3rrr/media-cleaner/log"
	"github.com/und3rrr/media-cleaner/metrics"
	"github.com/und3rrr/media-cleaner/pipeline"
	"github.com/und3rrr/media-cleaner/store"
	"github.com/und3rrr/media-cleaner/toolchain"
	"github.com/und3rrr/media-cleaner/worker"
)

func main() {
	if err := flag.Set("logtostderr", "true"); err != nil {
		glog.Fatal(err)
	}
	fs := flag.NewFlagSet("media-cleaner", flag.ExitOnError)
	cli := config.Cli{}

	fs.StringVar(&cli.Host, "host", "127.0.0.1", "Host to bind the HTTP API to")
	fs.IntVar(&cli.Port, "port", config.DefaultPort, "Port to bind the HTTP API to")
	fs.StringVar(&cli.DataDir, "data-dir", ".", "Server root under which videos_input/videos_output/videos_temp/server_logs/queue_db live")
	fs.IntVar(&cli.Workers, "workers", config.DefaultWorkers, "Number of worker goroutines draining the task queue")
	fs.IntVar(&cli.MaxVideoSizeGB, "max-video-size-gb", config.DefaultMaxVideoSizeGB, "Maximum accepted upload size, in GiB")
	fs.IntVar(&cli.MaxConcurrentJobs, "max-concurrent-tasks", config.DefaultMaxConcurrentTasks, "Maximum number of tasks allowed to be PROCESSING at once")
	fs.IntVar(&cli.TaskTimeoutHours, "task-timeout-hours", config.DefaultTaskTimeoutHours, "Hours a task may sit PROCESSING before the supervisor fails it")
	fs.IntVar(&cli.RetentionDays, "auto-cleanup-days", config.DefaultRetentionDays, "Age in days past which POST /cleanup removes terminal tasks when called without ?days= (no cleanup runs on its own)")
	fs.BoolVar(&cli.Debug, "debug", false, "Enable verbose (debug-level) logging")
	metricsPort := fs.Int("metrics-port", 9090, "Prometheus /metrics listen port")
	ffmpegPath := fs.String("ffmpeg-path", "ffmpeg", "Path to the ffmpeg binary")
	vFlag := flag.Lookup("v")
	verbosity := fs.String("v", "", "Log verbosity {0-9}")
	version := fs.Bool("version", false, "print application version and exit")
	_ = fs.String("config", "", "config file (optional)")

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
		ff.WithEnvVarPrefix("MEDIACLEANER"),
	); err != nil {
		glog.Fatalf("error parsing cli: %s", err)
	}
	if len(fs.Args()) > 0 {
		glog.Fatalf("unexpected extra arguments on command line: %v", fs.Args())
	}

	if *version {
		fmt.Printf("media-cleaner version: %s\n", config.Version)
		return
	}
	if *verbosity != "" {
		if err := vFlag.Value.Set(*verbosity); err != nil {
			glog.Fatal(err)
		}
	} else if cli.Debug {
		if err := vFlag.Value.Set("6"); err != nil {
			glog.Fatal(err)
		}
	}

	if err := config.Bootstrap(cli.DataDir, *ffmpegPath); err != nil {
		glog.Fatalf("config validation failed: %s", err)
	}

	s := store.New(filepath.Join(cli.DataDir, config.DirQueueDB, config.TaskDBFileName))
	if err := s.Load(); err != nil {
		glog.Fatalf("failed to load task store: %s", err)
	}

	ffmpeg := &toolchain.FFmpeg{FFmpegPath: *ffmpegPath}
	runner := pipeline.NewRunner(s, ffmpeg, cli.DataDir)
	pool := worker.NewPool(s, runner, cli.Workers)
	supervisor := worker.NewSupervisor(s, cli.TaskTimeoutHours)

	router := api.NewRouter(s, cli, cli.DataDir)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cli.Host, cli.Port),
		Handler: router,
	}

	group, ctx := errgroup.WithContext(context.Background())

	group.Go(func() error {
		pool.Start(ctx)
		return nil
	})

	group.Go(func() error {
		supervisor.Run(ctx)
		return nil
	})

	group.Go(func() error {
		return metrics.ListenAndServe(*metricsPort)
	})

	group.Go(func() error {
		log.LogNoRequestID("starting HTTP API", "addr", httpServer.Addr, "version", config.Version)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	group.Go(func() error {
		return handleSignals(ctx)
	})

	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.LogNoRequestID("shutdown complete", "reason", err)
	}
}

// handleSignals blocks until SIGINT/SIGTERM is received, then returns so the
// errgroup context cancels and every other goroutine unwinds.
func handleSignals(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		return fmt.Errorf("received signal %s", sig)
	case <-ctx.Done():
		return ctx.Err()
	}
}
