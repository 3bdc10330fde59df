// Command playerdemo replays a scripted input session against the player
// state machine, optionally serving its live state over HTTP.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	hsm "github.com/stateforward/go-hfsm"
	"github.com/stateforward/go-hfsm/clock"
	"github.com/stateforward/go-hfsm/pkg/logger"
	"github.com/stateforward/go-hfsm/pkg/metrics"
	"github.com/stateforward/go-hfsm/pkg/plantuml"
	"github.com/stateforward/go-hfsm/pkg/set"
	"github.com/stateforward/go-hfsm/player"
	"github.com/stateforward/go-hfsm/queue"
)

type options struct {
	config      string
	script      string
	fps         float64
	logLevel    string
	logFormat   string
	debugAddr   string
	snapshotDir string
	realtime    bool
	timeScale   float64
	hold        bool
}

func main() {
	if err := newCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	opts := options{}
	cmd := &cobra.Command{
		Use:          "playerdemo",
		Short:        "Replay scripted player input through the hierarchical state machine",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return run(ctx, opts)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.config, "config", "", "player config YAML; defaults apply when empty")
	flags.StringVar(&opts.script, "script", "", "input script YAML")
	flags.Float64Var(&opts.fps, "fps", 60, "frames per second")
	flags.StringVar(&opts.logLevel, "log-level", "info", "debug, info, warn or error")
	flags.StringVar(&opts.logFormat, "log-format", string(logger.FormatConsole), "console or json")
	flags.StringVar(&opts.debugAddr, "debug-addr", "", "serve /state, /diagram and /metrics on this address")
	flags.StringVar(&opts.snapshotDir, "snapshot-dir", "", "write a PlantUML diagram here on every state change")
	flags.BoolVar(&opts.realtime, "realtime", false, "pace frames and activities by the wall clock")
	flags.Float64Var(&opts.timeScale, "time-scale", 1, "wall clock speed-up when --realtime is set")
	flags.BoolVar(&opts.hold, "hold", false, "keep serving after the script ends until interrupted")
	_ = cmd.MarkFlagRequired("script")
	return cmd
}

func run(ctx context.Context, opts options) error {
	log := logger.New(opts.logLevel, logger.Format(opts.logFormat))
	defer func() { _ = log.Sync() }()

	if opts.fps <= 0 {
		return errors.Newf("fps must be positive, got %g", opts.fps)
	}
	config := player.DefaultConfig
	if opts.config != "" {
		loaded, err := player.LoadConfig(opts.config)
		if err != nil {
			return err
		}
		config = loaded
	}
	script, err := player.LoadScript(opts.script)
	if err != nil {
		return err
	}

	var clk clock.Clock = clock.NewVirtual(time.Now())
	if opts.realtime {
		clk = clock.Make(clock.Config{Multiplier: opts.timeScale})
	}
	registry := prometheus.NewRegistry()
	machine, err := player.New(config, clk,
		hsm.WithLogger(log),
		hsm.WithMetrics(metrics.New(registry)),
	)
	if err != nil {
		return err
	}
	driver := player.NewDriver(machine, log.Named(logger.ComponentPlayer))
	driver.Start(ctx)
	log.Info("started", zap.String("machine", machine.ID()), zap.String("script", script.Name), zap.String("state", machine.State()))

	group, ctx := errgroup.WithContext(ctx)
	var server *http.Server
	if opts.debugAddr != "" {
		server = &http.Server{Addr: opts.debugAddr, Handler: router(driver, registry), ReadHeaderTimeout: 5 * time.Second}
		group.Go(func() error {
			log.Info("serving", zap.String("addr", opts.debugAddr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return errors.Wrap(err, "debug server")
			}
			return nil
		})
	}

	group.Go(func() error {
		if server != nil {
			defer func() {
				shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = server.Shutdown(shutdown)
			}()
		}
		if err := replay(ctx, log, opts, driver, script, clk); err != nil {
			return err
		}
		if opts.hold && server != nil {
			<-ctx.Done()
		}
		return nil
	})
	return group.Wait()
}

func replay(ctx context.Context, log *zap.Logger, opts options, driver *player.Driver, script player.Script, clk clock.Clock) error {
	frame := time.Duration(float64(time.Second) / opts.fps)
	var pace func(context.Context) error
	if opts.realtime {
		pace = func(ctx context.Context) error { return clk.Sleep(ctx, frame) }
	}
	snapshots := queue.New()
	observe := func(snapshot player.Snapshot) {
		if !snapshot.Changed || opts.snapshotDir == "" {
			return
		}
		active := set.New(driver.Machine.ActivePath()...)
		name := filepath.Join(opts.snapshotDir, fmt.Sprintf("%05d-%s.puml", snapshot.Frame, strings.ReplaceAll(strings.Trim(snapshot.State, "/"), "/", "-")))
		snapshots.Go(ctx, func(context.Context) error {
			return writeDiagram(name, driver.Machine.Model(), active.Contains)
		})
	}
	if opts.snapshotDir != "" {
		if err := os.MkdirAll(opts.snapshotDir, 0o755); err != nil {
			return errors.Wrapf(err, "creating snapshot dir %s", opts.snapshotDir)
		}
	}
	if err := player.Replay(ctx, driver, script, 1/opts.fps, pace, observe); err != nil {
		return err
	}
	if err := driver.Machine.Wait(ctx); err != nil {
		return err
	}
	// an empty task joins the current drain, so every snapshot has been written
	if err := snapshots.Submit(ctx, func(context.Context) error { return nil }); err != nil {
		return err
	}
	final := driver.Snapshot()
	log.Info("replay finished",
		zap.Int("frames", final.Frame),
		zap.String("state", final.State),
		zap.Float64("speed", final.Speed),
		zap.Float64("camera_height", final.CameraHeight),
		zap.Float64s("position", final.Position[:]))
	return nil
}

func writeDiagram(name string, model *hsm.Model, active func(hsm.StateID) bool) error {
	file, err := os.Create(name)
	if err != nil {
		return errors.Wrapf(err, "creating %s", name)
	}
	if err := plantuml.Generate(file, model, active); err != nil {
		_ = file.Close()
		return errors.Wrapf(err, "writing %s", name)
	}
	return file.Close()
}
