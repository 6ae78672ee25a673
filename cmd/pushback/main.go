// Command pushback drives a simulated pushback tow truck and records the run.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/towsim/pushback/internal/api"
	"github.com/towsim/pushback/internal/asset"
	"github.com/towsim/pushback/internal/config"
	"github.com/towsim/pushback/internal/dispatcher"
	"github.com/towsim/pushback/internal/driving"
	"github.com/towsim/pushback/internal/geo"
	"github.com/towsim/pushback/internal/handlers"
	"github.com/towsim/pushback/internal/logging"
	"github.com/towsim/pushback/internal/monitor"
	intOtel "github.com/towsim/pushback/internal/otel"
	"github.com/towsim/pushback/internal/sim"
	"github.com/towsim/pushback/internal/storage"
	"github.com/towsim/pushback/internal/terrain"
	"github.com/towsim/pushback/internal/truck"
	"github.com/towsim/pushback/pkg/core"
)

// Version and BuildDate can be set at build time via ldflags
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
)

const AppName = "pushback"

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "pushback:", err)
		os.Exit(1)
	}
}

// app holds everything run wires together, torn down in reverse by close.
type app struct {
	start    time.Time
	logs     *logging.SlogManager
	logger   *slog.Logger
	logFile  *os.File
	otelFile *os.File
	provider *intOtel.Provider
	backend  storage.Backend
	session  *sim.Session
	current  atomic.Pointer[sim.Session]
	monitor  *monitor.Service
	disp     *dispatcher.Dispatcher
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet(AppName, pflag.ContinueOnError)
	fs.String("config", ".", "directory containing "+config.FileName)
	fs.String("log-level", "", "debug, info, warn or error")
	fs.String("to", "", "drive to x,y[,hdg] and run until idle")
	fs.Float64("dt", 0.05, "integration step in seconds")
	fs.String("script", "", "file of command lines to run instead of stdin")
	return fs
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return err
	}
	for key, flag := range map[string]string{"logLevel": "log-level", "dt": "dt"} {
		if err := viper.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}

	configDir, _ := fs.GetString("config")
	cfgErr := config.Load(configDir)

	a := &app{start: time.Now()}
	defer a.close()

	if err := a.initLogging(); err != nil {
		return err
	}
	if cfgErr != nil {
		a.logger.Warn("Config file not loaded, using defaults", "dir", configDir, "error", cfgErr)
	}
	a.logger.Info("Starting", "version", Version, "build", BuildDate)

	if err := a.initStorage(); err != nil {
		a.logger.Error("Storage initialization failed", "error", err)
		return err
	}
	if err := a.initSession(); err != nil {
		a.logger.Error("Session initialization failed", "error", err)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	dt := viper.GetFloat64("dt")
	if to, _ := fs.GetString("to"); to != "" {
		return a.driveTo(ctx, to, dt)
	}

	in := stdin
	if script, _ := fs.GetString("script"); script != "" {
		f, err := os.Open(script)
		if err != nil {
			return fmt.Errorf("open script: %w", err)
		}
		defer f.Close()
		in = f
	}
	return a.runScript(ctx, in, stdout)
}

func (a *app) initLogging() error {
	logsDir := config.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return fmt.Errorf("create logs dir: %w", err)
	}
	path := logging.LogFilePath(logsDir, AppName, a.start)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	a.logFile = f

	opts := logging.Options{Level: config.GetString("logLevel"), File: f, Context: a.sessionAttrs}

	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		a.otelFile, err = os.OpenFile(strings.TrimSuffix(path, ".log")+".otel.jsonl",
			os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open otel file: %w", err)
		}
		a.provider, err = intOtel.New(intOtel.Config{
			Enabled:      true,
			ServiceName:  otelCfg.ServiceName,
			BatchTimeout: otelCfg.BatchTimeout,
			LogWriter:    a.otelFile,
			MetricWriter: a.otelFile,
			Endpoint:     otelCfg.Endpoint,
			Insecure:     otelCfg.Insecure,
		})
		if err != nil {
			return fmt.Errorf("otel: %w", err)
		}
		a.provider.InstallGlobal()
		opts.Provider = a.provider.LoggerProvider()
	}

	if gl := config.GetGraylogConfig(); gl.Enabled {
		w, err := logging.NewGelfWriter(gl.Address)
		if err != nil {
			return err
		}
		opts.Gelf = w
	}

	a.logs = logging.NewSlogManager()
	a.logs.Setup(opts)
	a.logger = a.logs.Logger()
	return nil
}

func (a *app) initSession() error {
	truckCfg := config.GetTruckConfig()
	drivingCfg := config.GetDrivingConfig()
	simCfg := config.GetSimConfig()
	geoCfg := config.GetGeoConfig()

	probe, err := terrain.FromConfig(config.GetTerrainConfig())
	if err != nil {
		return err
	}

	a.session, err = sim.NewSession(sim.Dependencies{
		TruckID:  truckCfg.ID,
		Params:   truck.ParamsFromConfig(truckCfg),
		Sim:      simCfg,
		Origin:   geo.Origin{Lat: geoCfg.OriginLat, Lon: geoCfg.OriginLon},
		Planner:  driving.NewCSCPlanner(drivingCfg),
		Follower: driving.NewTracker(drivingCfg),
		Terrain:  probe,
		Assets:   asset.NewFileService(afero.NewOsFs(), simCfg.AssetDir, a.logger),
		Storage:  a.backend,
		Logger:   a.logger,
	})
	if err != nil {
		return err
	}
	a.current.Store(a.session)

	if mc := config.GetMonitorConfig(); mc.StatusFile != "" {
		a.monitor = monitor.NewService(monitor.Dependencies{
			Source:   a.session,
			Path:     filepath.Join(dataDir(), mc.StatusFile),
			Interval: mc.Interval,
			Logger:   a.logger,
		})
		if err := a.monitor.Start(); err != nil {
			return err
		}
	}

	a.disp, err = dispatcher.New(logging.NewDispatcherLogger(a.logger))
	if err != nil {
		return err
	}
	handlers.NewService(handlers.Dependencies{
		Session:    a.session,
		LogManager: a.logs,
		DefaultDt:  viper.GetFloat64("dt"),
	}).Register(a.disp)
	return nil
}

// sessionAttrs stamps log records with the running session and frame.
func (a *app) sessionAttrs() []slog.Attr {
	s := a.current.Load()
	if s == nil {
		return nil
	}
	return []slog.Attr{slog.String("session", s.ID()), slog.Uint64("frame", uint64(s.Frame()))}
}

func (a *app) driveTo(ctx context.Context, to string, dt float64) error {
	dst, hdg, err := geo.ParsePose(to)
	if err != nil {
		return err
	}
	if err := a.session.Drive(dst, hdg); err != nil {
		a.logger.Error("Drive request failed", "to", to, "error", err)
		return err
	}
	steps, err := a.session.RunUntilIdle(ctx, dt, 0)
	if err != nil {
		a.logger.Error("Run failed", "steps", steps, "error", err)
		return err
	}
	st := a.session.Status()
	a.logger.Info("Arrived", "steps", steps, "x", st.X, "y", st.Y, "hdg", st.Heading, "distance", st.Distance)
	return nil
}

// runScript feeds command lines to the dispatcher and prints each response.
// Blank lines and lines starting with # are skipped. Terrain misses and
// asset failures stop the script.
func (a *app) runScript(ctx context.Context, in io.Reader, out io.Writer) error {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		e, err := dispatcher.ParseEvent(line, time.Now())
		if err != nil {
			continue
		}
		result, err := a.disp.Dispatch(e)
		fmt.Fprintln(out, dispatcher.FormatResponse(e.Command, result, err))
		if isFatal(err) {
			a.logger.Error("Fatal command error", "command", e.Command, "error", err)
			return err
		}
	}
	return sc.Err()
}

func isFatal(err error) bool {
	return errors.Is(err, terrain.ErrNoHit) || errors.Is(err, truck.ErrAssetLoad) ||
		errors.Is(err, asset.ErrUnknownHandle)
}

func (a *app) close() {
	if a.disp != nil {
		a.disp.Close()
	}
	if a.monitor != nil {
		a.monitor.Stop()
	}
	if a.session != nil {
		if err := a.session.Close(); err != nil {
			a.logger.Error("Failed to close session", "error", err)
		}
	}
	if a.backend != nil {
		if err := a.backend.Close(); err != nil {
			a.logger.Error("Failed to close storage", "error", err)
		}
		if u, ok := storage.AsUploadable(a.backend); ok && u.GetExportedFilePath() != "" {
			meta := u.GetExportMetadata()
			a.logger.Info("Session exported", "path", u.GetExportedFilePath(),
				"duration", meta.Duration, "distance", meta.Distance, "frames", meta.EndFrame)
			a.upload(u.GetExportedFilePath(), meta)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if a.logs != nil {
		_ = a.logs.Flush(ctx)
	}
	if a.provider != nil {
		if err := a.provider.Shutdown(ctx); err != nil && a.logger != nil {
			a.logger.Error("OTel shutdown failed", "error", err)
		}
	}
	if a.otelFile != nil {
		_ = a.otelFile.Close()
	}
	if a.logFile != nil {
		_ = a.logFile.Close()
	}
}

// influxLogger is the zerolog logger handed to the database and influx
// managers. It writes JSON lines to the main log file.
func (a *app) influxLogger() zerolog.Logger {
	var w io.Writer = io.Discard
	if a.logFile != nil {
		w = a.logFile
	}
	return zerolog.New(w).With().Timestamp().Str("app", AppName).Logger()
}

func dataDir() string {
	dir := config.GetString("dataDir")
	if dir == "" {
		dir = "."
	}
	return filepath.Clean(dir)
}

// upload sends an exported session to the recordings server when enabled.
func (a *app) upload(path string, meta core.UploadMetadata) {
	ac := config.GetAPIConfig()
	if !ac.Upload {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	client := api.New(ac.ServerURL, ac.APIKey)
	if err := client.Healthcheck(ctx); err != nil {
		a.logger.Warn("Recordings server unreachable, keeping local export", "url", ac.ServerURL, "error", err)
		return
	}
	if err := client.Upload(ctx, path, meta); err != nil {
		a.logger.Error("Upload failed", "path", path, "error", err)
		return
	}
	a.logger.Info("Session uploaded", "url", ac.ServerURL, "session", meta.SessionID)
}
