// main package for the voice-clone-service
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"

	"github.com/book-expert/voice-clone-service/internal/config"
	"github.com/book-expert/voice-clone-service/internal/core"
	"github.com/book-expert/voice-clone-service/internal/engine"
	"github.com/book-expert/voice-clone-service/internal/fsutil"
	"github.com/book-expert/voice-clone-service/internal/journal"
	"github.com/book-expert/voice-clone-service/internal/natsserver"
	"github.com/book-expert/voice-clone-service/internal/objectstore"
	"github.com/book-expert/voice-clone-service/internal/server"
	"github.com/book-expert/voice-clone-service/internal/telemetry"
	"github.com/book-expert/voice-clone-service/internal/tts"
	"github.com/book-expert/voice-clone-service/internal/tts/text"
	"github.com/book-expert/voice-clone-service/internal/worker"
)

const (
	programName       = "voice-clone-service"
	bootstrapLogFile  = "voice-clone-service-bootstrap.log"
	serviceLogFile    = "voice-clone-service.log"
	flagConfig        = "config"
	flagConfigDesc    = "Path to a TOML config file (defaults to the central configurator)"
	usageLine         = "usage: voice-clone-service [-config path] <port>"
	maxPort           = 65535
	preloadTimeout    = 10 * time.Minute
	natsConnectName   = "voice-clone-service"
	natsReconnectWait = 2 * time.Second
)

var (
	// ErrPortMissing is returned when no port argument is given.
	ErrPortMissing = errors.New("port number not provided")
	// ErrPortInvalid is returned when the port argument is not a valid port.
	ErrPortInvalid = errors.New("invalid port number")
)

// cliArgs holds the parsed command line.
type cliArgs struct {
	configPath string
	port       int
}

func parseArgs(args []string, output io.Writer) (cliArgs, error) {
	fs := flag.NewFlagSet(programName, flag.ContinueOnError)
	fs.SetOutput(output)

	var parsed cliArgs

	fs.StringVar(&parsed.configPath, flagConfig, "", flagConfigDesc)
	fs.Usage = func() {
		_, _ = fmt.Fprintln(output, usageLine)
		fs.PrintDefaults()
	}

	err := fs.Parse(args)
	if err != nil {
		return cliArgs{}, fmt.Errorf("failed to parse arguments: %w", err)
	}

	if fs.NArg() == 0 {
		return cliArgs{}, ErrPortMissing
	}

	port, err := strconv.Atoi(fs.Arg(0))
	if err != nil || port <= 0 || port > maxPort {
		return cliArgs{}, fmt.Errorf("%w: %q", ErrPortInvalid, fs.Arg(0))
	}

	parsed.port = port

	return parsed, nil
}

func setupLogger(logPath, fileName string) (*logger.Logger, error) {
	log, err := logger.New(logPath, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

func loadConfig(configPath string, bootstrapLog *logger.Logger) (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}

	return config.Load(bootstrapLog)
}

func run(args []string) error {
	// 1. Create a temporary logger for the bootstrap process
	bootstrapLog, err := setupLogger(os.TempDir(), bootstrapLogFile)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	defer func() { _ = bootstrapLog.Close() }()

	cli, err := parseArgs(args, os.Stderr)
	if err != nil {
		bootstrapLog.Error("Invalid command line: %v", err)

		return err
	}

	// 2. Load configuration
	cfg, err := loadConfig(cli.configPath, bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	bootstrapLog.Info("Configuration loaded successfully.")

	// 3. Initialize the final logger based on the loaded configuration
	err = fsutil.EnsureDir(cfg.Paths.BaseLogsDir)
	if err != nil {
		bootstrapLog.Error("Failed to create log directory: %v", err)

		return fmt.Errorf("failed to create log directory: %w", err)
	}

	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir, serviceLogFile)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			_, _ = fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, cli.port, finalLog)
}

// serve wires every component and blocks until ctx ends or a component fails.
func serve(ctx context.Context, cfg *config.Config, port int, log *logger.Logger) error {
	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry, log)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}

	defer func() {
		shutdownErr := shutdownTracing(context.Background())
		if shutdownErr != nil {
			log.Warn("Failed to flush traces: %v", shutdownErr)
		}
	}()

	history, err := journal.Open(ctx, cfg.Journal, log)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}

	defer func() { _ = history.Close() }()

	inference, err := engine.New(cfg.Engine, log)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	warning, isMock := mockEngineWarning(cfg.Engine.Kind)
	if isMock {
		log.Warn("%s", warning)
	}

	gateway, validator, err := buildGateway(cfg, inference, history, log)
	if err != nil {
		return err
	}

	preloadCtx, cancelPreload := context.WithTimeout(ctx, preloadTimeout)
	err = gateway.Preload(preloadCtx)

	cancelPreload()

	if err != nil {
		return fmt.Errorf("failed to preload weights: %w", err)
	}

	group, groupCtx := errgroup.WithContext(ctx)

	if cfg.NATS.Enabled {
		stopIntake, intakeErr := startIntake(groupCtx, group, cfg, gateway, log)
		if intakeErr != nil {
			return intakeErr
		}

		defer stopIntake()
	}

	srv := server.New(gateway, validator, history, server.Options{
		ErrorStyle:     cfg.Server.ErrorStyle,
		CORSOrigins:    cfg.Server.CORSOrigins,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		MetricsEnabled: cfg.Metrics.Enabled,
	}, log)

	httpServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(port)),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: time.Duration(cfg.Server.ReadHeaderTimeoutSeconds) * time.Second,
	}

	group.Go(func() error {
		log.System("Voice clone service listening on %s (engine: %s)", httpServer.Addr, cfg.Engine.Kind)

		listenErr := httpServer.ListenAndServe()
		if listenErr != nil && !errors.Is(listenErr, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", listenErr)
		}

		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()

		log.Info("Shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(),
			time.Duration(cfg.Server.ShutdownTimeoutSeconds)*time.Second)
		defer cancel()

		shutdownErr := httpServer.Shutdown(shutdownCtx)
		if shutdownErr != nil {
			return fmt.Errorf("http shutdown: %w", shutdownErr)
		}

		return nil
	})

	err = group.Wait()
	if err != nil {
		return err
	}

	log.System("Voice clone service stopped")

	return nil
}

func buildGateway(
	cfg *config.Config,
	inference core.Engine,
	history *journal.Store,
	log *logger.Logger,
) (*tts.Gateway, *tts.Validator, error) {
	referencePolicy, err := tts.ParseReferencePolicy(cfg.TTS.ReferencePolicy)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid reference policy: %w", err)
	}

	weightsPolicy, err := tts.ParseWeightsPolicy(cfg.TTS.WeightsPolicy)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid weights policy: %w", err)
	}

	languages := tts.NewLanguages(cfg.TTS.AllowAutoLanguage)

	opts := tts.GatewayOptions{
		Languages:     languages,
		WeightsPolicy: weightsPolicy,
		Weights: core.WeightSet{
			GPTPath:    cfg.TTS.GPTWeightsPath,
			SoVITSPath: cfg.TTS.SoVITSWeightsPath,
		},
		DefaultReferenceAudioPath: resolvePath(cfg.TTS.DefaultReferenceAudioPath, log),
		DefaultReferenceTextPath:  resolvePath(cfg.TTS.DefaultReferenceTextPath, log),
		DefaultReferenceLanguage:  cfg.TTS.DefaultReferenceLanguage,
		TempDir:                   cfg.TTS.TempDir,
		TopP:                      cfg.TTS.TopP,
		Temperature:               cfg.TTS.Temperature,
		SynthesisTimeout:          time.Duration(cfg.TTS.SynthesisTimeoutSeconds) * time.Second,
	}

	if cfg.TTS.NormalizeText {
		opts.Normalizer = text.NewPreprocessor()
	}

	if history.Persistent() {
		opts.Recorder = history
	}

	return tts.NewGateway(inference, opts, log), tts.NewValidator(referencePolicy, languages), nil
}

// mockEngineWarning reports whether kind selects the mock engine, which
// returns generated tones instead of cloned speech.
func mockEngineWarning(kind string) (string, bool) {
	if kind != config.EngineMock {
		return "", false
	}

	return fmt.Sprintf("MOCK ENGINE ACTIVE: engine.kind=%q returns placeholder tones, not cloned speech; "+
		"set engine.kind to %q or %q for production", kind, config.EngineExec, config.EngineHTTP), true
}

// resolvePath looks for a bundled file under the working directory and the
// model caches, falling back to the configured path.
func resolvePath(name string, log *logger.Logger) string {
	resolved, err := fsutil.ResolveFile(name)
	if err != nil {
		log.Warn("Reference file %s not found yet: %v", name, err)

		return name
	}

	return resolved
}

// startIntake connects to NATS, optionally starting an embedded server, and
// runs the job worker in group.
func startIntake(
	ctx context.Context,
	group *errgroup.Group,
	cfg *config.Config,
	gateway *tts.Gateway,
	log *logger.Logger,
) (func(), error) {
	var embedded *natsserver.EmbeddedServer

	url := cfg.NATS.URL

	if cfg.NATS.Embedded {
		var err error

		embedded, err = natsserver.Start(cfg.NATS.EmbeddedPort, cfg.NATS.EmbeddedStoreDir, log)
		if err != nil {
			return nil, fmt.Errorf("failed to start embedded NATS: %w", err)
		}

		url = embedded.ClientURL()
	}

	natsConnection, err := nats.Connect(url,
		nats.Name(natsConnectName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(natsReconnectWait),
	)
	if err != nil {
		embedded.Shutdown()

		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}

	store, err := objectstore.New(ctx, natsConnection, cfg.NATS.AudioObjectStoreBucket)
	if err != nil {
		natsConnection.Close()
		embedded.Shutdown()

		return nil, fmt.Errorf("failed to open object store: %w", err)
	}

	jobWorker := worker.NewNatsWorker(
		natsConnection,
		cfg.NATS.TextProcessedSubject,
		cfg.NATS.TargetLanguage,
		store,
		gateway,
		log,
	)

	group.Go(func() error {
		return jobWorker.Run(ctx)
	})

	stop := func() {
		natsConnection.Close()
		embedded.Shutdown()
	}

	return stop, nil
}

func main() {
	err := run(os.Args[1:])
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
