package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"

	"github.com/eugenenazirov/keypad-calculator/internal/application"
	"github.com/eugenenazirov/keypad-calculator/internal/calculator"
	"github.com/eugenenazirov/keypad-calculator/internal/config"
	"github.com/eugenenazirov/keypad-calculator/internal/logging"
	"github.com/eugenenazirov/keypad-calculator/internal/shell"
)

var signalNotify = signal.Notify

type cliFlags struct {
	configFile string
	logLevel   string
	maxDigits  int

	port           string
	maxSessions    int
	sessionTTL     time.Duration
	rateLimitRPS   float64
	rateLimitBurst int

	strict bool
	trace  bool
	keys   []string
}

func main() {
	kingpinApp := kingpin.New("calculator", "Keypad calculator - chained four-function arithmetic over HTTP or a scripted terminal shell")
	flags := &cliFlags{rateLimitRPS: -1, rateLimitBurst: -1}

	kingpinApp.Flag("config", "Path to YAML configuration file").StringVar(&flags.configFile)
	kingpinApp.Flag("log-level", "Log level (debug, info, warn, error)").StringVar(&flags.logLevel)
	kingpinApp.Flag("max-digits", "Maximum digits per operand (set 0 to use configuration)").Default("0").IntVar(&flags.maxDigits)

	serveCmd := kingpinApp.Command("serve", "Serve calculator sessions over HTTP").Default()
	serveCmd.Flag("port", "HTTP port exposed by the service").StringVar(&flags.port)
	serveCmd.Flag("max-sessions", "Maximum concurrent sessions (set 0 to use configuration)").Default("0").IntVar(&flags.maxSessions)
	serveCmd.Flag("session-ttl", "Idle time after which a session is discarded").DurationVar(&flags.sessionTTL)
	serveCmd.Flag("rate-limit-rps", "Requests per second allowed per client (set 0 to disable)").Default("-1").Float64Var(&flags.rateLimitRPS)
	serveCmd.Flag("rate-limit-burst", "Burst capacity for rate limiter (set 0 to disable)").Default("-1").IntVar(&flags.rateLimitBurst)

	runCmd := kingpinApp.Command("run", "Press keys on a local calculator and print the display after each one")
	runCmd.Flag("strict", "Stop at the first rejected key").BoolVar(&flags.strict)
	runCmd.Flag("trace", "Print the key next to each display").BoolVar(&flags.trace)
	runCmd.Arg("keys", "Keys to press, e.g. '12+3='; read from stdin when omitted").StringsVar(&flags.keys)

	command := kingpin.MustParse(kingpinApp.Parse(os.Args[1:]))

	cfg, err := config.Load(flags.overrides())
	if err != nil {
		kingpinApp.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		kingpinApp.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	switch command {
	case serveCmd.FullCommand():
		serve(cfg, logger)
	case runCmd.FullCommand():
		if err := runShell(cfg, flags, os.Stdin, os.Stdout, logger); err != nil {
			logger.Error("run failed", zap.Error(err))
			_ = logger.Sync()
			os.Exit(exitCode(err))
		}
	}
}

// overrides converts flags into config overrides; unset flags stay nil.
func (f *cliFlags) overrides() *config.CLIOverrides {
	overrides := &config.CLIOverrides{
		ConfigFile: f.configFile,
	}

	if f.port != "" {
		overrides.Port = &f.port
	}
	if f.logLevel != "" {
		overrides.LogLevel = &f.logLevel
	}
	if f.maxDigits > 0 {
		overrides.MaxDigits = &f.maxDigits
	}
	if f.maxSessions > 0 {
		overrides.MaxSessions = &f.maxSessions
	}
	if f.sessionTTL > 0 {
		overrides.SessionIdleTTL = &f.sessionTTL
	}
	if f.rateLimitRPS >= 0 {
		overrides.RateLimitRPS = &f.rateLimitRPS
	}
	if f.rateLimitBurst >= 0 {
		overrides.RateLimitBurst = &f.rateLimitBurst
	}

	return overrides
}

func serve(cfg config.Config, logger *zap.Logger) {
	app, err := application.New(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize application", zap.Error(err))
	}
	if err := runServer(app, cfg.ShutdownGracePeriod, logger); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}
}

// runServer starts app and blocks until a shutdown signal has drained the
// HTTP server and stopped the session janitor.
func runServer(app *application.App, grace time.Duration, logger *zap.Logger) error {
	if err := app.Start(); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	defer app.Stop()

	shutdown(app.Server(), grace, logger)
	return nil
}

func runShell(cfg config.Config, flags *cliFlags, in io.Reader, out io.Writer, logger *zap.Logger) error {
	sh := shell.New(
		calculator.New(calculator.WithMaxDigits(cfg.MaxDigits)),
		out,
		shell.WithLogger(logger),
		shell.WithStrict(flags.strict),
		shell.WithTrace(flags.trace),
	)

	if len(flags.keys) > 0 {
		if err := sh.Exec(strings.Join(flags.keys, " ")); err != nil {
			return fmt.Errorf("press keys: %w", err)
		}
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return sh.Run(ctx, in)
}

// Exit codes of the run command.
const (
	exitIOError    = 1
	exitInputError = 2
)

// exitCode tells a rejected key sequence apart from a broken input or output
// stream so scripts can react to either.
func exitCode(err error) int {
	if shell.IsInputError(err) {
		return exitInputError
	}
	return exitIOError
}

func shutdown(server *http.Server, timeout time.Duration, logger *zap.Logger) {
	quit := make(chan os.Signal, 1)
	signalNotify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
		if closeErr := server.Close(); closeErr != nil {
			logger.Error("forced close failed", zap.Error(closeErr))
		}
	}
}
