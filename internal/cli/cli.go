package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/specialistvlad/passgrid/internal/app"
)

const usage = `
passgrid - runs analysis passes over documents as a dependency graph.

Usage:
  passgrid [options] [ROUND_PATH]

Arguments:
  ROUND_PATH
    Path to a single .hcl round file or a directory containing .hcl files.

Options:
`

// ExitError is an error that carries the process exit code.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

func usageError(format string, args ...any) *ExitError {
	return &ExitError{Code: 2, Message: fmt.Sprintf(format, args...)}
}

// oneOf lower-cases value and checks it against allowed.
func oneOf(flagName, value string, allowed ...string) (string, error) {
	v := strings.ToLower(value)
	if slices.Contains(allowed, v) {
		return v, nil
	}
	quoted := make([]string, len(allowed))
	for i, a := range allowed {
		quoted[i] = "'" + a + "'"
	}
	return "", usageError("invalid %s: must be one of %s", flagName, strings.Join(quoted, ", "))
}

// Parse turns args into an app.Config. The boolean reports that the program
// should exit cleanly without running, as after -h or when no round path is
// given. Usage problems are returned as *ExitError with code 2.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	fs := flag.NewFlagSet("passgrid", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.Usage = func() {
		fmt.Fprint(output, usage)
		fs.PrintDefaults()
	}

	var (
		roundPath, roundShort string
		logFormat, logLevel   string
		publishURL, publishNS string
		cfg                   app.Config
	)
	fs.StringVar(&roundPath, "round", "", "Path to the round file or directory.")
	fs.StringVar(&roundShort, "r", "", "Path to the round file or directory (shorthand).")
	fs.IntVar(&cfg.HealthcheckPort, "healthcheck-port", 0, "Port for the HTTP health, in-flight and round history server. 0 is disabled.")
	fs.StringVar(&logFormat, "log-format", "json", "Log output format. Options: 'text' or 'json'.")
	fs.StringVar(&logLevel, "log-level", "info", "Logging level. Options: 'debug', 'info', 'warn', 'error'.")
	fs.IntVar(&cfg.WorkerCount, "workers", 4, "Number of concurrent workers running passes.")
	fs.IntVar(&cfg.MaxRounds, "max-rounds", 3, "How many times a round is submitted before giving up on stale results.")
	fs.StringVar(&publishURL, "publish-url", "", "socket.io endpoint that receives a pass:applied event per applied pass.")
	fs.StringVar(&publishNS, "publish-namespace", "", "socket.io namespace used with -publish-url.")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, true, nil
		}
		return nil, false, usageError("%s", err.Error())
	}

	switch {
	case roundPath != "":
		cfg.RoundPath = roundPath
	case roundShort != "":
		cfg.RoundPath = roundShort
	case fs.NArg() > 0:
		cfg.RoundPath = fs.Arg(0)
	default:
		slog.Debug("No round path provided, printing usage and exiting.")
		fs.Usage()
		return nil, true, nil
	}

	var err error
	if cfg.LogFormat, err = oneOf("log-format", logFormat, "text", "json"); err != nil {
		return nil, false, err
	}
	if cfg.LogLevel, err = oneOf("log-level", logLevel, "debug", "info", "warn", "error"); err != nil {
		return nil, false, err
	}
	cfg.PublishURL = publishURL
	cfg.PublishNamespace = publishNS

	config, err := app.NewConfig(cfg)
	if err != nil {
		return nil, false, usageError("%s", err.Error())
	}
	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}
