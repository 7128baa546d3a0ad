package vbaunlock

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var (
	VBAUNLOCK_DEBUG *bool

	logger = zerolog.Nop()
)

// ConfigureLogging installs a console logger at the named level. An
// empty level means info. Debug output is enabled at "debug" or lower,
// or when VBAUNLOCK_DEBUG=1 is set in the environment.
func ConfigureLogging(out io.Writer, level string) error {
	parsed := zerolog.InfoLevel
	if level != "" {
		var err error
		parsed, err = zerolog.ParseLevel(strings.ToLower(level))
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", level, err)
		}
	}

	if debugFromEnv() && parsed > zerolog.DebugLevel {
		parsed = zerolog.DebugLevel
	}

	output := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
	}
	logger = zerolog.New(output).Level(parsed).With().
		Timestamp().Str("app", "vbaunlock").Logger()

	value := parsed <= zerolog.DebugLevel
	VBAUNLOCK_DEBUG = &value

	return nil
}

// Logger returns the logger installed by ConfigureLogging.
func Logger() *zerolog.Logger {
	return &logger
}

func debugFromEnv() bool {
	for _, x := range os.Environ() {
		if strings.HasPrefix(x, "VBAUNLOCK_DEBUG=1") {
			return true
		}
	}
	return false
}

func DebugPrintf(fmt_str string, args ...interface{}) {
	if VBAUNLOCK_DEBUG == nil {
		value := debugFromEnv()
		VBAUNLOCK_DEBUG = &value

		// Nobody configured logging, trace straight to stderr.
		if value {
			logger = zerolog.New(zerolog.ConsoleWriter{
				Out: os.Stderr, TimeFormat: time.RFC3339,
			}).Level(zerolog.DebugLevel).With().Timestamp().Logger()
		}
	}

	if *VBAUNLOCK_DEBUG {
		logger.Debug().Msg(strings.TrimSuffix(
			fmt.Sprintf(fmt_str, args...), "\n"))
	}
}
