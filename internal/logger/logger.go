package logger

import (
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func Setup(dev bool) zerolog.Logger {
	var logger zerolog.Logger
	level := zerolog.InfoLevel
	if dev {
		level = zerolog.DebugLevel
	}

	logger = zerolog.New(os.Stderr).Level(level).With().Timestamp().Caller().Logger()

	if dev {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, FormatTimestamp: func(i any) string {
			return time.Now().Format(time.RFC3339)
		}}).Level(level).With().Stack().Logger()
	}

	return logger
}

// Requests returns a gin middleware that attaches the logger to the
// request context and records one line per request with method, path,
// status and duration.
func Requests(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()

		ctx := logger.With().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Str("addr", c.ClientIP()).
			Logger().WithContext(c.Request.Context())

		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		evt := zerolog.Ctx(ctx).Info()
		if status >= 500 {
			evt = zerolog.Ctx(ctx).Error()
		}

		evt.
			Int("status", status).
			Dur("duration", time.Since(started)).
			Msg("http request")
	}
}
