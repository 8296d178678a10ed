package middleware

import (
	"io"
	"os"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/requestid"
)

// ============================================================
// Logger Middleware
// ============================================================

// Logger writes one access line per request to stream (stdout when nil).
func Logger(stream io.Writer) fiber.Handler {
	if stream == nil {
		stream = os.Stdout
	}
	return logger.New(logger.Config{
		Stream:     stream,
		Format:     "[${time}] ${status} - ${latency} ${method} ${path} | id=${respHeader:X-Request-ID} | Content-Type: ${reqHeader:Content-Type}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	})
}

// RequestID tags every request and response with X-Request-ID.
func RequestID() fiber.Handler {
	return requestid.New()
}
