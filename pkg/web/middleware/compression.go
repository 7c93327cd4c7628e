package middleware

import (
	"strings"

	"github.com/valyala/fasthttp"

	"github.com/fluxorio/todochaos/pkg/web"
)

// CompressionConfig configures response compression
type CompressionConfig struct {
	// Level is the gzip level (1-9, default: 6)
	Level int

	// MinSize is the minimum response size to compress (default: 1024 bytes)
	MinSize int

	// ContentTypes is a list of content types to compress
	ContentTypes []string

	// SkipPaths is a list of path prefixes to skip compression
	SkipPaths []string
}

// DefaultCompressionConfig returns a default compression configuration
func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{
		Level:   6,
		MinSize: 1024,
		ContentTypes: []string{
			"text/plain",
			"text/html",
			"application/json",
		},
		SkipPaths: []string{"/metrics"},
	}
}

// Compression gzips eligible responses after the handler ran
func Compression(config CompressionConfig) web.FastMiddleware {
	level := config.Level
	if level < 1 || level > 9 {
		level = 6
	}

	minSize := config.MinSize
	if minSize < 0 {
		minSize = 1024
	}

	contentTypes := config.ContentTypes
	if len(contentTypes) == 0 {
		contentTypes = DefaultCompressionConfig().ContentTypes
	}

	return func(next web.FastRequestHandler) web.FastRequestHandler {
		return func(ctx *web.FastRequestContext) error {
			err := next(ctx)
			if err != nil || skipped(string(ctx.Path()), config.SkipPaths) {
				return err
			}

			resp := &ctx.RequestCtx.Response
			if len(resp.Header.Peek(fasthttp.HeaderContentEncoding)) > 0 {
				return nil
			}
			if !ctx.RequestCtx.Request.Header.HasAcceptEncoding("gzip") {
				return nil
			}

			body := resp.Body()
			if len(body) < minSize {
				return nil
			}

			contentType := strings.ToLower(string(resp.Header.ContentType()))
			eligible := false
			for _, ct := range contentTypes {
				if strings.HasPrefix(contentType, ct) {
					eligible = true
					break
				}
			}
			if !eligible {
				return nil
			}

			compressed := fasthttp.AppendGzipBytesLevel(nil, body, level)
			resp.SetBodyRaw(compressed)
			resp.Header.Set(fasthttp.HeaderContentEncoding, "gzip")
			resp.Header.Add(fasthttp.HeaderVary, fasthttp.HeaderAcceptEncoding)
			return nil
		}
	}
}
