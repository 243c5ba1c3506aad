package binder

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
)

// DefaultMaxBodySize caps JSON request bodies.
const DefaultMaxBodySize int64 = 64 << 10

type jsonConfig struct {
	maxBodySize int64
	allowEmpty  bool
}

type JSONOption func(*jsonConfig)

// WithMaxBodySize overrides DefaultMaxBodySize.
func WithMaxBodySize(n int64) JSONOption {
	return func(c *jsonConfig) {
		if n > 0 {
			c.maxBodySize = n
		}
	}
}

// AllowEmptyBody accepts requests without a body and leaves v untouched.
func AllowEmptyBody() JSONOption {
	return func(c *jsonConfig) {
		c.allowEmpty = true
	}
}

// JSON creates a strict JSON binder: the body must be a single object with no
// unknown fields.
func JSON(opts ...JSONOption) func(r *http.Request, v any) error {
	cfg := jsonConfig{maxBodySize: DefaultMaxBodySize}
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(r *http.Request, v any) error {
		if cfg.allowEmpty && (r.Body == nil || r.Body == http.NoBody || r.ContentLength == 0) {
			return nil
		}

		contentType := r.Header.Get("Content-Type")
		if contentType == "" {
			return fmt.Errorf("%w: expected application/json", ErrMissingContentType)
		}
		mediaType, _, err := mime.ParseMediaType(contentType)
		if err != nil || mediaType != "application/json" {
			return fmt.Errorf("%w: got %s, expected application/json", ErrUnsupportedMediaType, contentType)
		}

		decoder := json.NewDecoder(io.LimitReader(r.Body, cfg.maxBodySize+1))
		decoder.DisallowUnknownFields()

		if err := decoder.Decode(v); err != nil {
			switch {
			case errors.Is(err, io.EOF):
				return fmt.Errorf("%w: empty body", ErrInvalidJSON)
			case errors.Is(err, io.ErrUnexpectedEOF) && r.ContentLength > cfg.maxBodySize:
				return ErrBodyTooLarge
			default:
				return errors.Join(ErrInvalidJSON, err)
			}
		}

		var extra json.RawMessage
		if err := decoder.Decode(&extra); !errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: unexpected data after JSON object", ErrInvalidJSON)
		}

		return nil
	}
}
