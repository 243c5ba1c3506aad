package qrcode

import (
	"encoding/base64"
	"errors"
	"strings"

	skipqrcode "github.com/skip2/go-qrcode"
)

var (
	// ErrEmptyContent is returned when content string is empty or only whitespace
	ErrEmptyContent = errors.New("content cannot be empty")
	// ErrFailedToGenerateQRCode is returned when the QR code generation fails.
	ErrFailedToGenerateQRCode = errors.New("failed to generate QR code")
)

const (
	DefaultSize   = 256
	dataURIPrefix = "data:image/png;base64,"
)

// Renderer produces square PNG QR codes of a fixed size and error-correction level.
type Renderer struct {
	size  int
	level skipqrcode.RecoveryLevel
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithSize sets the image side in pixels. Non-positive values keep the default.
func WithSize(size int) Option {
	return func(r *Renderer) {
		if size > 0 {
			r.size = size
		}
	}
}

// WithRecoveryLevel sets the error-correction level.
func WithRecoveryLevel(level skipqrcode.RecoveryLevel) Option {
	return func(r *Renderer) {
		r.level = level
	}
}

// NewRenderer returns a renderer with a 256px image and medium error correction.
func NewRenderer(opts ...Option) *Renderer {
	r := &Renderer{size: DefaultSize, level: skipqrcode.Medium}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// PNG encodes content as a PNG image.
func (r *Renderer) PNG(content string) ([]byte, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	png, err := skipqrcode.Encode(content, r.level, r.size)
	if err != nil {
		return nil, errors.Join(ErrFailedToGenerateQRCode, err)
	}
	return png, nil
}

// DataURI encodes content as a base64 PNG data URI.
func (r *Renderer) DataURI(content string) (string, error) {
	png, err := r.PNG(content)
	if err != nil {
		return "", err
	}
	return dataURIPrefix + base64.StdEncoding.EncodeToString(png), nil
}
