package link

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	skipqrcode "github.com/skip2/go-qrcode"
)

var (
	ErrEmptyContent             = errors.New("link: content cannot be empty")
	ErrSizeOutOfRange           = errors.New("link: QR size out of range")
	ErrorFailedToGenerateQRCode = errors.New("link: failed to generate QR code")
)

// PNG edge lengths, in pixels.
const (
	MinPNGSize     = 64
	MaxPNGSize     = 1024
	DefaultPNGSize = 256
)

// PNG renders content as a QR code image of size pixels. Zero selects
// DefaultPNGSize; anything else must lie in [MinPNGSize, MaxPNGSize].
func PNG(content string, size int) ([]byte, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	if size == 0 {
		size = DefaultPNGSize
	}
	if size < MinPNGSize || size > MaxPNGSize {
		return nil, fmt.Errorf("%w: %d not in [%d, %d]", ErrSizeOutOfRange, size, MinPNGSize, MaxPNGSize)
	}
	png, err := skipqrcode.Encode(content, skipqrcode.Medium, size)
	if err != nil {
		return nil, errors.Join(ErrorFailedToGenerateQRCode, err)
	}
	return png, nil
}

// DataURL renders content as a base64 PNG data URL for embedding in HTML.
func DataURL(content string, size int) (string, error) {
	png, err := PNG(content, size)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("data:image/png;base64,%s", base64.StdEncoding.EncodeToString(png)), nil
}

// Terminal renders content as QR block art, two modules per character row.
func Terminal(content string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", ErrEmptyContent
	}
	q, err := skipqrcode.New(content, skipqrcode.Low)
	if err != nil {
		return "", errors.Join(ErrorFailedToGenerateQRCode, err)
	}
	bitmap := q.Bitmap()

	var b strings.Builder
	for y := 0; y < len(bitmap); y += 2 {
		for x := range bitmap[y] {
			top := bitmap[y][x]
			bottom := y+1 < len(bitmap) && bitmap[y+1][x]
			switch {
			case top && bottom:
				b.WriteRune('█')
			case top:
				b.WriteRune('▀')
			case bottom:
				b.WriteRune('▄')
			default:
				b.WriteRune(' ')
			}
		}
		b.WriteByte('\n')
	}
	return b.String(), nil
}
