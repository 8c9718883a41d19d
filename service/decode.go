package service

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	_ "github.com/gen2brain/avif"
	_ "golang.org/x/image/webp"
)

const dataURLMarker = "base64,"

// MaxPixels caps the declared size of a drawing before any pixel buffer is allocated.
const MaxPixels = 89_478_485

// StripDataURL keeps the text between the first "base64," marker and the next one, if any.
func StripDataURL(s string) string {
	_, after, ok := strings.Cut(s, dataURLMarker)
	if !ok {
		return s
	}
	payload, _, _ := strings.Cut(after, dataURLMarker)
	return payload
}

// DecodeBase64 accepts padded and unpadded standard base64. Line breaks are ignored.
func DecodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	data, err := base64.StdEncoding.DecodeString(s)
	if err == nil {
		return data, nil
	}
	if raw, rawErr := base64.RawStdEncoding.DecodeString(s); rawErr == nil {
		return raw, nil
	}
	return nil, fmt.Errorf("%w: bad base64: %v", ErrInvalidImage, err)
}

// DecodeImage turns a (possibly data-URL prefixed) base64 payload into an image.
func DecodeImage(payload string) (image.Image, string, error) {
	data, err := DecodeBase64(StripDataURL(payload))
	if err != nil {
		return nil, "", err
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty payload", ErrInvalidImage)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > MaxPixels {
		return nil, "", fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrInvalidImage, cfg.Width, cfg.Height, MaxPixels)
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return img, format, nil
}
