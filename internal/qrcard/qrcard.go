// Package qrcard renders the QR codes students carry. The encoded text
// is the JSON scan payload the scanner decodes back.
package qrcard

import (
	"encoding/json"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"

	"catholink/internal/attendance"
)

// DefaultSize is the rendered PNG edge in pixels.
const DefaultSize = 512

// Encode returns the QR text for a student: the JSON scan payload.
func Encode(s attendance.Student) (string, error) {
	payload := attendance.ScanPayload{
		UserID:  s.UserID,
		Name:    s.Name,
		Section: s.Section,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// PNG renders the student's QR code as a PNG image. size <= 0 uses
// DefaultSize.
func PNG(s attendance.Student, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultSize
	}
	text, err := Encode(s)
	if err != nil {
		return nil, err
	}
	png, err := qrcode.Encode(text, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("qr encode failed: %w", err)
	}
	return png, nil
}
