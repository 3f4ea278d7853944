package xumm

import (
	"encoding/base64"
	"fmt"

	"github.com/skip2/go-qrcode"
)

// qrDataURI renders link as an inline PNG for payloads created without a
// hosted QR image
func qrDataURI(link string) (string, error) {
	qr, err := qrcode.New(link, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("failed to create QR code: %w", err)
	}

	png, err := qr.PNG(256)
	if err != nil {
		return "", fmt.Errorf("failed to generate PNG: %w", err)
	}

	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
