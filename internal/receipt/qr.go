package receipt

import (
	qrcode "github.com/skip2/go-qrcode"
)

// QRGenerator produces QR codes with go-qrcode.
type QRGenerator struct {
	Size int
}

func (g QRGenerator) PNG(content string) ([]byte, error) {
	size := g.Size
	if size <= 0 {
		size = 256
	}
	return qrcode.Encode(content, qrcode.Medium, size)
}
