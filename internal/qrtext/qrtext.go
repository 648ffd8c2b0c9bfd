// Package qrtext draws QR codes with Unicode half blocks for terminals.
package qrtext

import (
	"fmt"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// Render draws content as a QR code, two modules per text row, with each
// row indented by indent.
func Render(content, indent string) (string, error) {
	qr, err := qrcode.New(content, qrcode.Low)
	if err != nil {
		return "", fmt.Errorf("qr code: %w", err)
	}

	bitmap := qr.Bitmap()
	var sb strings.Builder
	for y := 0; y < len(bitmap); y += 2 {
		sb.WriteString(indent)
		for x := range bitmap[y] {
			top := bitmap[y][x]
			bot := y+1 < len(bitmap) && bitmap[y+1][x]
			switch {
			case top && bot:
				sb.WriteRune('█')
			case top:
				sb.WriteRune('▀')
			case bot:
				sb.WriteRune('▄')
			default:
				sb.WriteRune(' ')
			}
		}
		sb.WriteRune('\n')
	}
	return sb.String(), nil
}
