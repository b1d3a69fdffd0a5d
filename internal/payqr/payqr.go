// Package payqr renders UPI payment QR codes for deposit requests.
package payqr

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"

	"github.com/shopspring/decimal"
	"github.com/skip2/go-qrcode"
)

// ErrNoPayee is returned when no receiving handle is configured.
var ErrNoPayee = errors.New("payqr: payee not configured")

const defaultSize = 256

// Generator renders payment QR codes for a fixed payee.
type Generator struct {
	Payee string
	Name  string
	Size  int
}

// URI builds the upi://pay link for amount.
func (g Generator) URI(amount decimal.Decimal) (string, error) {
	if g.Payee == "" {
		return "", ErrNoPayee
	}
	q := url.Values{}
	q.Set("pa", g.Payee)
	if g.Name != "" {
		q.Set("pn", g.Name)
	}
	q.Set("am", amount.StringFixed(2))
	q.Set("cu", "INR")
	return "upi://pay?" + q.Encode(), nil
}

// PNG encodes the payment link for amount as a PNG image.
func (g Generator) PNG(amount decimal.Decimal) ([]byte, error) {
	uri, err := g.URI(amount)
	if err != nil {
		return nil, err
	}
	qr, err := qrcode.New(uri, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("qr encode: %w", err)
	}
	size := g.Size
	if size <= 0 {
		size = defaultSize
	}
	var buf bytes.Buffer
	if err := qr.Write(size, &buf); err != nil {
		return nil, fmt.Errorf("qr write: %w", err)
	}
	return buf.Bytes(), nil
}
