package payqr

import (
	"bytes"
	"errors"
	"net/url"
	"testing"

	"github.com/shopspring/decimal"
)

func TestURI(t *testing.T) {
	g := Generator{Payee: "desk@bank", Name: "Pay Desk"}
	uri, err := g.URI(decimal.NewFromInt(150))
	if err != nil {
		t.Fatalf("uri: %v", err)
	}
	u, err := url.Parse(uri)
	if err != nil {
		t.Fatalf("parse %q: %v", uri, err)
	}
	if u.Scheme != "upi" || u.Host != "pay" {
		t.Fatalf("unexpected link %q", uri)
	}
	q := u.Query()
	if q.Get("pa") != "desk@bank" || q.Get("pn") != "Pay Desk" || q.Get("am") != "150.00" || q.Get("cu") != "INR" {
		t.Fatalf("query = %v", q)
	}
}

func TestPNG(t *testing.T) {
	png, err := Generator{Payee: "desk@bank"}.PNG(decimal.NewFromInt(10))
	if err != nil {
		t.Fatalf("png: %v", err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Fatal("output is not a PNG")
	}
}

func TestNoPayee(t *testing.T) {
	if _, err := (Generator{}).PNG(decimal.NewFromInt(10)); !errors.Is(err, ErrNoPayee) {
		t.Fatalf("err = %v", err)
	}
}
