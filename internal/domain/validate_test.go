package domain

import (
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestValidateReferenceAcceptsAllLengths(t *testing.T) {
	for n := 12; n <= 18; n++ {
		ref := strings.Repeat("7", n)
		got, err := ValidateReference("  " + ref + "\n")
		if err != nil {
			t.Fatalf("length %d rejected: %v", n, err)
		}
		if got != ref {
			t.Fatalf("got %q, want %q", got, ref)
		}
	}
}

func TestValidateReferenceRejects(t *testing.T) {
	cases := []string{
		"",
		"   ",
		"12345678901",         // 11 digits
		"1234567890123456789", // 19 digits
		"12345678901a",
		"1234 5678 9012",
		"+123456789012",
		"١٢٣٤٥٦٧٨٩٠١٢", // non-ASCII digits
		"123456789012.0",
	}
	for _, in := range cases {
		if _, err := ValidateReference(in); !errors.Is(err, ErrValidation) {
			t.Fatalf("ValidateReference(%q) err = %v, want ErrValidation", in, err)
		}
	}
}

func TestValidateHandle(t *testing.T) {
	ok := []string{"alice@okbank", " bob.k@upi ", "a1@ybl"}
	for _, in := range ok {
		if _, err := ValidateHandle(in); err != nil {
			t.Fatalf("ValidateHandle(%q): %v", in, err)
		}
	}
	bad := []string{"", "alice", "a@b", "@okbank", "alice@", "al ice@upi", "a@b@c.com"}
	for _, in := range bad {
		_, err := ValidateHandle(in)
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("ValidateHandle(%q) err = %v, want ErrValidation", in, err)
		}
		if reason, ok := Reason(err); !ok || reason == "" {
			t.Fatalf("missing reason for %q", in)
		}
	}
}

func TestParseAmount(t *testing.T) {
	got, err := ParseAmount(" 250.5 ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !got.Equal(decimal.RequireFromString("250.5")) {
		t.Fatalf("got %s", got)
	}
	for _, in := range []string{"", "abc", "-10", "0", "0.00", "1e3", "10.123", "1,000"} {
		if _, err := ParseAmount(in); !errors.Is(err, ErrValidation) {
			t.Fatalf("ParseAmount(%q) err = %v", in, err)
		}
	}
}

func TestCheckWithdrawalBounds(t *testing.T) {
	minimum := decimal.NewFromInt(100)
	balance := decimal.NewFromInt(500)

	if err := CheckWithdrawal(decimal.NewFromInt(300), minimum, balance); err != nil {
		t.Fatalf("valid withdrawal rejected: %v", err)
	}
	if err := CheckWithdrawal(decimal.NewFromInt(500), minimum, balance); err != nil {
		t.Fatalf("withdrawal equal to balance rejected: %v", err)
	}
	err := CheckWithdrawal(decimal.NewFromInt(50), minimum, balance)
	if reason, ok := Reason(err); !ok || !strings.Contains(reason, "100.00") {
		t.Fatalf("below minimum: err = %v", err)
	}
	err = CheckWithdrawal(decimal.NewFromInt(501), minimum, balance)
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("above balance: err = %v", err)
	}
}

func TestStatusTerminal(t *testing.T) {
	if DepositPending.Terminal() || !DepositAutoCancelled.Terminal() {
		t.Fatal("deposit terminal classification wrong")
	}
	if WithdrawalProcessing.Terminal() || !WithdrawalRejected.Terminal() {
		t.Fatal("withdrawal terminal classification wrong")
	}
	if DepositStatus("LOST").Valid() {
		t.Fatal("unknown status reported valid")
	}
}

func TestNewIDs(t *testing.T) {
	if a, b := NewRequestID(), NewRequestID(); a == b || len(a) != 26 {
		t.Fatalf("unexpected request ids %q %q", a, b)
	}
	if id := NewPublicID(); len(id) != 8 {
		t.Fatalf("public id %q", id)
	}
}
