package domain

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// MinHandleLength is the shortest destination handle accepted, e.g. "a@upi".
const MinHandleLength = 5

var (
	referenceRe = regexp.MustCompile(`^[0-9]{12,18}$`)
	amountRe    = regexp.MustCompile(`^[0-9]+(\.[0-9]{1,2})?$`)
)

// ValidateReference checks a payment reference (UTR): 12 to 18 ASCII digits
// and nothing else. Surrounding whitespace is ignored.
func ValidateReference(raw string) (string, error) {
	ref := strings.TrimSpace(raw)
	if ref == "" {
		return "", NewValidationError("reference", "send the 12-18 digit transaction reference (UTR)")
	}
	if !referenceRe.MatchString(ref) {
		return "", NewValidationError("reference", "the reference must be 12 to 18 digits with no other characters")
	}
	return ref, nil
}

// ValidateHandle checks a withdrawal destination such as "name@bank".
func ValidateHandle(raw string) (string, error) {
	h := strings.TrimSpace(raw)
	if h == "" {
		return "", NewValidationError("destination", "send the payment handle to withdraw to, e.g. name@bank")
	}
	if strings.IndexFunc(h, unicode.IsSpace) >= 0 {
		return "", NewValidationError("destination", "the handle must not contain spaces")
	}
	if len(h) < MinHandleLength {
		return "", NewValidationError("destination", fmt.Sprintf("the handle must be at least %d characters", MinHandleLength))
	}
	local, provider, ok := strings.Cut(h, "@")
	if !ok || local == "" || provider == "" || strings.Contains(provider, "@") {
		return "", NewValidationError("destination", "the handle must look like name@bank")
	}
	return h, nil
}

// ParseAmount parses a positive amount with at most two fractional digits.
func ParseAmount(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if !amountRe.MatchString(s) {
		return decimal.Zero, NewValidationError("amount", "send a number, e.g. 250 or 250.50")
	}
	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, NewValidationError("amount", "send a number, e.g. 250 or 250.50")
	}
	if !amount.IsPositive() {
		return decimal.Zero, NewValidationError("amount", "the amount must be greater than 0")
	}
	return amount, nil
}

// CheckWithdrawal enforces the withdrawal bounds against the balance read
// at call time.
func CheckWithdrawal(amount, minimum, balance decimal.Decimal) error {
	if !amount.IsPositive() {
		return NewValidationError("amount", "the amount must be greater than 0")
	}
	if amount.LessThan(minimum) {
		return NewValidationError("amount", "the minimum withdrawal is ₹"+minimum.StringFixed(2))
	}
	if amount.GreaterThan(balance) {
		return fmt.Errorf("%w: requested %s, available %s", ErrInsufficientBalance, amount.StringFixed(2), balance.StringFixed(2))
	}
	return nil
}
