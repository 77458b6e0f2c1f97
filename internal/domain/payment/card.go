package payment

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidCard = errors.New("payment: invalid card")

type Card struct {
	Number string
	Holder string
	// Expiry is MM/YY.
	Expiry string
	CVV    string
}

func (c Card) IsZero() bool {
	return c == Card{}
}

// Validate checks the card form the same way the shop's payment panel does. The
// returned error message is meant for display.
func (c Card) Validate(now time.Time) error {
	number := c.digitsOnly()
	if len(number) < 16 || len(number) > 19 || !digits(number) {
		return fmt.Errorf("%w: enter a valid card number (16 digits)", ErrInvalidCard)
	}
	if strings.TrimSpace(c.Holder) == "" {
		return fmt.Errorf("%w: enter the card holder name", ErrInvalidCard)
	}
	month, year, ok := parseExpiry(c.Expiry)
	if !ok {
		return fmt.Errorf("%w: enter the expiry date (MM/YY)", ErrInvalidCard)
	}
	// valid through the last day of the expiry month
	expires := time.Date(2000+year, time.Month(month)+1, 1, 0, 0, 0, 0, time.UTC)
	if !now.UTC().Before(expires) {
		return fmt.Errorf("%w: card has expired", ErrInvalidCard)
	}
	if l := len(c.CVV); l < 3 || l > 4 || !digits(c.CVV) {
		return fmt.Errorf("%w: enter the CVV (3 digits)", ErrInvalidCard)
	}
	return nil
}

// Last4 is used in logs instead of the full number.
func (c Card) Last4() string {
	n := c.digitsOnly()
	if len(n) < 4 {
		return ""
	}
	return n[len(n)-4:]
}

// digitsOnly drops the separators the card form accepts.
func (c Card) digitsOnly() string {
	return strings.ReplaceAll(strings.ReplaceAll(c.Number, " ", ""), "-", "")
}

// Feedback returns the display part of a Validate error, without the package prefix.
func Feedback(err error) string {
	if err == nil {
		return ""
	}
	return strings.TrimPrefix(err.Error(), ErrInvalidCard.Error()+": ")
}

func parseExpiry(s string) (month, year int, ok bool) {
	mm, yy, found := strings.Cut(strings.TrimSpace(s), "/")
	if !found || len(mm) != 2 || len(yy) != 2 || !digits(mm) || !digits(yy) {
		return 0, 0, false
	}
	month, _ = strconv.Atoi(mm)
	year, _ = strconv.Atoi(yy)
	if month < 1 || month > 12 {
		return 0, 0, false
	}
	return month, year, true
}

func digits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
