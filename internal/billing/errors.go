package billing

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvoiceNotFound = errors.New("invoice not found")
	ErrInvoicePaid     = errors.New("invoice is already paid in full")
	ErrInvoiceBusy     = errors.New("invoice is being modified, please retry")
	ErrBalanceChanged  = errors.New("invoice balance changed while recording payment")
)

// Issue is one inline validation problem. Line is -1 for form-level issues.
type Issue struct {
	Line    int    `json:"line"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError blocks submission. It is never caused by a backend failure.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		if is.Line >= 0 {
			msgs = append(msgs, fmt.Sprintf("line %d %s: %s", is.Line+1, is.Field, is.Message))
			continue
		}
		msgs = append(msgs, is.Message)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// IsValidation reports whether err carries a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
