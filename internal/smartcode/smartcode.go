// Package smartcode parses and validates the structured semantic codes
// attached to every row in the engine. A smart code classifies a row and
// carries a version, so downstream logic can branch on it without extra
// schema.
package smartcode

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalid is returned for any code that does not match the grammar.
var ErrInvalid = errors.New("invalid smart code")

// Grammar: HERA.<DOMAIN>.<3..8 more uppercase segments>.v<N>
// A valid code therefore has at least 6 dotted segments counting the
// leading HERA and the trailing version.
var codePattern = regexp.MustCompile(`^HERA(\.[A-Z0-9_]+){4,9}\.v([0-9]+)$`)

// ledgerSegment is the reserved classification segment that marks a code
// as a general-ledger posting.
const ledgerSegment = "GL"

// Code is a parsed smart code.
type Code struct {
	Raw      string
	Segments []string
	Version  int
}

// Domain returns the domain segment (the segment after HERA).
func (c *Code) Domain() string {
	return c.Segments[1]
}

// Validate parses a smart code, returning the parsed form or ErrInvalid.
func Validate(code string) (*Code, error) {
	m := codePattern.FindStringSubmatch(code)
	if m == nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalid, code)
	}

	segments := strings.Split(code, ".")
	version, err := strconv.Atoi(m[2])
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalid, code)
	}

	return &Code{
		Raw:      code,
		Segments: segments[:len(segments)-1],
		Version:  version,
	}, nil
}

// IsLedgerLine reports whether a code classifies a transaction line as a
// general-ledger posting subject to the debit/credit balance check.
// Invalid codes are never ledger lines.
func IsLedgerLine(code string) bool {
	parsed, err := Validate(code)
	if err != nil {
		return false
	}
	for _, seg := range parsed.Segments[1:] {
		if seg == ledgerSegment {
			return true
		}
	}
	return false
}
