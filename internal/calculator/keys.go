package calculator

import (
	"errors"
	"fmt"
	"unicode"
)

// ErrInvalidKey is returned by ParseKeys for characters that are not keypad keys.
var ErrInvalidKey = errors.New("invalid key")

// ParseKeys turns keypad text such as "12 + 3 =" into events. Every digit is
// its own key press, whitespace is ignored, "=" evaluates and "C" clears.
func ParseKeys(keys string) ([]Event, error) {
	events := make([]Event, 0, len(keys))
	for i, r := range keys {
		switch {
		case unicode.IsSpace(r):
			continue
		case r >= '0' && r <= '9':
			events = append(events, DigitEvent(int(r-'0')))
		case r == '=':
			events = append(events, EvaluateEvent())
		case r == 'C' || r == 'c':
			events = append(events, ClearEvent())
		default:
			op, err := ParseOperator(string(r))
			if err != nil {
				return nil, fmt.Errorf("%w %q at offset %d", ErrInvalidKey, r, i)
			}
			events = append(events, OperatorEvent(op))
		}
	}
	return events, nil
}
