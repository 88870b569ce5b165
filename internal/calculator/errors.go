package calculator

import "errors"

var (
	// ErrInvalidDigit is returned when a digit outside 0-9 is entered.
	ErrInvalidDigit = errors.New("digit must be between 0 and 9")
	// ErrInvalidOperator is returned when an operator tag has no registered operation.
	ErrInvalidOperator = errors.New("unsupported operator")
	// ErrDigitLimit is returned when an operand already holds the maximum number of digits.
	ErrDigitLimit = errors.New("operand digit limit reached")
	// ErrDivisionByZero is returned when the pending division has a zero divisor.
	ErrDivisionByZero = errors.New("division by zero")
	// ErrNeedsClear is returned for any input other than clear while the engine shows an error.
	ErrNeedsClear = errors.New("calculator is in an error state, clear it first")
	// ErrUnknownEvent is returned by Dispatch for events with an unknown kind.
	ErrUnknownEvent = errors.New("unknown event kind")
)
