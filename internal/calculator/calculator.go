package calculator

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	// DefaultMaxDigits bounds how many digits a single operand accepts.
	DefaultMaxDigits = 12
	// ErrorDisplay is shown while the engine is latched in an error state.
	ErrorDisplay = "Error"

	initialDisplay = "0"
)

var ten = decimal.NewFromInt(10)

// operand is one of the two accumulator slots.
type operand struct {
	value decimal.Decimal
	// digits counts significant digits entered; leading zeros are not counted.
	digits  int
	touched bool
	// result marks an evaluation result that cannot be extended digit by
	// digit; the next digit replaces it.
	result bool
}

// Engine is the keypad state machine. It is not safe for concurrent use;
// callers that share an Engine must serialize access to it.
type Engine struct {
	maxDigits int

	pending Operator
	first   operand
	second  operand
	display string
	err     error
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxDigits limits how many digits an operand accepts. Values below one
// are ignored.
func WithMaxDigits(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxDigits = n
		}
	}
}

// New creates an Engine in its initial state.
func New(opts ...Option) *Engine {
	e := &Engine{maxDigits: DefaultMaxDigits}
	for _, opt := range opts {
		opt(e)
	}
	e.Clear()
	return e
}

// Display returns the text a UI shell should render.
func (e *Engine) Display() string {
	return e.display
}

// Pending returns the operator waiting to be applied, or None.
func (e *Engine) Pending() Operator {
	return e.pending
}

// Err returns the latched error, if any.
func (e *Engine) Err() error {
	return e.err
}

// EnterDigit appends d to the operand currently being entered: the first
// operand when no operator is pending, the second one otherwise.
func (e *Engine) EnterDigit(d int) error {
	if e.err != nil {
		return ErrNeedsClear
	}
	if d < 0 || d > 9 {
		return fmt.Errorf("%w: %d", ErrInvalidDigit, d)
	}

	slot := &e.first
	if e.pending != None {
		slot = &e.second
	}
	if slot.result {
		*slot = operand{}
	}
	if slot.digits >= e.maxDigits {
		return fmt.Errorf("%w: %d", ErrDigitLimit, e.maxDigits)
	}

	digit := decimal.NewFromInt(int64(d))
	if slot.digits == 0 {
		slot.value = digit
	} else {
		slot.value = slot.value.Mul(ten).Add(digit)
	}
	if slot.digits > 0 || d != 0 {
		slot.digits++
	}
	slot.touched = true
	e.display = slot.value.String()
	return nil
}

// SelectOperator makes op the pending operator. When an operator is already
// pending and both operands hold values, the pending operation is evaluated
// first so that calculations can be chained.
func (e *Engine) SelectOperator(op Operator) error {
	if e.err != nil {
		return ErrNeedsClear
	}
	if !op.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidOperator, int(op))
	}

	if e.pending != None && e.first.touched && e.second.touched {
		if _, err := e.Evaluate(); err != nil {
			return err
		}
	}

	e.pending = op
	return nil
}

// Evaluate applies the pending operator to both operands. The result becomes
// the first operand, the second operand is reset and no operator remains
// pending. With no operator pending the first operand is returned unchanged.
func (e *Engine) Evaluate() (decimal.Decimal, error) {
	if e.err != nil {
		return decimal.Zero, ErrNeedsClear
	}

	result := e.first.value
	if e.pending != None {
		apply, ok := operations[e.pending]
		if !ok {
			return decimal.Zero, fmt.Errorf("%w: %d", ErrInvalidOperator, int(e.pending))
		}

		var err error
		result, err = apply(e.first.value, e.second.value)
		if err != nil {
			e.err = err
			e.display = ErrorDisplay
			return decimal.Zero, err
		}
	}

	e.first = resultOperand(result)
	e.second = operand{}
	e.pending = None
	e.display = result.String()
	return result, nil
}

// resultOperand turns an evaluation result into the first operand. Whole
// non-negative results keep accepting digits as if they had been typed.
// Fractional and negative results are replaced by the next digit.
func resultOperand(v decimal.Decimal) operand {
	if !v.IsInteger() || v.IsNegative() {
		return operand{value: v, touched: true, result: true}
	}
	digits := 0
	if !v.IsZero() {
		digits = len(v.BigInt().String())
	}
	return operand{value: v.Truncate(0), digits: digits, touched: true}
}

// Clear resets the engine to its initial state, including any latched error.
func (e *Engine) Clear() {
	e.pending = None
	e.first = operand{value: decimal.Zero}
	e.second = operand{value: decimal.Zero}
	e.display = initialDisplay
	e.err = nil
}

// Dispatch routes an inbound event to the matching operation.
func (e *Engine) Dispatch(ev Event) error {
	switch ev.Kind {
	case EventDigit:
		return e.EnterDigit(ev.Digit)
	case EventOperator:
		return e.SelectOperator(ev.Operator)
	case EventEvaluate:
		_, err := e.Evaluate()
		return err
	case EventClear:
		e.Clear()
		return nil
	default:
		return fmt.Errorf("%w: %d", ErrUnknownEvent, int(ev.Kind))
	}
}
