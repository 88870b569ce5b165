package calculator

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Operator tags a binary arithmetic operation. The zero value means no
// operator is pending.
type Operator int

const (
	None Operator = iota
	Add
	Subtract
	Multiply
	Divide
)

// divisionPlaces is the number of decimal places a quotient is rounded to.
const divisionPlaces = 3

type binaryFunc func(a, b decimal.Decimal) (decimal.Decimal, error)

// operations maps every supported operator to its implementation. Adding an
// operator means adding a tag, a symbol and an entry here.
var operations = map[Operator]binaryFunc{
	Add: func(a, b decimal.Decimal) (decimal.Decimal, error) {
		return a.Add(b), nil
	},
	Subtract: func(a, b decimal.Decimal) (decimal.Decimal, error) {
		return a.Sub(b), nil
	},
	Multiply: func(a, b decimal.Decimal) (decimal.Decimal, error) {
		return a.Mul(b), nil
	},
	Divide: func(a, b decimal.Decimal) (decimal.Decimal, error) {
		if b.IsZero() {
			return decimal.Zero, ErrDivisionByZero
		}
		return a.DivRound(b, divisionPlaces), nil
	},
}

var symbols = map[Operator]string{
	Add:      "+",
	Subtract: "-",
	Multiply: "*",
	Divide:   "/",
}

// String returns the keypad symbol of the operator, or an empty string for None.
func (o Operator) String() string {
	return symbols[o]
}

// Valid reports whether the operator has a registered operation.
func (o Operator) Valid() bool {
	_, ok := operations[o]
	return ok
}

// ParseOperator maps a keypad symbol to its Operator. The letters x and ÷ are
// accepted as aliases for multiply and divide.
func ParseOperator(symbol string) (Operator, error) {
	switch symbol {
	case "x", "X", "×":
		return Multiply, nil
	case "÷":
		return Divide, nil
	}
	for op, s := range symbols {
		if s == symbol {
			return op, nil
		}
	}
	return None, fmt.Errorf("%w: %q", ErrInvalidOperator, symbol)
}

// EventKind identifies one of the four inbound events.
type EventKind int

const (
	EventDigit EventKind = iota + 1
	EventOperator
	EventEvaluate
	EventClear
)

func (k EventKind) String() string {
	switch k {
	case EventDigit:
		return "digit"
	case EventOperator:
		return "operator"
	case EventEvaluate:
		return "evaluate"
	case EventClear:
		return "clear"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is a single input delivered by a UI shell. Digit is only meaningful
// for EventDigit and Operator only for EventOperator.
type Event struct {
	Kind     EventKind
	Digit    int
	Operator Operator
}

// DigitEvent builds a digit key press.
func DigitEvent(d int) Event {
	return Event{Kind: EventDigit, Digit: d}
}

// OperatorEvent builds an operator key press.
func OperatorEvent(op Operator) Event {
	return Event{Kind: EventOperator, Operator: op}
}

// EvaluateEvent builds an equals key press.
func EvaluateEvent() Event {
	return Event{Kind: EventEvaluate}
}

// ClearEvent builds a clear key press.
func ClearEvent() Event {
	return Event{Kind: EventClear}
}

func (e Event) String() string {
	switch e.Kind {
	case EventDigit:
		return fmt.Sprintf("%d", e.Digit)
	case EventOperator:
		return e.Operator.String()
	case EventEvaluate:
		return "="
	case EventClear:
		return "C"
	default:
		return e.Kind.String()
	}
}
