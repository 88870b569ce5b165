// Package calculator implements the keypad calculator state machine. An
// Engine consumes digit, operator, evaluate and clear events and exposes the
// text to display after each one. Operators are applied left to right with no
// precedence; selecting an operator while both operands hold values folds the
// pending operation into the first operand so calculations can be chained.
package calculator
