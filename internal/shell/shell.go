// Package shell drives a calculator engine from keypad text, printing the
// display after every key press. It is the terminal counterpart of the HTTP
// shell and is used by the run command.
package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/eugenenazirov/keypad-calculator/internal/calculator"
)

// Shell feeds key presses to a single engine. A Shell is not safe for
// concurrent use.
type Shell struct {
	engine *calculator.Engine
	out    io.Writer
	logger *zap.Logger
	strict bool
	trace  bool
}

// Option configures a Shell.
type Option func(*Shell)

// WithLogger sets the logger used for per-key debug output.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Shell) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithStrict makes Run and Exec stop at the first rejected key instead of
// reporting it and carrying on.
func WithStrict(strict bool) Option {
	return func(s *Shell) {
		s.strict = strict
	}
}

// WithTrace prefixes every display line with the key that produced it.
func WithTrace(trace bool) Option {
	return func(s *Shell) {
		s.trace = trace
	}
}

// New creates a Shell writing displays to out.
func New(engine *calculator.Engine, out io.Writer, opts ...Option) *Shell {
	s := &Shell{
		engine: engine,
		out:    out,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run reads keypad text line by line until in is exhausted or ctx is done.
func (s *Shell) Run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	line := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line++
		if err := s.Exec(scanner.Text()); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	return nil
}

// Exec presses every key in keys. Malformed text is reported and skipped in
// lenient mode; engine errors are reported next to the display, which shows
// how the engine reacted.
func (s *Shell) Exec(keys string) error {
	events, err := calculator.ParseKeys(keys)
	if err != nil {
		if s.strict {
			return err
		}
		return s.report(err)
	}

	for _, ev := range events {
		dispatchErr := s.engine.Dispatch(ev)
		s.logger.Debug("key pressed",
			zap.Stringer("key", ev),
			zap.String("display", s.engine.Display()),
			zap.Error(dispatchErr),
		)

		if err := s.print(ev, dispatchErr); err != nil {
			return err
		}
		if dispatchErr != nil && s.strict {
			return dispatchErr
		}
	}
	return nil
}

func (s *Shell) print(ev calculator.Event, dispatchErr error) error {
	var err error
	switch {
	case s.trace && dispatchErr != nil:
		_, err = fmt.Fprintf(s.out, "%s\t%s\t(%v)\n", ev, s.engine.Display(), dispatchErr)
	case s.trace:
		_, err = fmt.Fprintf(s.out, "%s\t%s\n", ev, s.engine.Display())
	case dispatchErr != nil:
		_, err = fmt.Fprintf(s.out, "%s\t(%v)\n", s.engine.Display(), dispatchErr)
	default:
		_, err = fmt.Fprintln(s.out, s.engine.Display())
	}
	if err != nil {
		return fmt.Errorf("write display: %w", err)
	}
	return nil
}

func (s *Shell) report(parseErr error) error {
	if _, err := fmt.Fprintf(s.out, "(%v)\n", parseErr); err != nil {
		return fmt.Errorf("write display: %w", err)
	}
	return nil
}

// IsInputError reports whether err came from rejected input rather than I/O.
func IsInputError(err error) bool {
	for _, target := range []error{
		calculator.ErrInvalidKey,
		calculator.ErrInvalidDigit,
		calculator.ErrInvalidOperator,
		calculator.ErrDigitLimit,
		calculator.ErrDivisionByZero,
		calculator.ErrNeedsClear,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
