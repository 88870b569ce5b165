package shell

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	. "github.com/onsi/gomega" //nolint:revive
	"go.uber.org/zap/zaptest"

	"github.com/eugenenazirov/keypad-calculator/internal/calculator"
)

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("disk full")
}

func lines(out *bytes.Buffer) []string {
	return strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
}

func TestExecPrintsDisplayAfterEveryKey(t *testing.T) {
	g := NewWithT(t)

	var out bytes.Buffer
	sh := New(calculator.New(), &out, WithLogger(zaptest.NewLogger(t)))

	g.Expect(sh.Exec("3 + 4 + 5 =")).To(Succeed())
	g.Expect(lines(&out)).To(Equal([]string{"3", "3", "4", "7", "5", "12"}))
}

func TestExecTrace(t *testing.T) {
	g := NewWithT(t)

	var out bytes.Buffer
	sh := New(calculator.New(), &out, WithTrace(true))

	g.Expect(sh.Exec("10/4=")).To(Succeed())
	g.Expect(lines(&out)).To(Equal([]string{"1\t1", "0\t10", "/\t10", "4\t4", "=\t2.5"}))
}

func TestExecReportsEngineErrorsLeniently(t *testing.T) {
	g := NewWithT(t)

	var out bytes.Buffer
	sh := New(calculator.New(), &out)

	g.Expect(sh.Exec("5/0=1C9")).To(Succeed())

	got := lines(&out)
	g.Expect(got).To(HaveLen(7))
	g.Expect(got[3]).To(HavePrefix(calculator.ErrorDisplay + "\t("))
	g.Expect(got[3]).To(ContainSubstring("division by zero"))
	g.Expect(got[4]).To(ContainSubstring("clear it first"))
	g.Expect(got[5]).To(Equal("0"))
	g.Expect(got[6]).To(Equal("9"))
}

func TestExecStrictStopsAtFirstError(t *testing.T) {
	g := NewWithT(t)

	var out bytes.Buffer
	sh := New(calculator.New(), &out, WithStrict(true))

	err := sh.Exec("8/0=7")
	g.Expect(err).To(MatchError(calculator.ErrDivisionByZero))
	g.Expect(IsInputError(err)).To(BeTrue())
	g.Expect(lines(&out)).To(HaveLen(4))
}

func TestExecInvalidKeys(t *testing.T) {
	g := NewWithT(t)

	var out bytes.Buffer
	lenient := New(calculator.New(), &out)
	g.Expect(lenient.Exec("1.5")).To(Succeed())
	g.Expect(out.String()).To(ContainSubstring("invalid key"))

	strict := New(calculator.New(), &out, WithStrict(true))
	err := strict.Exec("1.5")
	g.Expect(err).To(MatchError(calculator.ErrInvalidKey))
	g.Expect(IsInputError(err)).To(BeTrue())
}

func TestRunReadsLines(t *testing.T) {
	g := NewWithT(t)

	var out bytes.Buffer
	engine := calculator.New()
	sh := New(engine, &out)

	in := strings.NewReader("7 *\n6 =\n")
	g.Expect(sh.Run(context.Background(), in)).To(Succeed())
	g.Expect(engine.Display()).To(Equal("42"))
	g.Expect(lines(&out)).To(Equal([]string{"7", "7", "6", "42"}))
}

func TestRunStrictReportsLine(t *testing.T) {
	g := NewWithT(t)

	var out bytes.Buffer
	sh := New(calculator.New(), &out, WithStrict(true))

	err := sh.Run(context.Background(), strings.NewReader("1+1=\n2?\n"))
	g.Expect(err).To(MatchError(ContainSubstring("line 2")))
	g.Expect(err).To(MatchError(calculator.ErrInvalidKey))
}

func TestRunStopsWhenContextDone(t *testing.T) {
	g := NewWithT(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	err := New(calculator.New(), &out).Run(ctx, strings.NewReader("1\n"))
	g.Expect(err).To(MatchError(context.Canceled))
	g.Expect(out.Len()).To(BeZero())
}

func TestWriteFailure(t *testing.T) {
	g := NewWithT(t)

	err := New(calculator.New(), failingWriter{}).Exec("1")
	g.Expect(err).To(MatchError(ContainSubstring("disk full")))
	g.Expect(IsInputError(err)).To(BeFalse())
}
