// Package printer renders user facing CLI output: status lines, check lists and
// error boxes. Colors are only emitted when writing to a terminal.
package printer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hay-kot/criterio"
	"golang.org/x/term"
)

// ANSI color codes (Tokyo Night palette)
const (
	ColorReset     = "\033[0m"
	ColorRed       = "\033[38;2;215;95;107m"  // #d75f6b
	ColorGreen     = "\033[38;2;158;206;106m" // #9ece6a
	ColorYellow    = "\033[38;2;224;175;104m" // #e0af68
	ColorGray      = "\033[38;2;86;95;137m"   // #565f89
	ColorBold      = "\033[1m"
	ColorUnderline = "\033[4m"
)

// Symbols
const (
	Check = "✔"
	Cross = "✘"
	Dot   = "•"
)

// Level selects the symbol and color of a status line.
type Level int

const (
	LevelInfo Level = iota
	LevelOK
	LevelWarn
	LevelFail
)

func (l Level) style() (color, symbol string) {
	switch l {
	case LevelOK:
		return ColorGreen, Check
	case LevelWarn:
		return ColorYellow, Dot
	case LevelFail:
		return ColorRed, Cross
	default:
		return ColorGray, Dot
	}
}

type ctxKey struct{}

// Printer writes formatted output to a single writer.
type Printer struct {
	writer io.Writer
	color  bool
}

// New creates a Printer for w, enabling colors when w is a terminal.
func New(w io.Writer) *Printer {
	color := false
	if f, ok := w.(*os.File); ok {
		color = term.IsTerminal(int(f.Fd()))
	}
	return &Printer{writer: w, color: color}
}

// NewContext returns a context with the printer attached.
func NewContext(ctx context.Context, p *Printer) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// Ctx retrieves the printer from context, falling back to stderr.
func Ctx(ctx context.Context) *Printer {
	if p, ok := ctx.Value(ctxKey{}).(*Printer); ok {
		return p
	}
	return New(os.Stderr)
}

// FatalError prints err in a box. It does not exit.
func (p *Printer) FatalError(err error) {
	if err == nil {
		return
	}

	var fieldErrs criterio.FieldErrors
	if !errors.As(err, &fieldErrs) {
		p.box("Error", []string{p.colorize(ColorGray, err.Error())})
		return
	}

	var lines []string
	if prefix := errorPrefix(err, fieldErrs); prefix != "" {
		lines = append(lines, p.colorize(ColorGray, prefix), "")
	}
	for _, fe := range fieldErrs {
		line := p.colorize(ColorRed, Cross) + " "
		if fe.Field != "" {
			line += p.colorize(ColorGray, fe.Field+": ")
		}
		lines = append(lines, line+fe.Err.Error())
	}
	p.box("Validation Error", lines)
}

// errorPrefix returns the wrapping context in front of the field errors, for
// example "load config".
func errorPrefix(err error, fieldErrs criterio.FieldErrors) string {
	full, inner := err.Error(), fieldErrs.Error()
	if idx := strings.Index(full, inner); idx > 0 {
		return strings.TrimSuffix(full[:idx], ": ")
	}
	return ""
}

func (p *Printer) box(title string, lines []string) {
	edge := p.colorize(ColorRed, "│")

	var b strings.Builder
	b.WriteString(p.colorize(ColorRed, "╭ "+title) + "\n")
	for _, line := range lines {
		if line == "" {
			b.WriteString(edge + "\n")
			continue
		}
		b.WriteString(edge + " " + line + "\n")
	}
	b.WriteString(p.colorize(ColorRed, "╵") + "\n")

	p.write(b.String())
}

// Errorf prints a failure line.
func (p *Printer) Errorf(format string, args ...any) {
	p.status(LevelFail, fmt.Sprintf(format, args...))
}

// Successf prints a success line.
func (p *Printer) Successf(format string, args ...any) {
	p.status(LevelOK, fmt.Sprintf(format, args...))
}

// Success prints a success line with details indented below it.
func (p *Printer) Success(message, details string) {
	p.status(LevelOK, message)
	if details != "" {
		p.write("  " + p.colorize(ColorGray, details) + "\n")
	}
}

// Infof prints an informational line.
func (p *Printer) Infof(format string, args ...any) {
	p.status(LevelInfo, fmt.Sprintf(format, args...))
}

// Warnf prints a warning line.
func (p *Printer) Warnf(format string, args ...any) {
	p.status(LevelWarn, fmt.Sprintf(format, args...))
}

// Printf prints a plain line.
func (p *Printer) Printf(format string, args ...any) {
	p.write(fmt.Sprintf(format, args...) + "\n")
}

// Heading prints a bold underlined title.
func (p *Printer) Heading(title string) {
	p.write(p.colorize(ColorBold+ColorUnderline, title) + "\n")
}

// Item prints an indented check list entry.
func (p *Printer) Item(level Level, label, detail string) {
	color, symbol := level.style()
	line := "  " + p.colorize(color, symbol) + " " + label
	if detail != "" {
		line += ": " + detail
	}
	p.write(line + "\n")
}

func (p *Printer) status(level Level, msg string) {
	color, symbol := level.style()
	p.write(p.colorize(color, symbol+" "+msg) + "\n")
}

func (p *Printer) colorize(color, text string) string {
	if !p.color {
		return text
	}
	return color + text + ColorReset
}

func (p *Printer) write(s string) {
	_, _ = io.WriteString(p.writer, s)
}
