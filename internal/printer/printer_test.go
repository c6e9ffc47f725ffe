package printer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/hay-kot/criterio"
	"github.com/stretchr/testify/assert"
)

func TestPrinter_NoColorForBuffers(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf)

	p.Successf("created %s", "news")
	p.Warnf("careful")

	assert.Equal(t, Check+" created news\n"+Dot+" careful\n", buf.String())
	assert.NotContains(t, buf.String(), "\033[")
}

func TestPrinter_FatalErrorFieldErrors(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf)

	var errs criterio.FieldErrorsBuilder
	fe := errs.Append("http.addr", errors.New("is required")).ToError()
	p.FatalError(fmt.Errorf("load config: %w", fe))

	out := buf.String()
	assert.Contains(t, out, "Validation Error")
	assert.Contains(t, out, "load config")
	assert.Contains(t, out, "http.addr: is required")
}

func TestPrinter_FatalErrorPlain(t *testing.T) {
	var buf bytes.Buffer
	New(&buf).FatalError(errors.New("boom"))
	assert.Contains(t, buf.String(), "│ boom")
}

func TestCtx_Default(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf)
	assert.Same(t, p, Ctx(NewContext(context.Background(), p)))
	assert.NotNil(t, Ctx(context.Background()))
}

func TestPrinter_Items(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf)

	p.Heading("Store")
	p.Item(LevelOK, "topics", "3 record(s)")
	p.Item(LevelWarn, "users", "")
	p.Item(LevelFail, "messages", "store unavailable")

	want := "Store\n" +
		"  " + Check + " topics: 3 record(s)\n" +
		"  " + Dot + " users\n" +
		"  " + Cross + " messages: store unavailable\n"
	assert.Equal(t, want, buf.String())
}
