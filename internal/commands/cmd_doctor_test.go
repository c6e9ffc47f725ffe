package commands

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hay-kot/postbox/internal/commands/doctor"
	"github.com/hay-kot/postbox/internal/printer"
)

func TestPrintReport(t *testing.T) {
	report := doctor.Report{
		Summary: doctor.Tally{Passed: 1, Warned: 1, Fixable: 1},
		Checks: []doctor.Result{{
			Name: "Orphan Messages",
			Items: []doctor.CheckItem{
				{Label: "topics", Status: doctor.StatusPass},
				{Label: "gone", Status: doctor.StatusWarn, Detail: `"lost" has no topic`, Fixable: true},
			},
		}},
	}

	var buf bytes.Buffer
	printReport(printer.New(&buf), report)

	out := buf.String()
	assert.Contains(t, out, "Orphan Messages\n")
	assert.Contains(t, out, "  "+printer.Check+" topics\n")
	assert.Contains(t, out, "  "+printer.Dot+` gone: "lost" has no topic`)
	assert.Contains(t, out, "Summary: 1 passed, 1 warnings, 0 failed")
	assert.Contains(t, out, "postbox doctor --fix' to repair 1 issue(s)")
}
