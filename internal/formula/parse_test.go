package formula

import (
	"testing"

	"github.com/aezizhu/CellGen/internal/testutil"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Call
	}{
		{"two args", `=GENERATE("g", "Write a haiku")`, Call{Code: "g", Prompt: "Write a haiku"}},
		{"with ref", `=GENERATE("c","Summarize",A1)`, Call{Code: "c", Prompt: "Summarize", Ref: "A1"}},
		{"lower case no equals", `generate("d", "Explain", $B$2)`, Call{Code: "d", Prompt: "Explain", Ref: "$B$2"}},
		{"comma in prompt", `=GENERATE("g", "red, green", C3)`, Call{Code: "g", Prompt: "red, green", Ref: "C3"}},
		{"escaped quote", `=GENERATE("g", "say ""hi""")`, Call{Code: "g", Prompt: `say "hi"`}},
		{"empty prompt", `=GENERATE("x", "")`, Call{Code: "x", Prompt: ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.line)
			testutil.AssertNoError(t, err)
			testutil.AssertEqual(t, got, tt.want)
		})
	}
}

func TestParse_Errors(t *testing.T) {
	for _, line := range []string{
		`Write a haiku`,
		`=GENERATE("g", "x"`,
		`=GENERATE("g")`,
		`=GENERATE("g", "x", A1, B1)`,
		`=GENERATE(g, "x")`,
		`=GENERATE("g", "open)`,
		`=GENERATE("g", "x", "A1")`,
	} {
		if _, err := Parse(line); err == nil {
			t.Errorf("Parse(%q): expected error", line)
		}
	}
}

func TestIsFormula(t *testing.T) {
	testutil.AssertTrue(t, IsFormula(` =generate("g","x")`))
	testutil.AssertFalse(t, IsFormula("generate a poem"))
	testutil.AssertFalse(t, IsFormula("=SUM(A1:A3)"))
}
