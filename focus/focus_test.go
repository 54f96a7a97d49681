package focus

import (
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	e, err := parse("Terminal\ntext area\nmissing value\nline one\nline two\n")
	if err != nil {
		t.Fatalf("parse() error = %v", err)
	}
	want := Element{App: "Terminal", Role: "text area", Value: "line one\nline two"}
	if *e != want {
		t.Errorf("parse() = %+v, want %+v", *e, want)
	}

	if e, err := parse("Finder\n"); err != nil || e.App != "Finder" || e.Role != "" {
		t.Errorf("parse(app only) = %+v, %v", e, err)
	}
	if _, err := parse("\n"); err == nil {
		t.Error("parse(empty) should fail")
	}
}

func TestElementContext(t *testing.T) {
	e := &Element{App: "Safari", Role: "text field", Title: "Search", Value: strings.Repeat("x", maxValue+10)}
	got := e.Context()
	if !strings.Contains(got, "Focused application: Safari") || !strings.Contains(got, `text field "Search"`) {
		t.Errorf("Context() = %q", got)
	}
	if !strings.HasSuffix(got, "…") {
		t.Error("long value should be truncated")
	}

	var nilElem *Element
	if nilElem.Context() != "" {
		t.Error("nil element context should be empty")
	}
}
