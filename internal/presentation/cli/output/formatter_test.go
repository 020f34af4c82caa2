package output

import (
	"bytes"
	"strings"
	"testing"
)

func TestFormatter_ColorizeDisabled(t *testing.T) {
	f := NewFormatter(WithColor(false))
	if got := f.Colorize("hello", ColorRed); got != "hello" {
		t.Errorf("Colorize = %q", got)
	}
}

func TestFormatter_ColorizeEnabled(t *testing.T) {
	f := NewFormatter(WithColor(true))
	got := f.Colorize("hello", ColorGreen)
	if !strings.HasPrefix(got, string(ColorGreen)) || !strings.HasSuffix(got, string(ColorReset)) {
		t.Errorf("Colorize = %q", got)
	}
}

func TestFormatter_Item(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(WithWriter(&buf), WithColor(false))
	if err := f.Item("State", "running"); err != nil {
		t.Fatalf("Item: %v", err)
	}
	if got := buf.String(); got != "  State: running\n" {
		t.Errorf("output = %q", got)
	}
}

func TestFormatter_Table(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(WithWriter(&buf), WithColor(false))

	err := f.Table(TableData{
		Columns: []TableColumn{{Header: "LABEL"}, {Header: "PROMPT"}},
		Rows: [][]string{
			{"coding", "driving synthwave"},
			{"reading", "soft piano"},
		},
	})
	if err != nil {
		t.Fatalf("Table: %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("lines = %d: %q", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "LABEL") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.Contains(lines[2], "driving synthwave") {
		t.Errorf("row = %q", lines[2])
	}
}

func TestFormatter_JSON(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(WithWriter(&buf), WithFormat(FormatJSON))
	if err := f.JSON(map[string]int{"bpm": 120}); err != nil {
		t.Fatalf("JSON: %v", err)
	}
	if !strings.Contains(buf.String(), `"bpm": 120`) {
		t.Errorf("output = %q", buf.String())
	}
}

func TestParseFormat(t *testing.T) {
	if got, err := ParseFormat("JSON"); err != nil || got != FormatJSON {
		t.Errorf("ParseFormat(JSON) = %v, %v", got, err)
	}
	if got, err := ParseFormat(""); err != nil || got != FormatText {
		t.Errorf("ParseFormat(empty) = %v, %v", got, err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestDuration(t *testing.T) {
	cases := map[int]string{
		0:    "0:00",
		59:   "0:59",
		90:   "1:30",
		1500: "25:00",
		3661: "1:01:01",
	}
	for seconds, want := range cases {
		if got := Duration(seconds); got != want {
			t.Errorf("Duration(%d) = %q, expected %q", seconds, got, want)
		}
	}
}

func TestProgressBar(t *testing.T) {
	bar := ProgressBar(0.5, 10)
	if strings.Count(bar, "█") != 5 || strings.Count(bar, "░") != 5 {
		t.Errorf("bar = %q", bar)
	}
	if bar := ProgressBar(2.0, 10); strings.Count(bar, "█") != 10 {
		t.Errorf("overfull bar = %q", bar)
	}
}
