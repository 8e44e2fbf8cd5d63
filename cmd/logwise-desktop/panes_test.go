package main

import (
	"strings"
	"testing"

	"fyne.io/fyne/v2/test"

	"github.com/antonkrylov/logwise/internal/classify"
)

func TestLogPaneKeepsTail(t *testing.T) {
	test.NewTempApp(t)

	p := newLogPane(8)
	p.appendLine("abcd")
	p.appendLine("efghij")
	if got := p.String(); got != "cdefghij" {
		t.Fatalf("text=%q", got)
	}
	if got, _ := p.data.Get(); got != "cdefghij" {
		t.Fatalf("binding=%q", got)
	}

	p.set("fresh")
	if got := p.String(); got != "fresh" {
		t.Fatalf("text=%q", got)
	}
}

func TestVerdict(t *testing.T) {
	cases := map[string]string{
		"":                       "Analysis",
		classify.Success:         "Analysis: no error detected",
		classify.SilentSuccess:   "Analysis: no error detected",
		classify.WarningDetected: "Analysis: note",
		"The file does not exist, check the path.": "Analysis: error explained",
	}
	for in, want := range cases {
		if got := verdict(in); got != want {
			t.Fatalf("verdict(%q)=%q want %q", in, got, want)
		}
	}
	if !strings.HasSuffix(promptLine("~"), "~ $") {
		t.Fatalf("prompt=%q", promptLine("~"))
	}
}
