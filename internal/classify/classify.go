// Package classify picks the part of a command's output worth explaining.
package classify

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	NoOutput        = "[No output received]"
	NoErrorPrefix   = "[No error detected]"
	Success         = NoErrorPrefix + " Command executed successfully."
	SilentSuccess   = NoErrorPrefix + " Command succeeded silently."
	WarningDetected = "[Warning detected] Command succeeded but produced warnings."
	UsageDetected   = "[Info message detected] Possibly command usage or help output."
)

const (
	headLines = 60
	tailLines = 400
	tailError = 10
)

var errorKeywords = regexp.MustCompile(`(?i)(error|exception|fail|not found|no such file|denied|segmentation fault|oom|cuda|nan|killed|invalid` +
	`|錯誤|例外|失敗|找不到|沒有此一檔案或目錄|無法存取|拒絕|無效)`)

// NoError reports whether a snippet says there is nothing to explain.
func NoError(snippet string) bool {
	return strings.HasPrefix(snippet, NoErrorPrefix)
}

// FromText classifies free text such as a piped log, without an exit code.
func FromText(text string) string {
	lines := nonEmptyLines(text)
	if len(lines) == 0 {
		return NoOutput
	}

	scope := lines
	if len(lines) > headLines+tailLines {
		scope = append(append([]string(nil), lines[:headLines]...), lines[len(lines)-tailLines:]...)
	}
	joined := strings.Join(scope, "\n")
	if tb, ok := traceback(joined); ok {
		return tb
	}

	for _, l := range lines {
		if errorKeywords.MatchString(l) {
			return strings.TrimSpace(l)
		}
	}

	if len(lines) <= 5 {
		short := strings.ToLower(strings.Join(lines, " "))
		if strings.HasPrefix(short, "usage") || strings.HasPrefix(short, "help") {
			return UsageDetected
		}
	}
	return Success
}

// WithCode classifies a command result. The exit code decides success;
// stderr is preferred over stdout for the failure snippet.
func WithCode(exitCode int, stdout, stderr string) string {
	if exitCode == 0 {
		info := strings.ToLower(stdout + stderr)
		switch {
		case strings.Contains(info, "warning"):
			return WarningDetected
		case strings.HasPrefix(strings.TrimSpace(info), "usage"):
			return UsageDetected
		case strings.TrimSpace(stdout) == "" && strings.TrimSpace(stderr) == "":
			return SilentSuccess
		default:
			return Success
		}
	}

	text := strings.TrimSpace(stderr)
	if text == "" {
		text = strings.TrimSpace(stdout)
	}
	lines := nonEmptyLines(text)
	if len(lines) == 0 {
		return fmt.Sprintf("[Error detected (exit code %d), but no output received]", exitCode)
	}
	if tb, ok := traceback(text); ok {
		return tb
	}
	if len(lines) > tailError {
		lines = lines[len(lines)-tailError:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// traceback returns everything from the first Python traceback header on.
func traceback(text string) (string, bool) {
	if !strings.Contains(text, "Traceback") {
		return "", false
	}
	idx := strings.Index(strings.ToLower(text), "traceback")
	return strings.TrimSpace(text[idx:]), true
}

func nonEmptyLines(text string) []string {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
	if text == "" {
		return nil
	}
	var out []string
	for _, l := range strings.Split(text, "\n") {
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	return out
}
