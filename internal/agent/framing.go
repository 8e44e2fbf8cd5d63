package agent

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/charmbracelet/x/ansi"
)

const trailer = "; echo $?; pwd"

// Wrap appends the exit code and working directory trailer to command.
func Wrap(command string) string {
	return strings.TrimRight(command, " \t") + trailer
}

// StripControl removes terminal escape sequences and stray C0 control bytes.
// Line breaks and tabs are kept. Applying it twice gives the same result.
func StripControl(s string) string {
	s = ansi.Strip(s)
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			return r
		case r < 0x20 || r == 0x7f:
			return -1
		default:
			return r
		}
	}, s)
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.Split(s, "\n")
}

var exitCodeRE = regexp.MustCompile(`-?\d+`)

// Parsed is the decoded content of one prompt-delimited buffer.
type Parsed struct {
	Output   string
	ExitCode int
	// Cwd is the last line of the buffer. It is reported even when the
	// trailer could not be decoded, so the session keeps following the shell.
	Cwd string
	// Failed is set when the exit status could not be decoded. Output then
	// holds the whole cleaned buffer.
	Failed bool
	// Cleaned is the buffer after control stripping and trimming.
	Cleaned string
}

// Parse decodes the text captured between sending a wrapped command and the
// next prompt. The last line is the working directory, the line before it the
// exit status, and everything earlier the command's combined output.
func Parse(raw, previousCwd string) Parsed {
	cleaned := strings.TrimSpace(StripControl(raw))
	lines := splitLines(cleaned)
	if len(lines) == 0 {
		return Parsed{ExitCode: 0, Cwd: previousCwd}
	}

	cwd := strings.TrimSpace(lines[len(lines)-1])
	if cwd == "" {
		cwd = previousCwd
	}
	failed := Parsed{Output: cleaned, ExitCode: -1, Cwd: cwd, Failed: true, Cleaned: cleaned}
	if len(lines) < 2 {
		return failed
	}
	m := exitCodeRE.FindString(lines[len(lines)-2])
	if m == "" {
		return failed
	}
	code, err := strconv.Atoi(m)
	if err != nil {
		return failed
	}
	return Parsed{
		Output:   strings.TrimSpace(strings.Join(lines[:len(lines)-2], "\n")),
		ExitCode: code,
		Cwd:      cwd,
		Cleaned:  cleaned,
	}
}
