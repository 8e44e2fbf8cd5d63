package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterCheck(t *testing.T) {
	f := NewFilter(DefaultRules())

	tests := []struct {
		command string
		blocked bool
		kind    RuleKind
	}{
		{"exit", true, RuleExact},
		{"  EXIT  ", true, RuleExact},
		{"logout", true, RuleExact},
		{"exit 1", false, ""},
		{"sudo ls", true, RulePrefix},
		{"SUDO apt install x", true, RulePrefix},
		{"sudo", false, ""},
		{"vim main.go", true, RulePrefix},
		{"tail -f app.log", true, RulePrefix},
		{"tail -n 5 app.log", false, ""},
		{"apt-get update", true, RulePrefix},
		{"python", true, RuleBareREPL},
		{" python3 ", true, RuleBareREPL},
		{"node", true, RuleBareREPL},
		{"bash", true, RuleBareREPL},
		{"python train.py", false, ""},
		{"bash -c 'echo hi'", false, ""},
		{"echo sudo ls", false, ""},
		{"ls -la", false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			rule, blocked := f.Check(tt.command)
			require.Equal(t, tt.blocked, blocked)
			if tt.blocked {
				assert.Equal(t, tt.kind, rule.Kind)
			}
		})
	}
}

func TestFilterFirstMatchWins(t *testing.T) {
	f := NewFilter([]Rule{
		{Kind: RulePrefix, Value: "ssh "},
		{Kind: RuleExact, Value: "ssh host"},
	})
	rule, blocked := f.Check("ssh host")
	require.True(t, blocked)
	require.Equal(t, RulePrefix, rule.Kind)
}

func TestFilterNilAllowsEverything(t *testing.T) {
	var f *Filter
	_, blocked := f.Check("sudo rm -rf /")
	require.False(t, blocked)
}

func TestRejectionMessageNamesCommand(t *testing.T) {
	for _, kind := range []RuleKind{RuleExact, RulePrefix, RuleBareREPL} {
		msg := RejectionMessage("Sudo ls", Rule{Kind: kind})
		assert.Contains(t, msg, "'sudo'")
		assert.Contains(t, msg, "blacklisted")
	}
}
