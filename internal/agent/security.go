package agent

import (
	"fmt"
	"strings"
)

type RuleKind string

const (
	// RuleExact matches the whole normalized command.
	RuleExact RuleKind = "exact"
	// RulePrefix matches when the normalized command starts with the value.
	RulePrefix RuleKind = "prefix"
	// RuleBareREPL matches a single token that would start an interactive interpreter.
	RuleBareREPL RuleKind = "bare_repl"
)

type Rule struct {
	Kind  RuleKind `json:"kind" yaml:"kind"`
	Value string   `json:"value" yaml:"value"`
}

func (r Rule) String() string { return string(r.Kind) + ":" + r.Value }

func (r Rule) match(normalized string, fields []string) bool {
	value := strings.ToLower(r.Value)
	switch r.Kind {
	case RuleExact:
		return normalized == strings.TrimSpace(value)
	case RulePrefix:
		return value != "" && strings.HasPrefix(normalized, value)
	case RuleBareREPL:
		return len(fields) == 1 && fields[0] == strings.TrimSpace(value)
	default:
		return false
	}
}

var (
	DefaultExact    = []string{"exit", "logout"}
	DefaultPrefixes = []string{"sudo ", "vim ", "nano ", "top ", "htop ", "ssh ", "watch ", "yes ", "tail -f", "apt ", "apt-get "}
	DefaultREPLs    = []string{"python", "python3", "node", "bash"}
)

// RulesFrom builds an ordered rule table: exact rules first, then prefixes,
// then bare interpreters.
func RulesFrom(exact, prefixes, repls []string) []Rule {
	rules := make([]Rule, 0, len(exact)+len(prefixes)+len(repls))
	for _, v := range exact {
		rules = append(rules, Rule{Kind: RuleExact, Value: v})
	}
	for _, v := range prefixes {
		rules = append(rules, Rule{Kind: RulePrefix, Value: v})
	}
	for _, v := range repls {
		rules = append(rules, Rule{Kind: RuleBareREPL, Value: v})
	}
	return rules
}

func DefaultRules() []Rule {
	return RulesFrom(DefaultExact, DefaultPrefixes, DefaultREPLs)
}

// Filter rejects commands that would terminate or hijack the shell. It is a
// syntactic check only.
type Filter struct {
	rules []Rule
}

func NewFilter(rules []Rule) *Filter {
	return &Filter{rules: append([]Rule(nil), rules...)}
}

func (f *Filter) Rules() []Rule {
	if f == nil {
		return nil
	}
	return append([]Rule(nil), f.rules...)
}

// Check returns the first rule matching command.
func (f *Filter) Check(command string) (Rule, bool) {
	if f == nil {
		return Rule{}, false
	}
	normalized := strings.ToLower(strings.TrimSpace(command))
	fields := strings.Fields(normalized)
	for _, r := range f.rules {
		if r.match(normalized, fields) {
			return r, true
		}
	}
	return Rule{}, false
}

// RejectionMessage explains to the caller why command was refused.
func RejectionMessage(command string, r Rule) string {
	first := ""
	if fields := strings.Fields(strings.ToLower(strings.TrimSpace(command))); len(fields) > 0 {
		first = fields[0]
	}
	switch r.Kind {
	case RuleExact:
		return fmt.Sprintf("[Agent Security] Error: Command '%s' is blacklisted as it will terminate the agent.", first)
	case RulePrefix:
		return fmt.Sprintf("[Agent Security] Error: Command '%s' (or similar) is blacklisted. It may be interactive (like sudo/apt) or non-terminating (like watch) and will freeze the agent.", first)
	default:
		return fmt.Sprintf("[Agent Security] Error: Command '%s' is blacklisted. Running it without arguments will start an interactive shell and freeze the agent.", first)
	}
}
