package grammar

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Label is a non-terminal symbol of the output grammar, like X in [X]
type Label string

var labelPattern = regexp.MustCompile(`^[-\w]+$`)

// IsValid checks the label only contains [-_A-Za-z0-9]
func (l Label) IsValid() bool {
	return labelPattern.MatchString(string(l))
}

// Symbol represents a symbol in the source pattern of a rule, either a
// terminal word or a ranked non-terminal slot
type Symbol struct {
	Word  string
	Label Label

	// Rank is the 1-based rank of a non-terminal slot. It is 0 for terminals
	// and for symbols built only to query the grammar
	Rank int
}

// Terminal creates a terminal symbol
func Terminal(word string) Symbol {
	return Symbol{Word: word}
}

// NonTerminal creates an unranked non-terminal symbol, used for lookups
func NonTerminal(label Label) Symbol {
	return Symbol{Label: label}
}

// IsTerminal returns true if s is a terminal word
func (s Symbol) IsTerminal() bool {
	return s.Label == ""
}

func (s Symbol) String() string {
	if s.IsTerminal() {
		return s.Word
	}
	if s.Rank == 0 {
		return fmt.Sprintf("[%s]", s.Label)
	}
	return fmt.Sprintf("[%s,%d]", s.Label, s.Rank)
}

// TargetToken is a token of the target realization of a rule
type TargetToken struct {
	Word string

	// Slot is the index (in source order) of the source non-terminal this
	// token is aligned to, -1 for terminal words
	Slot int
}

// IsTerminal returns true if t is a target word
func (t TargetToken) IsTerminal() bool {
	return t.Slot < 0
}

// Rule is a synchronous rule: a source pattern of terminals and ranked
// non-terminal slots paired with one scored target realization
type Rule struct {
	LHS    Label
	Source []Symbol
	Target []TargetToken
	Score  float64

	// Slots holds the labels of the source non-terminals in source order
	Slots []Label
}

// Arity returns the number of non-terminal slots of r
func (r *Rule) Arity() int {
	return len(r.Slots)
}

// TargetWords returns the number of terminal words on the target side
func (r *Rule) TargetWords() int {
	n := 0
	for _, tok := range r.Target {
		if tok.IsTerminal() {
			n++
		}
	}
	return n
}

// IsUnary returns true if the source pattern is a single non-terminal
func (r *Rule) IsUnary() bool {
	return len(r.Source) == 1 && !r.Source[0].IsTerminal()
}

// slotRanks returns the rank of each slot in source order
func (r *Rule) slotRanks() []int {
	ranks := []int{}
	for _, symbol := range r.Source {
		if !symbol.IsTerminal() {
			ranks = append(ranks, symbol.Rank)
		}
	}
	return ranks
}

// String converts rule to the text format accepted by ParseRule
func (r *Rule) String() string {
	source := []string{}
	for _, symbol := range r.Source {
		source = append(source, symbol.String())
	}
	ranks := r.slotRanks()
	target := []string{}
	for _, tok := range r.Target {
		if tok.IsTerminal() {
			target = append(target, tok.Word)
		} else {
			target = append(target, fmt.Sprintf("[%s,%d]", r.Slots[tok.Slot], ranks[tok.Slot]))
		}
	}
	return fmt.Sprintf(
		"[%s] ::= %s => %s ; %.3f",
		r.LHS,
		strings.Join(source, " "),
		strings.Join(target, " "),
		r.Score)
}

// parseNonTerminal parses "[X,1]", "[X]" or "[1]". An empty label is returned
// for the rank-only form
func parseNonTerminal(text string) (label Label, rank int, err error) {
	inner := text[1 : len(text)-1]
	fields := strings.Split(inner, ",")
	switch len(fields) {
	case 1:
		if n, convErr := strconv.Atoi(fields[0]); convErr == nil {
			return "", n, nil
		}
		label = Label(strings.TrimSpace(fields[0]))
	case 2:
		label = Label(strings.TrimSpace(fields[0]))
		if rank, err = strconv.Atoi(strings.TrimSpace(fields[1])); err != nil {
			return "", 0, errors.Errorf("bad rank in '%s'", text)
		}
	default:
		return "", 0, errors.Errorf("bad non-terminal '%s'", text)
	}
	if !label.IsValid() {
		return "", 0, errors.Errorf("bad label in '%s'", text)
	}
	return label, rank, nil
}

func isNonTerminalText(text string) bool {
	return len(text) > 2 && text[0] == '[' && text[len(text)-1] == ']'
}

func isValidWord(text string) bool {
	return !strings.ContainsAny(text, "[]|;") && text != "=>" && text != "::="
}

// parseSource parses the source pattern and returns its symbols and slots
func parseSource(text, ruleText string) (source []Symbol, slots []Label, err error) {
	seen := map[int]bool{}
	for _, field := range strings.Fields(text) {
		if !isNonTerminalText(field) {
			if !isValidWord(field) {
				return nil, nil, errors.Errorf("ParseRule: unexpected '%s' in '%s'", field, ruleText)
			}
			source = append(source, Terminal(field))
			continue
		}
		label, rank, err := parseNonTerminal(field)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "ParseRule: '%s'", ruleText)
		}
		if label == "" {
			return nil, nil, errors.Errorf("ParseRule: source non-terminal '%s' needs a label in '%s'", field, ruleText)
		}
		if rank == 0 {
			// Unranked slots take the next rank
			rank = len(slots) + 1
		}
		if seen[rank] {
			return nil, nil, errors.Errorf("ParseRule: duplicated rank %d in '%s'", rank, ruleText)
		}
		seen[rank] = true
		source = append(source, Symbol{Label: label, Rank: rank})
		slots = append(slots, label)
	}
	for rank := 1; rank <= len(slots); rank++ {
		if !seen[rank] {
			return nil, nil, errors.Errorf("ParseRule: missing rank %d in '%s'", rank, ruleText)
		}
	}
	return source, slots, nil
}

// ParseRule parses rules from one line of the grammar text format:
//
//	[X] ::= a [X,1] b => [X,1] Z ; 0.5 | Z [X,1] ; 0.1
//
// Then returns one rule per target realization:
//
//	[{X, "a [X,1] b", "[X,1] Z", 0.5},
//	 {X, "a [X,1] b", "Z [X,1]", 0.1}]
func ParseRule(ruleText string) (rules []*Rule, err error) {
	fields := strings.Split(ruleText, "::=")
	if len(fields) != 2 {
		return nil, errors.Errorf("ParseRule: unexpected number of ::= token in '%s'", ruleText)
	}

	// Left part
	left := strings.TrimSpace(fields[0])
	if !isNonTerminalText(left) {
		return nil, errors.Errorf("ParseRule: '%s': terminal symbol in the left", ruleText)
	}
	lhs, rank, err := parseNonTerminal(left)
	if err != nil || lhs == "" || rank != 0 {
		return nil, errors.Errorf("ParseRule: '%s': bad left hand side '%s'", ruleText, left)
	}

	// Right part
	sides := strings.Split(fields[1], "=>")
	if len(sides) != 2 {
		return nil, errors.Errorf("ParseRule: expect exactly one '=>' in '%s'", ruleText)
	}
	source, slots, err := parseSource(sides[0], ruleText)
	if err != nil {
		return nil, err
	}
	if len(source) == 0 {
		return nil, errors.Errorf("ParseRule: empty source pattern in '%s'", ruleText)
	}
	if len(source) == 1 && len(slots) == 1 {
		return nil, errors.Errorf("ParseRule: unary non-terminal rule '%s'", ruleText)
	}

	// Map rank to the slot index in source order
	rankSlots := map[int]int{}
	slot := 0
	for _, symbol := range source {
		if !symbol.IsTerminal() {
			rankSlots[symbol.Rank] = slot
			slot++
		}
	}

	for _, target := range strings.Split(sides[1], "|") {
		rule := &Rule{LHS: lhs, Source: source, Slots: slots}

		target = strings.TrimSpace(target)
		parts := strings.Split(target, ";")
		if len(parts) == 2 {
			// Has the score value, parse it
			scoreText := strings.TrimSpace(parts[1])
			if rule.Score, err = strconv.ParseFloat(scoreText, 64); err != nil {
				return nil, errors.Errorf(
					"ParseRule: float expected but '%s' found in '%s'",
					scoreText,
					ruleText)
			}
		} else if len(parts) != 1 {
			return nil, errors.Errorf("ParseRule: unexpected ';' token in '%s'", ruleText)
		}

		// Tokens of this realization
		used := map[int]bool{}
		for _, field := range strings.Fields(parts[0]) {
			if !isNonTerminalText(field) {
				if !isValidWord(field) {
					return nil, errors.Errorf("ParseRule: unexpected '%s' in '%s'", field, ruleText)
				}
				rule.Target = append(rule.Target, TargetToken{Word: field, Slot: -1})
				continue
			}
			label, rank, err := parseNonTerminal(field)
			if err != nil {
				return nil, errors.Wrapf(err, "ParseRule: '%s'", ruleText)
			}
			slot, ok := rankSlots[rank]
			if !ok || used[rank] {
				return nil, errors.Errorf("ParseRule: target '%s' is not aligned in '%s'", field, ruleText)
			}
			if label != "" && label != slots[slot] {
				return nil, errors.Errorf("ParseRule: target '%s' disagrees with source label in '%s'", field, ruleText)
			}
			used[rank] = true
			rule.Target = append(rule.Target, TargetToken{Slot: slot})
		}
		if len(used) != len(slots) {
			return nil, errors.Errorf("ParseRule: every source non-terminal must appear once in target of '%s'", ruleText)
		}

		rules = append(rules, rule)
	}

	return rules, nil
}
