package gps

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// FlagExpression is the REQUIRED_USE-style constraint language over a
// package's build flags. It is also reused to gate conditional
// dependency clauses ("flag? ( dep )").
//
//	Expr ::= Flag | !Flag
//	       | AllOf(Expr*)
//	       | AnyOf(Expr*)         -- "||"
//	       | ExactlyOneOf(Expr*)  -- "^^"
//	       | AtMostOneOf(Expr*)   -- "??"
//	       | If(Flag, polarity, Expr*)   -- conditional group
type FlagExpression interface {
	fmt.Stringer

	// Evaluate reports whether the expression is satisfied by the given
	// enabled-flag set. Evaluation is pure: it depends only on the subset
	// of enabled referenced by Flags().
	Evaluate(enabled map[string]bool) bool

	// Describe renders a human-readable decomposition of the expression;
	// ValidateFlags uses it to name each unsatisfied top-level clause.
	Describe() string

	// Flags returns every flag name referenced anywhere in the
	// expression, including nested conditions and groups.
	Flags() []string

	sealedFlagExpr()
}

// FlagEnabled requires flag to be enabled.
type FlagEnabled struct{ Flag string }

// FlagDisabled requires flag to be disabled.
type FlagDisabled struct{ Flag string }

// AllOf requires every sub-expression to be satisfied (implicit grouping
// and explicit "( ... )" groups both produce this node).
type AllOf struct{ Exprs []FlagExpression }

// AnyOf is "||": at least one sub-expression must be satisfied.
type AnyOf struct{ Exprs []FlagExpression }

// ExactlyOneOf is "^^": exactly one sub-expression must be satisfied.
type ExactlyOneOf struct{ Exprs []FlagExpression }

// AtMostOneOf is "??": at most one sub-expression may be satisfied.
type AtMostOneOf struct{ Exprs []FlagExpression }

// If is a conditional group: "flag? ( inner )" or "!flag? ( inner )". When
// the condition is not met, the group is vacuously satisfied.
type If struct {
	Flag     string
	Positive bool
	Inner    []FlagExpression
}

func (FlagEnabled) sealedFlagExpr()   {}
func (FlagDisabled) sealedFlagExpr()  {}
func (AllOf) sealedFlagExpr()         {}
func (AnyOf) sealedFlagExpr()         {}
func (ExactlyOneOf) sealedFlagExpr()  {}
func (AtMostOneOf) sealedFlagExpr()   {}
func (If) sealedFlagExpr()            {}

func (e FlagEnabled) Evaluate(enabled map[string]bool) bool  { return enabled[e.Flag] }
func (e FlagDisabled) Evaluate(enabled map[string]bool) bool { return !enabled[e.Flag] }

func (e AllOf) Evaluate(enabled map[string]bool) bool {
	for _, c := range e.Exprs {
		if !c.Evaluate(enabled) {
			return false
		}
	}
	return true
}

func (e AnyOf) Evaluate(enabled map[string]bool) bool {
	for _, c := range e.Exprs {
		if c.Evaluate(enabled) {
			return true
		}
	}
	return false
}

func (e ExactlyOneOf) Evaluate(enabled map[string]bool) bool {
	return countSatisfied(e.Exprs, enabled) == 1
}

func (e AtMostOneOf) Evaluate(enabled map[string]bool) bool {
	return countSatisfied(e.Exprs, enabled) <= 1
}

func (e If) Evaluate(enabled map[string]bool) bool {
	met := enabled[e.Flag] == e.Positive
	if !met {
		return true // vacuous truth: condition not triggered
	}
	for _, c := range e.Inner {
		if !c.Evaluate(enabled) {
			return false
		}
	}
	return true
}

func countSatisfied(exprs []FlagExpression, enabled map[string]bool) int {
	n := 0
	for _, c := range exprs {
		if c.Evaluate(enabled) {
			n++
		}
	}
	return n
}

func (e FlagEnabled) Describe() string  { return e.Flag + " must be enabled" }
func (e FlagDisabled) Describe() string { return e.Flag + " must be disabled" }

func describeList(exprs []FlagExpression) string {
	items := make([]string, len(exprs))
	for i, c := range exprs {
		items[i] = c.Describe()
	}
	return strings.Join(items, ", ")
}

func (e AllOf) Describe() string        { return "all of: " + describeList(e.Exprs) }
func (e AnyOf) Describe() string        { return "at least one of: " + describeList(e.Exprs) }
func (e ExactlyOneOf) Describe() string { return "exactly one of: " + describeList(e.Exprs) }
func (e AtMostOneOf) Describe() string  { return "at most one of: " + describeList(e.Exprs) }
func (e If) Describe() string {
	cond := "if " + e.Flag + " is enabled: "
	if !e.Positive {
		cond = "if " + e.Flag + " is disabled: "
	}
	return cond + describeList(e.Inner)
}

func (e FlagEnabled) String() string  { return e.Flag }
func (e FlagDisabled) String() string { return "!" + e.Flag }

func stringList(exprs []FlagExpression) string {
	items := make([]string, len(exprs))
	for i, c := range exprs {
		items[i] = c.String()
	}
	return strings.Join(items, " ")
}

func (e AllOf) String() string        { return "( " + stringList(e.Exprs) + " )" }
func (e AnyOf) String() string        { return "|| ( " + stringList(e.Exprs) + " )" }
func (e ExactlyOneOf) String() string { return "^^ ( " + stringList(e.Exprs) + " )" }
func (e AtMostOneOf) String() string  { return "?? ( " + stringList(e.Exprs) + " )" }
func (e If) String() string {
	if e.Positive {
		return e.Flag + "? ( " + stringList(e.Inner) + " )"
	}
	return "!" + e.Flag + "? ( " + stringList(e.Inner) + " )"
}

func (e FlagEnabled) Flags() []string  { return []string{e.Flag} }
func (e FlagDisabled) Flags() []string { return []string{e.Flag} }

func flagsOf(exprs []FlagExpression) []string {
	var out []string
	for _, c := range exprs {
		out = append(out, c.Flags()...)
	}
	return out
}

func (e AllOf) Flags() []string        { return flagsOf(e.Exprs) }
func (e AnyOf) Flags() []string        { return flagsOf(e.Exprs) }
func (e ExactlyOneOf) Flags() []string { return flagsOf(e.Exprs) }
func (e AtMostOneOf) Flags() []string  { return flagsOf(e.Exprs) }
func (e If) Flags() []string           { return append([]string{e.Flag}, flagsOf(e.Inner)...) }

// --- parsing -----------------------------------------------------------

type fxTokenKind int

const (
	tokFlag fxTokenKind = iota
	tokNegatedFlag
	tokConditional
	tokOpenParen
	tokCloseParen
	tokAnyOf
	tokExactlyOneOf
	tokAtMostOneOf
)

type fxToken struct {
	kind     fxTokenKind
	flag     string
	positive bool
}

// ParseFlagExpression parses a REQUIRED_USE-style string into a top-level
// AllOf of every space-separated top-level clause, mirroring the source
// grammar's implicit "all constraints at top level must hold."
func ParseFlagExpression(input string) (FlagExpression, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return AllOf{}, nil
	}
	toks, err := fxTokenize(input)
	if err != nil {
		return nil, errors.Wrapf(err, "flag expression %q", input)
	}
	exprs, pos, err := fxParseGroup(toks, 0, false)
	if err != nil {
		return nil, errors.Wrapf(err, "flag expression %q", input)
	}
	if pos != len(toks) {
		return nil, errors.Errorf("flag expression %q: unexpected trailing tokens", input)
	}
	return AllOf{Exprs: exprs}, nil
}

func fxTokenize(input string) ([]fxToken, error) {
	var toks []fxToken
	r := []rune(input)
	i := 0
	isIdentRune := func(c rune) bool {
		return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') ||
			c == '_' || c == '-' || c == '+'
	}
	for i < len(r) {
		c := r[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			toks = append(toks, fxToken{kind: tokOpenParen})
			i++
		case c == ')':
			toks = append(toks, fxToken{kind: tokCloseParen})
			i++
		case c == '|':
			if i+1 < len(r) && r[i+1] == '|' {
				toks = append(toks, fxToken{kind: tokAnyOf})
				i += 2
			} else {
				return nil, errors.Errorf("expected '||' but found single '|' at position %d", i)
			}
		case c == '^':
			if i+1 < len(r) && r[i+1] == '^' {
				toks = append(toks, fxToken{kind: tokExactlyOneOf})
				i += 2
			} else {
				return nil, errors.Errorf("expected '^^' but found single '^' at position %d", i)
			}
		case c == '?':
			if i+1 < len(r) && r[i+1] == '?' {
				toks = append(toks, fxToken{kind: tokAtMostOneOf})
				i += 2
			} else {
				return nil, errors.Errorf("unexpected '?' at position %d; use '??' for at-most-one-of", i)
			}
		case c == '!':
			i++
			start := i
			for i < len(r) && isIdentRune(r[i]) {
				i++
			}
			if start == i {
				return nil, errors.Errorf("expected flag name after '!' at position %d", start)
			}
			flag := string(r[start:i])
			if i < len(r) && r[i] == '?' {
				i++
				toks = append(toks, fxToken{kind: tokConditional, flag: flag, positive: false})
			} else {
				toks = append(toks, fxToken{kind: tokNegatedFlag, flag: flag})
			}
		case c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z'):
			start := i
			for i < len(r) && isIdentRune(r[i]) {
				i++
			}
			flag := string(r[start:i])
			if i < len(r) && r[i] == '?' {
				i++
				toks = append(toks, fxToken{kind: tokConditional, flag: flag, positive: true})
			} else {
				toks = append(toks, fxToken{kind: tokFlag, flag: flag})
			}
		default:
			return nil, errors.Errorf("unexpected character %q at position %d", c, i)
		}
	}
	return toks, nil
}

// fxParseGroup parses a sequence of constraints until it hits a close
// paren (if inGroup) or the end of input. It returns the parsed
// expressions and the position just past what it consumed.
func fxParseGroup(toks []fxToken, pos int, inGroup bool) ([]FlagExpression, int, error) {
	var out []FlagExpression
	for pos < len(toks) {
		if toks[pos].kind == tokCloseParen {
			if !inGroup {
				return nil, 0, errors.New("unexpected ')'")
			}
			return out, pos + 1, nil
		}
		expr, next, err := fxParseOne(toks, pos)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, expr)
		pos = next
	}
	if inGroup {
		return nil, 0, errors.New("unclosed parenthesis")
	}
	return out, pos, nil
}

func fxExpectParen(toks []fxToken, pos int, after string) error {
	if pos >= len(toks) || toks[pos].kind != tokOpenParen {
		return errors.Errorf("expected '(' after %q", after)
	}
	return nil
}

func fxParseOne(toks []fxToken, pos int) (FlagExpression, int, error) {
	if pos >= len(toks) {
		return nil, 0, errors.New("unexpected end of input")
	}
	t := toks[pos]
	switch t.kind {
	case tokFlag:
		return FlagEnabled{Flag: t.flag}, pos + 1, nil
	case tokNegatedFlag:
		return FlagDisabled{Flag: t.flag}, pos + 1, nil
	case tokAnyOf:
		if err := fxExpectParen(toks, pos+1, "||"); err != nil {
			return nil, 0, err
		}
		inner, next, err := fxParseGroup(toks, pos+2, true)
		if err != nil {
			return nil, 0, err
		}
		return AnyOf{Exprs: inner}, next, nil
	case tokExactlyOneOf:
		if err := fxExpectParen(toks, pos+1, "^^"); err != nil {
			return nil, 0, err
		}
		inner, next, err := fxParseGroup(toks, pos+2, true)
		if err != nil {
			return nil, 0, err
		}
		return ExactlyOneOf{Exprs: inner}, next, nil
	case tokAtMostOneOf:
		if err := fxExpectParen(toks, pos+1, "??"); err != nil {
			return nil, 0, err
		}
		inner, next, err := fxParseGroup(toks, pos+2, true)
		if err != nil {
			return nil, 0, err
		}
		return AtMostOneOf{Exprs: inner}, next, nil
	case tokConditional:
		if err := fxExpectParen(toks, pos+1, t.flag+"?"); err != nil {
			return nil, 0, err
		}
		inner, next, err := fxParseGroup(toks, pos+2, true)
		if err != nil {
			return nil, 0, err
		}
		return If{Flag: t.flag, Positive: t.positive, Inner: inner}, next, nil
	case tokOpenParen:
		inner, next, err := fxParseGroup(toks, pos+1, true)
		if err != nil {
			return nil, 0, err
		}
		return AllOf{Exprs: inner}, next, nil
	case tokCloseParen:
		return nil, 0, errors.New("unexpected ')'")
	default:
		return nil, 0, errors.Errorf("unhandled token kind %v", t.kind)
	}
}

// --- validation and repair ----------------------------------------------

// FlagValidation is the result of validating a FlagExpression against an
// enabled-flag set, including suggested repairs.
type FlagValidation struct {
	Satisfied      bool
	Explanation    string
	SuggestEnable  []string
	SuggestDisable []string
}

// ValidateFlags evaluates expr against enabled and, if unsatisfied,
// produces a conservative repair suggestion: it never recommends enabling
// a flag outside available, and the suggestions are idempotent — applying
// them once either satisfies the expression or the caller is told no
// local repair exists (RepairFlags makes that determination explicit).
func ValidateFlags(expr FlagExpression, enabled, available map[string]bool) FlagValidation {
	if expr == nil || expr.Evaluate(enabled) {
		return FlagValidation{Satisfied: true}
	}

	var toEnable, toDisable []string
	collectSuggestions(expr, enabled, available, &toEnable, &toDisable)

	toEnable = dedupeSorted(toEnable)
	toDisable = dedupeSorted(toDisable)
	toEnable, toDisable = removeConflicts(toEnable, toDisable)

	unsat := []string{expr.Describe()}
	if all, ok := expr.(AllOf); ok {
		unsat = unsat[:0]
		for _, c := range all.Exprs {
			if !c.Evaluate(enabled) {
				unsat = append(unsat, c.Describe())
			}
		}
	}

	return FlagValidation{
		Satisfied:      false,
		Explanation:    "unsatisfied constraints:\n  - " + strings.Join(unsat, "\n  - "),
		SuggestEnable:  toEnable,
		SuggestDisable: toDisable,
	}
}

func dedupeSorted(ss []string) []string {
	if len(ss) == 0 {
		return nil
	}
	sort.Strings(ss)
	out := ss[:1]
	for _, s := range ss[1:] {
		if s != out[len(out)-1] {
			out = append(out, s)
		}
	}
	return out
}

func removeConflicts(enable, disable []string) ([]string, []string) {
	disableSet := make(map[string]bool, len(disable))
	for _, d := range disable {
		disableSet[d] = true
	}
	var e []string
	for _, f := range enable {
		if !disableSet[f] {
			e = append(e, f)
		}
	}
	enableSet := make(map[string]bool, len(e))
	for _, f := range e {
		enableSet[f] = true
	}
	var d []string
	for _, f := range disable {
		if !enableSet[f] {
			d = append(d, f)
		}
	}
	return e, d
}

func collectSuggestions(expr FlagExpression, enabled, available map[string]bool, toEnable, toDisable *[]string) {
	switch e := expr.(type) {
	case FlagEnabled:
		if available[e.Flag] && !enabled[e.Flag] {
			*toEnable = append(*toEnable, e.Flag)
		}
	case FlagDisabled:
		if enabled[e.Flag] {
			*toDisable = append(*toDisable, e.Flag)
		}
	case AnyOf:
		if e.Evaluate(enabled) {
			return
		}
		for _, c := range e.Exprs {
			if fe, ok := c.(FlagEnabled); ok && available[fe.Flag] && !enabled[fe.Flag] {
				*toEnable = append(*toEnable, fe.Flag)
				return
			}
		}
	case ExactlyOneOf:
		satisfiedFlags := satisfiedEnabledFlags(e.Exprs, enabled)
		switch {
		case len(satisfiedFlags) == 0:
			for _, c := range e.Exprs {
				if fe, ok := c.(FlagEnabled); ok && available[fe.Flag] {
					*toEnable = append(*toEnable, fe.Flag)
					return
				}
			}
		case len(satisfiedFlags) > 1:
			*toDisable = append(*toDisable, satisfiedFlags[1:]...)
		}
	case AtMostOneOf:
		satisfiedFlags := satisfiedEnabledFlags(e.Exprs, enabled)
		if len(satisfiedFlags) > 1 {
			*toDisable = append(*toDisable, satisfiedFlags[1:]...)
		}
	case AllOf:
		for _, c := range e.Exprs {
			if !c.Evaluate(enabled) {
				collectSuggestions(c, enabled, available, toEnable, toDisable)
			}
		}
	case If:
		met := enabled[e.Flag] == e.Positive
		if !met {
			return
		}
		for _, c := range e.Inner {
			if !c.Evaluate(enabled) {
				collectSuggestions(c, enabled, available, toEnable, toDisable)
			}
		}
	}
}

// satisfiedEnabledFlags returns, in declaration order, the flag names of
// every FlagEnabled sub-expression that is currently satisfied. Only
// FlagEnabled leaves are considered "the first" candidate to keep,
// matching the source behavior's "suggest disabling all but the first".
func satisfiedEnabledFlags(exprs []FlagExpression, enabled map[string]bool) []string {
	var out []string
	for _, c := range exprs {
		if fe, ok := c.(FlagEnabled); ok && c.Evaluate(enabled) {
			out = append(out, fe.Flag)
		}
	}
	return out
}

// RepairFlags applies ValidateFlags' suggestion to a copy of enabled, up
// to maxDepth iterations (each iteration may surface a new unsatisfied
// sub-clause once earlier ones are fixed). It returns the repaired set and
// whether it fully satisfies expr; false means no local repair exists
// within maxDepth.
func RepairFlags(expr FlagExpression, enabled, available map[string]bool, maxDepth int) (map[string]bool, bool) {
	cur := make(map[string]bool, len(enabled))
	for k, v := range enabled {
		cur[k] = v
	}
	if expr == nil || expr.Evaluate(cur) {
		return cur, true
	}
	for i := 0; i < maxDepth; i++ {
		v := ValidateFlags(expr, cur, available)
		if v.Satisfied {
			return cur, true
		}
		if len(v.SuggestEnable) == 0 && len(v.SuggestDisable) == 0 {
			return cur, false
		}
		for _, f := range v.SuggestEnable {
			cur[f] = true
		}
		for _, f := range v.SuggestDisable {
			cur[f] = false
		}
		if expr.Evaluate(cur) {
			return cur, true
		}
	}
	return cur, expr.Evaluate(cur)
}
