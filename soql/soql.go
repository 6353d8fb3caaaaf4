// Package soql inspects SOQL query strings before they are sent to the
// Salesforce API. The validator classifies each query as safe, safely
// rewritable or unsafe without executing it, returning a tagged Verdict.
//
// The validator is pure: it holds no state and never touches the network,
// which allows the rule set to be tested exhaustively without authentication.
package soql

import (
	"fmt"
	"regexp"
	"strings"
)

// Decision classifies the outcome of validating a query.
type Decision int

const (
	Reject Decision = iota
	Allow
	AllowModified
)

var decisionName = map[Decision]string{
	Reject:        "reject",
	Allow:         "allow",
	AllowModified: "allow_modified",
}

// String returns the Decision name string.
func (d Decision) String() string {
	return decisionName[d]
}

// Rejection reasons reported in a Verdict. These are stable identifiers
// surfaced to the caller alongside a human-readable message.
const (
	ReasonDMLForbidden       = "dml_forbidden"
	ReasonSyntaxInvalid      = "syntax_invalid"
	ReasonCountRequiresField = "count_requires_field"
	ReasonCountRequiresWhere = "count_requires_where"
)

// Verdict is the result of validating a query string. RewrittenQuery is set
// only for AllowModified verdicts; Reason and Message are set only for
// non-Allow verdicts.
type Verdict struct {
	Decision       Decision
	RewrittenQuery string
	Reason         string
	Message        string
}

// Query returns the query that should actually be executed for an approved
// verdict, preferring the rewritten form when one exists.
func (v Verdict) Query(original string) string {
	if v.Decision == AllowModified {
		return v.RewrittenQuery
	}
	return original
}

// forbiddenKeywords are the DML/DDL operations that must never reach the
// Salesforce API through this client. Matched as whole words, outside string
// literals, in any casing.
var forbiddenKeywords = []string{
	"INSERT", "UPDATE", "DELETE", "UPSERT", "MERGE",
	"ALTER", "DROP", "TRUNCATE", "UNDELETE",
}

// defaultLimit is appended to non-aggregate queries that carry no LIMIT
// clause, to protect against unbounded result sets.
const defaultLimit = 200

var (
	regexpEmptyCount = regexp.MustCompile(`\bCOUNT\s*\(\s*\)`)
	regexpCountField = regexp.MustCompile(`\bCOUNT\s*\(`)
	regexpWord       = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_.]*`)
)

// Validate applies the safety rule set to a raw SOQL string. Rules are
// applied in order with the first matching rejection winning; the LIMIT
// rewrite applies only to queries that pass every rejection rule.
func Validate(query string) Verdict {
	masked := maskLiterals(query)
	upper := strings.ToUpper(masked)
	words := regexpWord.FindAllString(upper, -1)

	if reason, msg, ok := checkForbidden(words); ok {
		return Verdict{Decision: Reject, Reason: reason, Message: msg}
	}

	if !plausibleSelect(upper, words) {
		return Verdict{
			Decision: Reject,
			Reason:   ReasonSyntaxInvalid,
			Message:  "query must be a single SELECT ... FROM ... statement",
		}
	}

	if regexpEmptyCount.MatchString(upper) {
		return Verdict{
			Decision: Reject,
			Reason:   ReasonCountRequiresField,
			Message:  "COUNT queries must specify a field to count, e.g. COUNT(Id)",
		}
	}

	aggregate := regexpCountField.MatchString(upper) || hasPhrase(words, "GROUP", "BY")

	if regexpCountField.MatchString(upper) && !hasWord(words, "WHERE") {
		return Verdict{
			Decision: Reject,
			Reason:   ReasonCountRequiresWhere,
			Message:  "COUNT queries must include a WHERE clause",
		}
	}

	if !aggregate && !hasWord(words, "LIMIT") {
		rewritten := fmt.Sprintf("%s LIMIT %d", strings.TrimSpace(query), defaultLimit)
		return Verdict{Decision: AllowModified, RewrittenQuery: rewritten}
	}

	return Verdict{Decision: Allow}
}

// checkForbidden reports the first DML/DDL keyword found in the word stream.
func checkForbidden(words []string) (reason, msg string, found bool) {
	for _, w := range words {
		for _, kw := range forbiddenKeywords {
			if w == kw {
				return ReasonDMLForbidden,
					fmt.Sprintf("%s operations are not permitted; only SELECT queries are allowed", kw),
					true
			}
		}
	}
	return "", "", false
}

// plausibleSelect reports whether the masked, uppercased query looks like a
// single SELECT ... FROM ... statement. Unrecognised shapes are treated as
// invalid rather than guessed at.
func plausibleSelect(upper string, words []string) bool {
	if len(words) == 0 || words[0] != "SELECT" {
		return false
	}
	// A FROM keyword followed by an object name must be present.
	fromAt := -1
	for i, w := range words {
		if w == "FROM" {
			fromAt = i
			break
		}
	}
	if fromAt < 1 || fromAt+1 >= len(words) {
		return false
	}
	// Reject statement chaining: a semicolon followed by further content.
	if i := strings.Index(upper, ";"); i >= 0 && strings.TrimSpace(upper[i+1:]) != "" {
		return false
	}
	return true
}

func hasWord(words []string, want string) bool {
	for _, w := range words {
		if w == want {
			return true
		}
	}
	return false
}

// hasPhrase reports whether the two words appear adjacently in the stream.
func hasPhrase(words []string, first, second string) bool {
	for i := 0; i < len(words)-1; i++ {
		if words[i] == first && words[i+1] == second {
			return true
		}
	}
	return false
}

// maskLiterals blanks out the contents of single-quoted string literals so
// that keyword matching cannot be confused by values such as
// Name = 'insert me'. SOQL escapes quotes with a backslash.
func maskLiterals(query string) string {
	var b strings.Builder
	b.Grow(len(query))
	inString := false
	escaped := false
	for _, r := range query {
		switch {
		case inString && escaped:
			escaped = false
			b.WriteRune(' ')
		case inString && r == '\\':
			escaped = true
			b.WriteRune(' ')
		case inString && r == '\'':
			inString = false
			b.WriteRune('\'')
		case inString:
			b.WriteRune(' ')
		case r == '\'':
			inString = true
			b.WriteRune('\'')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
