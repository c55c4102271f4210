package parser

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Lexical helpers scan raw SQL text without building an AST. They tolerate
// dialects the TiDB grammar rejects but cannot see into nested subqueries
// reliably and do not resolve aliases across CTEs.

// JoinType is the normalized kind of a JOIN clause
type JoinType string

const (
	JoinInner   JoinType = "INNER"
	JoinLeft    JoinType = "LEFT"
	JoinRight   JoinType = "RIGHT"
	JoinFull    JoinType = "FULL"
	JoinCross   JoinType = "CROSS"
	JoinNatural JoinType = "NATURAL"
)

// DerivedTable stands in for the table name of a JOIN (SELECT ...) clause.
const DerivedTable = "(subquery)"

// JoinClause is one JOIN found in a query.
type JoinClause struct {
	Type  JoinType
	Table string
	Alias string // equals Table when no alias is declared, "" for an unaliased derived table
	On    string
	// Start and End delimit the clause (keyword to end of ON predicate).
	Start int
	End   int
}

// Derived reports a join against a parenthesized subquery.
func (jc JoinClause) Derived() bool {
	return jc.Table == DerivedTable
}

var (
	joinKeyword  = regexp.MustCompile(`(?i)\b(?:(INNER|CROSS|LEFT|RIGHT|FULL|NATURAL(?:\s+(?:INNER|LEFT|RIGHT|FULL))?)\s+(?:OUTER\s+)?)?JOIN\b\s*`)
	joinTarget   = regexp.MustCompile("^[A-Za-z_`\"\\[][\\w.`\"\\]]*")
	joinAlias    = regexp.MustCompile(`(?i)^\s+(?:AS\s+)?([A-Za-z_]\w*)`)
	onKeyword    = regexp.MustCompile(`(?i)^\s+ON\b`)
	clauseStart  = regexp.MustCompile(`(?i)^(?:WHERE|GROUP\s+BY|ORDER\s+BY|HAVING|LIMIT|OFFSET|UNION|FOR\s+UPDATE)\b`)
	selectPrefix = regexp.MustCompile(`(?is)^\s*(?:\(\s*)*SELECT\b`)
	bareStar     = regexp.MustCompile(`(?is)^\s*SELECT\s+(?:DISTINCT\s+)?\*\s+FROM\b`)
	whitespace   = regexp.MustCompile(`\s+`)
	stringLit    = regexp.MustCompile(`'(?:[^'\\]|\\.|'')*'`)
	numberLit    = regexp.MustCompile(`\b\d+(?:\.\d+)?\b`)
	placeholder  = regexp.MustCompile(`\?|\$\d+|:[A-Za-z_]\w*`)
	inList       = regexp.MustCompile(`(?i)\bIN\s*\(\s*\?(?:\s*,\s*\?)*\s*\)`)
)

// aliasStopWords can follow a joined table name but are never aliases.
var aliasStopWords = map[string]bool{
	"ON": true, "USING": true, "WHERE": true, "INNER": true, "LEFT": true, "RIGHT": true,
	"OUTER": true, "CROSS": true, "JOIN": true, "GROUP": true, "ORDER": true, "HAVING": true,
	"LIMIT": true, "OFFSET": true, "UNION": true, "NATURAL": true, "FULL": true, "WITH": true,
	"FOR": true,
}

// ExtractJoins finds JOIN clauses with a tolerant lexical scan. LEFT OUTER
// and RIGHT OUTER are normalized to LEFT and RIGHT, a bare JOIN is INNER and
// every NATURAL variant is NATURAL. A derived table counts as one join named
// DerivedTable; joins nested inside it are not reported.
func ExtractJoins(sql string) []JoinClause {
	locs := joinKeyword.FindAllStringSubmatchIndex(sql, -1)
	joins := make([]JoinClause, 0, len(locs))
	consumed := 0

	for n, loc := range locs {
		if loc[0] < consumed {
			continue
		}
		jc := JoinClause{Type: JoinInner, Start: loc[0]}
		if loc[2] >= 0 {
			jc.Type = joinType(sql[loc[2]:loc[3]])
		}

		rest := sql[loc[1]:]
		var cursor int
		if strings.HasPrefix(rest, "(") {
			end := closingParen(rest)
			if end < 0 {
				continue
			}
			jc.Table = DerivedTable
			cursor = end + 1
		} else {
			target := joinTarget.FindStringIndex(rest)
			if target == nil {
				continue
			}
			jc.Table = trimIdent(rest[:target[1]])
			jc.Alias = jc.Table
			cursor = target[1]
		}
		if a := joinAlias.FindStringSubmatchIndex(rest[cursor:]); a != nil {
			if alias := rest[cursor+a[2] : cursor+a[3]]; !aliasStopWords[strings.ToUpper(alias)] {
				jc.Alias = alias
				cursor += a[1]
			}
		}

		limit := len(rest)
		for _, next := range locs[n+1:] {
			if next[0] >= loc[1]+cursor {
				limit = next[0] - loc[1]
				break
			}
		}

		jc.End = loc[1] + cursor
		if on := onKeyword.FindStringIndex(rest[cursor:limit]); on != nil {
			predStart := cursor + on[1]
			predEnd := predStart + predicateEnd(rest[predStart:limit])
			jc.On = strings.TrimSpace(rest[predStart:predEnd])
			jc.End = loc[1] + predEnd
		}
		consumed = jc.End
		joins = append(joins, jc)
	}
	return joins
}

func joinType(keyword string) JoinType {
	kw := strings.ToUpper(strings.Join(strings.Fields(keyword), " "))
	if strings.HasPrefix(kw, string(JoinNatural)) {
		return JoinNatural
	}
	return JoinType(kw)
}

// closingParen returns the index of the ")" matching s[0], or -1.
func closingParen(s string) int {
	depth := 0
	inString := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			if c == '\'' {
				inString = false
			}
			continue
		}
		switch c {
		case '\'':
			inString = true
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// predicateEnd finds where an ON predicate stops: the first clause keyword,
// unbalanced ")" or ";" outside parentheses and string literals.
func predicateEnd(s string) int {
	depth := 0
	inString := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			if c == '\'' {
				inString = false
			}
			continue
		}
		switch c {
		case '\'':
			inString = true
		case '(':
			depth++
		case ')':
			if depth == 0 {
				return i
			}
			depth--
		case ';':
			if depth == 0 {
				return i
			}
		default:
			if depth == 0 && (i == 0 || !isWordByte(s[i-1])) && clauseStart.MatchString(s[i:]) {
				return i
			}
		}
	}
	return len(s)
}

func isWordByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// AliasReferenced reports whether alias. appears in sql outside the given
// clause span.
func AliasReferenced(sql string, jc JoinClause) bool {
	outside := sql[:jc.Start] + " " + sql[jc.End:]
	re := regexp.MustCompile(`(?i)(?:^|[^\w.])` + "[`\"]?" + regexp.QuoteMeta(jc.Alias) + "[`\"]?" + `\.`)
	return re.MatchString(outside)
}

// SelectsAllColumns reports a bare SELECT * projection, which implicitly
// uses every joined table.
func SelectsAllColumns(sql string) bool {
	return bareStar.MatchString(sql)
}

// IsSelect reports whether sql is a SELECT statement.
func IsSelect(sql string) bool {
	return selectPrefix.MatchString(sql)
}

// Shape normalizes a query to its structure: literals and placeholders
// become ?, IN lists collapse, whitespace and case are folded.
func Shape(sql string) string {
	s := stringLit.ReplaceAllString(sql, "?")
	s = placeholder.ReplaceAllString(s, "?")
	s = numberLit.ReplaceAllString(s, "?")
	s = inList.ReplaceAllString(s, "IN (?)")
	s = whitespace.ReplaceAllString(strings.TrimSpace(s), " ")
	return strings.ToLower(strings.TrimSuffix(s, ";"))
}

// Truncate cuts s to at most max bytes, backing off to a rune boundary, and
// appends "..." when it was longer.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

var lexicalLookup = regexp.MustCompile("(?is)^\\s*SELECT\\s+.+?\\s+FROM\\s+([A-Za-z_`\"][\\w.`\"]*)(?:\\s+(?:AS\\s+)?([A-Za-z_]\\w*))?\\s+WHERE\\s+\\(?\\s*(?:([A-Za-z_]\\w*)\\.)?[`\"]?id[`\"]?\\s*=\\s*(?:\\?|\\$\\d+|:[A-Za-z_]\\w*|\\d+|'[^']*')\\s*\\)?\\s*(?:LIMIT\\s+\\d+)?\\s*;?\\s*$")

// LexicalPrimaryKeyLookup is the text-only counterpart of PrimaryKeyLookup
// for SQL the TiDB grammar cannot parse (e.g. $1 placeholders).
func LexicalPrimaryKeyLookup(sql string) (string, bool) {
	m := lexicalLookup.FindStringSubmatch(sql)
	if m == nil {
		return "", false
	}
	table, alias, qualifier := trimIdent(m[1]), m[2], m[3]
	if aliasStopWords[strings.ToUpper(alias)] {
		alias = ""
	}
	if qualifier != "" && !strings.EqualFold(qualifier, baseName(table)) && !strings.EqualFold(qualifier, alias) {
		return "", false
	}
	return baseName(table), true
}

func trimIdent(s string) string {
	return strings.NewReplacer("`", "", `"`, "", "[", "", "]", "").Replace(s)
}

func baseName(table string) string {
	if i := strings.LastIndex(table, "."); i >= 0 {
		return table[i+1:]
	}
	return table
}
