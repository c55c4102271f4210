package parser

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJoins(t *testing.T) {
	sql := "select u.name, o.total FROM users u " +
		"inner join orders o ON o.user_id = u.id " +
		"Left Outer Join addresses AS a ON a.user_id = u.id AND a.kind = 'billing' " +
		"RIGHT outer JOIN regions r ON r.id = a.region_id " +
		"JOIN countries ON countries.id = r.country_id " +
		"WHERE u.active = 1 ORDER BY o.total"

	joins := ExtractJoins(sql)
	require.Len(t, joins, 4)

	assert.Equal(t, JoinInner, joins[0].Type)
	assert.Equal(t, "orders", joins[0].Table)
	assert.Equal(t, "o", joins[0].Alias)
	assert.Equal(t, "o.user_id = u.id", joins[0].On)

	assert.Equal(t, JoinLeft, joins[1].Type)
	assert.Equal(t, "addresses", joins[1].Table)
	assert.Equal(t, "a", joins[1].Alias)
	assert.Equal(t, "a.user_id = u.id AND a.kind = 'billing'", joins[1].On)

	assert.Equal(t, JoinRight, joins[2].Type)
	assert.Equal(t, "r", joins[2].Alias)

	assert.Equal(t, JoinInner, joins[3].Type)
	assert.Equal(t, "countries", joins[3].Table)
	assert.Equal(t, "countries", joins[3].Alias)
	assert.Equal(t, "countries.id = r.country_id", joins[3].On)
}

func TestExtractJoins_PredicateStopsAtClause(t *testing.T) {
	sql := "SELECT a.x FROM a JOIN b ON (b.id = a.b_id AND LOWER(b.code) = 'x') GROUP BY a.x"

	joins := ExtractJoins(sql)
	require.Len(t, joins, 1)
	assert.Equal(t, "(b.id = a.b_id AND LOWER(b.code) = 'x')", joins[0].On)
	assert.Equal(t, "GROUP BY a.x", sql[joins[0].End:])
}

func TestExtractJoins_DerivedTable(t *testing.T) {
	sql := "SELECT u.name FROM users u " +
		"LEFT JOIN (SELECT a.user_id, COUNT(*) n FROM audit a JOIN events e ON e.id = a.event_id GROUP BY a.user_id) AS stats ON stats.user_id = u.id " +
		"JOIN (SELECT 1 AS one) ON 1 = 1 " +
		"JOIN roles r ON r.id = u.role_id WHERE u.id = 7"

	joins := ExtractJoins(sql)
	require.Len(t, joins, 3, "joins inside a derived table belong to it")

	assert.Equal(t, JoinLeft, joins[0].Type)
	assert.Equal(t, DerivedTable, joins[0].Table)
	assert.True(t, joins[0].Derived())
	assert.Equal(t, "stats", joins[0].Alias)
	assert.Equal(t, "stats.user_id = u.id", joins[0].On)

	assert.True(t, joins[1].Derived())
	assert.Empty(t, joins[1].Alias)
	assert.Equal(t, "1 = 1", joins[1].On)

	assert.False(t, joins[2].Derived())
	assert.Equal(t, "roles", joins[2].Table)
	assert.Equal(t, "r.id = u.role_id", joins[2].On)
}

func TestExtractJoins_Types(t *testing.T) {
	tests := map[string]JoinType{
		"SELECT * FROM a CROSS JOIN b":                      JoinCross,
		"SELECT * FROM a FULL OUTER JOIN b ON b.id = a.id":  JoinFull,
		"SELECT * FROM a FULL JOIN b ON b.id = a.id":        JoinFull,
		"SELECT * FROM a NATURAL JOIN b":                    JoinNatural,
		"SELECT * FROM a natural left outer join b":         JoinNatural,
		"SELECT * FROM a INNER JOIN b ON b.id = a.id":       JoinInner,
		"SELECT * FROM a JOIN b ON b.id = a.id":             JoinInner,
		"SELECT * FROM a RIGHT OUTER JOIN b ON b.id = a.id": JoinRight,
	}
	for sql, want := range tests {
		joins := ExtractJoins(sql)
		require.Len(t, joins, 1, sql)
		assert.Equal(t, want, joins[0].Type, sql)
		assert.Equal(t, "b", joins[0].Table, sql)
	}
}

func TestExtractJoins_None(t *testing.T) {
	assert.Empty(t, ExtractJoins("SELECT * FROM users WHERE joined_at > NOW()"))
}

func TestAliasReferenced(t *testing.T) {
	sql := "SELECT u.name FROM users u LEFT JOIN profiles p ON p.user_id = u.id JOIN orders o ON o.user_id = u.id WHERE o.total > 10"

	joins := ExtractJoins(sql)
	require.Len(t, joins, 2)

	assert.False(t, AliasReferenced(sql, joins[0]), "p only appears in its own ON clause")
	assert.True(t, AliasReferenced(sql, joins[1]), "o appears in WHERE")
}

func TestShape(t *testing.T) {
	a := Shape("SELECT * FROM users WHERE id = 15 AND name = 'bob'")
	b := Shape("select *  from users\n where id = ? and name = 'alice';")
	c := Shape("SELECT * FROM users WHERE id IN (1, 2, 3)")

	assert.Equal(t, a, b)
	assert.Equal(t, "select * from users where id in (?)", c)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab...", Truncate("abcdef", 2))
}

func TestTruncate_RuneBoundary(t *testing.T) {
	s := strings.Repeat("a", 199) + "éé"

	got := Truncate(s, 200)

	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("a", 199)+"...", got)
	assert.Equal(t, "日...", Truncate("日本語", 4))
	assert.Equal(t, "...", Truncate("日本語", 2))
}

func TestIsSelect(t *testing.T) {
	assert.True(t, IsSelect("  select 1"))
	assert.True(t, IsSelect("(SELECT a FROM b) UNION (SELECT a FROM c)"))
	assert.False(t, IsSelect("UPDATE users SET x = 1"))
	assert.False(t, IsSelect("SELECTING items is fun"))
}

func TestLexicalPrimaryKeyLookup(t *testing.T) {
	tests := []struct {
		sql    string
		table  string
		wantOK bool
	}{
		{sql: "SELECT * FROM users WHERE id = $1", table: "users", wantOK: true},
		{sql: `SELECT t0.id FROM "public"."users" t0 WHERE t0.id = $1`, table: "users", wantOK: true},
		{sql: "SELECT * FROM users AS u WHERE u.id = :id LIMIT 1", table: "users", wantOK: true},
		{sql: "SELECT * FROM users u WHERE x.id = $1", wantOK: false},
		{sql: "SELECT * FROM users WHERE user_id = $1", wantOK: false},
		{sql: "SELECT * FROM users WHERE id = $1 AND deleted = false", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.sql, func(t *testing.T) {
			table, ok := LexicalPrimaryKeyLookup(tt.sql)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.table, table)
			}
		})
	}
}
