package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Empty(t *testing.T) {
	for _, q := range []string{"", "   ", "\t"} {
		root, err := Parse(q)
		require.NoError(t, err)
		assert.Nil(t, root, "query %q", q)
	}
}

func TestParse_BareTermsAreOr(t *testing.T) {
	root, err := Parse("invoice receipt")
	require.NoError(t, err)

	or, ok := root.(orNode)
	require.True(t, ok, "got %T", root)
	left := or.left.(termNode)
	right := or.right.(termNode)
	assert.Equal(t, "invoice", left.value)
	assert.Equal(t, "receipt", right.value)
	assert.Empty(t, left.field)
}

func TestParse_FieldAndOperators(t *testing.T) {
	root, err := Parse("subject:invoice AND -labels:spam")
	require.NoError(t, err)

	and, ok := root.(andNode)
	require.True(t, ok, "got %T", root)

	term := and.left.(termNode)
	assert.Equal(t, "subject", term.field)
	assert.Equal(t, "invoice", term.value)

	not := and.right.(notNode)
	labelTerm := not.child.(termNode)
	assert.Equal(t, "labels", labelTerm.field)
	assert.Equal(t, "spam", labelTerm.value)
}

func TestParse_LowercaseOperatorsAreTerms(t *testing.T) {
	root, err := Parse("cats and dogs")
	require.NoError(t, err)

	// "and" is an ordinary term here, giving three OR'd terms.
	outer, ok := root.(orNode)
	require.True(t, ok, "got %T", root)
	inner, ok := outer.left.(orNode)
	require.True(t, ok, "got %T", outer.left)
	assert.Equal(t, "cats", inner.left.(termNode).value)
	assert.Equal(t, "and", inner.right.(termNode).value)
	assert.Equal(t, "dogs", outer.right.(termNode).value)
}

func TestParse_Phrase(t *testing.T) {
	root, err := Parse(`subject:"quarterly report"`)
	require.NoError(t, err)

	term := root.(termNode)
	assert.Equal(t, "subject", term.field)
	assert.Equal(t, "quarterly report", term.value)
	assert.True(t, term.phrase)
}

func TestParse_PrefixWildcard(t *testing.T) {
	root, err := Parse("invo*")
	require.NoError(t, err)

	term := root.(termNode)
	assert.Equal(t, "invo", term.value)
	assert.True(t, term.prefix)
}

func TestParse_Parentheses(t *testing.T) {
	root, err := Parse("(alpha OR beta) AND gamma")
	require.NoError(t, err)

	and := root.(andNode)
	or := and.left.(orNode)
	assert.Equal(t, "alpha", or.left.(termNode).value)
	assert.Equal(t, "beta", or.right.(termNode).value)
	assert.Equal(t, "gamma", and.right.(termNode).value)
}

func TestParse_DateRange(t *testing.T) {
	root, err := Parse("date:[2021-01-01 TO 2021-06-30]")
	require.NoError(t, err)

	rng := root.(rangeNode)
	assert.Equal(t, "date", rng.field)
	assert.Equal(t, "2021-01-01", rng.start)
	assert.Equal(t, "2021-06-30", rng.end)
}

func TestParse_OpenDateRange(t *testing.T) {
	root, err := Parse("date:[2021 TO *]")
	require.NoError(t, err)

	rng := root.(rangeNode)
	assert.Equal(t, "2021", rng.start)
	assert.Empty(t, rng.end)
}

func TestParse_SyntaxErrors(t *testing.T) {
	tests := []string{
		`"unterminated phrase`,
		"date:[2021-01-01 TO 2021-06-30",
		"date:[2021-01-01 2021-06-30]",
		"subject:",
		"(unbalanced",
		"alpha )",
	}
	for _, q := range tests {
		_, err := Parse(q)
		var syntaxErr *SyntaxError
		require.ErrorAs(t, err, &syntaxErr, "query %q", q)
		assert.Equal(t, q, syntaxErr.Query)
	}
}

func TestCompile_UnknownField(t *testing.T) {
	root, err := Parse("nosuchfield:value")
	require.NoError(t, err)

	_, err = compile(root, "nosuchfield:value", nil)
	var syntaxErr *SyntaxError
	assert.ErrorAs(t, err, &syntaxErr)
}

func TestCompile_NegatedTermsExcludedFromRanking(t *testing.T) {
	root, err := Parse("alpha -beta")
	require.NoError(t, err)

	compiled, err := compile(root, "alpha -beta", nil)
	require.NoError(t, err)
	require.Len(t, compiled.ftsExprs, 1)
	assert.Contains(t, compiled.ftsExprs[0], "alpha")
}

func TestFtsQuote(t *testing.T) {
	assert.Equal(t, `"alpha"`, ftsQuote("alpha", false))
	assert.Equal(t, `"alpha"*`, ftsQuote("alpha", true))
	assert.Equal(t, `"say ""hi"""`, ftsQuote(`say "hi"`, false))
}

func TestLikePattern(t *testing.T) {
	assert.Equal(t, "50\\%", likePattern("50%"))
	assert.Equal(t, "a%b", likePattern("a*b"))
	assert.Equal(t, "a\\_b", likePattern("a_b"))
}
