package filter

import (
	"testing"

	"github.com/flowtap/flowcore/pkg/flow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEmptyMatchesAll(t *testing.T) {
	e, err := Parse("   ")
	require.NoError(t, err)
	assert.Nil(t, e)
	assert.True(t, Evaluate(e, &flow.Flow{}))
}

func TestScenario3FilterRoundTripAndSargable(t *testing.T) {
	src := `~p kiro & (~m claude* | ~m gpt*) & ~tokens > 1000 & !~e`
	e, err := Parse(src)
	require.NoError(t, err)
	require.NoError(t, Validate(e))

	s := ExtractSargable(e)
	require.NotNil(t, s.Provider)
	assert.Equal(t, "kiro", *s.Provider)
	assert.ElementsMatch(t, []string{"claude*", "gpt*"}, s.ModelLikeAny)
	require.Len(t, s.TotalTokens, 1)
	assert.Equal(t, Bound{CmpGT, 1000}, s.TotalTokens[0])
	require.NotNil(t, s.HasError)
	assert.False(t, *s.HasError)
	assert.Nil(t, s.Residual)

	// Round-trip: format then re-parse yields a structurally equal AST.
	formatted := Format(e)
	reparsed, err := Parse(formatted)
	require.NoError(t, err)
	assert.True(t, Equal(e, reparsed))
}

func TestEvaluateMissingDataIsFalseNotError(t *testing.T) {
	e, err := Parse("~tokens > 10")
	require.NoError(t, err)
	f := &flow.Flow{} // no Response at all
	assert.False(t, Evaluate(e, f))
}

func TestEvaluateModelWildcard(t *testing.T) {
	e, err := Parse("~m claude*")
	require.NoError(t, err)
	f := &flow.Flow{Request: flow.Request{Model: "claude-3-opus"}}
	assert.True(t, Evaluate(e, f))
	f2 := &flow.Flow{Request: flow.Request{Model: "gpt-4"}}
	assert.False(t, Evaluate(e, f2))
}

func TestEvaluateNotHasError(t *testing.T) {
	e, err := Parse("!~e")
	require.NoError(t, err)
	assert.True(t, Evaluate(e, &flow.Flow{}))
	assert.False(t, Evaluate(e, &flow.Flow{Error: &flow.FlowError{Kind: "network"}}))
}

func TestValidateRejectsBadState(t *testing.T) {
	e, err := Parse("~s bogus")
	require.NoError(t, err)
	err = Validate(e)
	assert.Error(t, err)
}

func TestParseErrorHasPosition(t *testing.T) {
	_, err := Parse("~p kiro & (")
	require.Error(t, err)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Greater(t, pe.Pos, 0)
}

func TestAutocompleteEmptyBufferSuggestsAllPredicates(t *testing.T) {
	c := Complete("", 0)
	assert.Len(t, c, len(AllPredicates))
}

func TestAutocompleteAfterStatePrefix(t *testing.T) {
	c := Complete("~s ", 3)
	require.Len(t, c, 6)
	assert.Equal(t, "pending", c[0].Text)
}

func TestAutocompletePartialPredicate(t *testing.T) {
	c := Complete("~to", 3)
	for _, item := range c {
		assert.Contains(t, item.Text, "~to")
	}
	assert.NotEmpty(t, c)
}

func TestAutocompleteAfterBareTokenSuggestsOperators(t *testing.T) {
	c := Complete("~p kiro", 7)
	assert.Len(t, c, 3)
}

func TestQuotedArgWithSpaces(t *testing.T) {
	e, err := Parse(`~tag "needs review"`)
	require.NoError(t, err)
	require.Equal(t, NodePredicate, e.Kind)
	assert.Equal(t, "needs review", e.Arg)
}
