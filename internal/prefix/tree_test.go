package prefix

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ratingcore/pkg/match"
)

func zoneTree(t *testing.T, entries ...Entry) *Tree {
	t.Helper()
	tree, err := Build(3, entries)
	require.NoError(t, err)
	return tree
}

func TestLookupRoundTrip(t *testing.T) {
	entries := []Entry{
		{Keys: []string{"VOICE", "0044", "0044"}, Value: "UK_LOCAL", Attributes: []string{"UK", "local"}},
		{Keys: []string{"VOICE", "0044", "0033"}, Value: "UK_FR"},
		{Keys: []string{"SMS", "31", "49"}, Value: "NL_DE_SMS"},
	}
	tree := zoneTree(t, entries...)

	for _, e := range entries {
		r := tree.Lookup(e.Keys...)
		require.True(t, r.OK(), "keys %v", e.Keys)
		assert.Equal(t, e.Value, r.Value)
	}
	assert.Equal(t, 3, tree.Len())
	assert.Equal(t, 3, tree.Fields())
}

func TestLongestPrefixOverridesShorter(t *testing.T) {
	tree := zoneTree(t,
		Entry{Keys: []string{"V", "", "1"}, Value: "A"},
		Entry{Keys: []string{"V", "", "12"}, Value: "B"},
	)

	assert.Equal(t, "B", tree.Lookup("V", "999", "12345").Value)
	assert.Equal(t, "A", tree.Lookup("V", "999", "13345").Value)
	assert.Equal(t, "A", tree.Lookup("V", "999", "1").Value)
}

func TestDeepestTerminalNotFullLength(t *testing.T) {
	tree := zoneTree(t,
		Entry{Keys: []string{"V", "", "12"}, Value: "B"},
		Entry{Keys: []string{"V", "", "12345"}, Value: "C"},
	)

	// "1234" passes "12" but stops before "12345" terminates
	assert.Equal(t, "B", tree.Lookup("V", "0", "1234").Value)
	assert.Equal(t, "C", tree.Lookup("V", "0", "123456").Value)
}

func TestMissReturnsSentinel(t *testing.T) {
	tree := zoneTree(t, Entry{Keys: []string{"V", "44", "44"}, Value: "UK"})

	r := tree.Lookup("V", "44", "33")
	assert.False(t, r.OK())

	res := tree.BestMatch("V", "44", "33")
	assert.Equal(t, []string{match.NoMatch}, res)
	assert.False(t, match.IsValid(res))

	res = tree.BestMatchWithChildData("X", "1", "2")
	assert.Equal(t, []string{match.NoMatch}, res)
	assert.False(t, match.IsValid(res))
}

func TestFieldsAreNestedWithoutBacktracking(t *testing.T) {
	tree := zoneTree(t,
		Entry{Keys: []string{"V", "4", "1"}, Value: "SHORT_A"},
		Entry{Keys: []string{"V", "44", "2"}, Value: "LONG_A"},
	)

	// field 2 resolves to "44"; its sub-trie has no "1", and the shorter
	// "4" branch is not revisited
	assert.False(t, tree.Lookup("V", "441", "1").OK())
	assert.Equal(t, "LONG_A", tree.Lookup("V", "441", "2").Value)
	assert.Equal(t, "SHORT_A", tree.Lookup("V", "45", "1").Value)
}

func TestEmptyKeyIsCatchAll(t *testing.T) {
	tree := zoneTree(t,
		Entry{Keys: []string{"", "", ""}, Value: "DEFAULT"},
		Entry{Keys: []string{"V", "", "49"}, Value: "DE"},
	)

	assert.Equal(t, "DE", tree.Lookup("V", "31", "4930").Value)
	assert.Equal(t, "DEFAULT", tree.Lookup("S", "31", "4930").Value)
	assert.Equal(t, "DEFAULT", tree.Lookup("", "", "").Value)
}

func TestWithChildData(t *testing.T) {
	tree := zoneTree(t, Entry{Keys: []string{"V", "31", "31"}, Value: "NL", Attributes: []string{"Netherlands", "domestic"}})

	res := tree.BestMatchWithChildData("V", "3120", "3110")
	assert.Equal(t, []string{"NL", "Netherlands", "domestic"}, res)
	assert.True(t, match.IsValid(res))
}

func TestLastWriteWins(t *testing.T) {
	tree := zoneTree(t,
		Entry{Keys: []string{"V", "1", "1"}, Value: "OLD", Attributes: []string{"x"}},
		Entry{Keys: []string{"V", "1", "1"}, Value: "NEW"},
	)

	r := tree.Lookup("V", "1", "1")
	assert.Equal(t, "NEW", r.Value)
	assert.Empty(t, r.Attributes)
	assert.Equal(t, 1, tree.Len())
}

func TestEntryAttributesAreCopied(t *testing.T) {
	attrs := []string{"a", "b"}
	tree := zoneTree(t, Entry{Keys: []string{"V", "1", "1"}, Value: "Z", Attributes: attrs})
	attrs[0] = "changed"

	assert.Equal(t, []string{"a", "b"}, tree.Lookup("V", "1", "1").Attributes)
}

func TestWrongArity(t *testing.T) {
	_, err := Build(3, []Entry{{Keys: []string{"1", "2"}, Value: "x"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFieldCount)

	tree := zoneTree(t, Entry{Keys: []string{"1", "2", "3"}, Value: "x"})
	assert.False(t, tree.Lookup("1", "2").OK())
	assert.False(t, tree.Lookup("1", "2", "3", "4").OK())
}

func TestNilTree(t *testing.T) {
	var tree *Tree
	assert.False(t, tree.Lookup("1").OK())
}

func TestSingleField(t *testing.T) {
	tree, err := Build(1, []Entry{
		{Keys: []string{"00"}, Value: "INTL"},
		{Keys: []string{"0031"}, Value: "NL"},
	})
	require.NoError(t, err)

	assert.Equal(t, "NL", tree.Lookup("003120").Value)
	assert.Equal(t, "INTL", tree.Lookup("0049").Value)
	assert.False(t, tree.Lookup("49").OK())
}

func BenchmarkLookup(b *testing.B) {
	builder := NewBuilder(3)
	for i := 0; i < 10000; i++ {
		_ = builder.Add(Entry{
			Keys:  []string{"VOICE", "", fmt.Sprintf("00%d", i)},
			Value: fmt.Sprintf("Z%d", i),
		})
	}
	tree := builder.Build()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tree.Lookup("VOICE", "0031201234567", "00512345678")
	}
}
