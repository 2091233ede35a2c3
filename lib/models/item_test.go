package models

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompareIDs(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"100", "101", -1},
		{"102", "102", 0},
		{"99", "100", -1},
		{"1790000000000000002", "1790000000000000001", 1},
		{"0010", "9", 1},
		{"abc", "abd", -1},
		{"b", "a", 1},
		{"10", "1a", -1},
		{"2", "1a", -1},
		{"1a", "999", 1},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, CompareIDs(c.a, c.b), "CompareIDs(%q, %q)", c.a, c.b)
	}
}

func TestCompareIDsIsTransitiveOnMixedIDs(t *testing.T) {
	ids := []string{"2", "10", "1a", "b", "007", "100", "a1"}
	for _, a := range ids {
		for _, b := range ids {
			assert.Equal(t, -CompareIDs(a, b), CompareIDs(b, a), "antisymmetry %q %q", a, b)
			for _, c := range ids {
				if CompareIDs(a, b) < 0 && CompareIDs(b, c) < 0 {
					assert.Negative(t, CompareIDs(a, c), "%q < %q < %q", a, b, c)
				}
			}
		}
	}

	sorted := append([]string(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return CompareIDs(sorted[i], sorted[j]) < 0 })
	assert.Equal(t, []string{"2", "007", "10", "100", "1a", "a1", "b"}, sorted)
}

func TestNormalizeAndValidateAccount(t *testing.T) {
	assert.Equal(t, "jack_dorsey", NormalizeAccount("  @Jack_Dorsey "))
	assert.True(t, ValidAccount("jack_dorsey"))
	assert.True(t, ValidAccount("A1"))
	assert.False(t, ValidAccount(""))
	assert.False(t, ValidAccount("sixteen_chars_xx"))
	assert.False(t, ValidAccount("has-dash"))
}

func TestAccountListScan(t *testing.T) {
	var l AccountList
	assert.NoError(t, l.Scan("alice, bob,,carol"))
	assert.Equal(t, AccountList{"alice", "bob", "carol"}, l)

	assert.NoError(t, l.Scan([]byte("")))
	assert.Equal(t, AccountList{}, l)

	v, err := AccountList{"a", "b"}.Value()
	assert.NoError(t, err)
	assert.Equal(t, "a,b", v)
}
