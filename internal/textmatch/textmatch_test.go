package textmatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJaccardIdenticalTexts(t *testing.T) {
	text := "deploying the service with docker compose"
	assert.Equal(t, 1.0, Jaccard(text, text))
}

func TestJaccardDisjointTexts(t *testing.T) {
	// No shared tokens longer than two characters.
	assert.Equal(t, 0.0, Jaccard("alpha bravo charlie", "delta echo foxtrot"))
}

func TestJaccardEmptyEitherSide(t *testing.T) {
	assert.Equal(t, 0.0, Jaccard("", "some words here"))
	assert.Equal(t, 0.0, Jaccard("some words here", ""))
	assert.Equal(t, 0.0, Jaccard("", ""))
}

func TestJaccardShortTokensIgnored(t *testing.T) {
	// "a", "of", "is" fall below the length cutoff on both sides, so the
	// comparison is over {cat} vs {dog}.
	assert.Equal(t, 0.0, Jaccard("a of is cat", "a of is dog"))
}

func TestJaccardCaseInsensitive(t *testing.T) {
	assert.Equal(t, 1.0, Jaccard("Kubernetes Cluster", "kubernetes cluster"))
}

func TestJaccardPartialOverlap(t *testing.T) {
	// {red, green} vs {green, blue}: intersection 1, union 3.
	assert.InDelta(t, 1.0/3.0, Jaccard("red green", "green blue"), 1e-9)
}

func TestTokenizeStripsPunctuation(t *testing.T) {
	tokens := Tokenize("Hello, world! (testing)")
	assert.Contains(t, tokens, "hello")
	assert.Contains(t, tokens, "world")
	assert.Contains(t, tokens, "testing")
}

func TestIntersectionSorted(t *testing.T) {
	shared := Intersection("zebra apple mango", "mango zebra kiwi")
	assert.Equal(t, []string{"mango", "zebra"}, shared)
}
