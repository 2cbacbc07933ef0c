package merkle

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func leaves(n int) []Hash {
	out := make([]Hash, n)
	for i := range out {
		out[i] = HashLeaf([]byte(fmt.Sprintf("leaf-%d", i)))
	}
	return out
}

func TestBuildAndProve(t *testing.T) {
	for _, n := range []int{1, 2, 3, 5, 8, 13, 1000} {
		t.Run(fmt.Sprintf("%d leaves", n), func(t *testing.T) {
			tree := Build(leaves(n))
			require.Equal(t, n, tree.Size())
			for _, i := range []int{0, n / 2, n - 1} {
				p, err := tree.Prove(i)
				require.NoError(t, err)
				assert.True(t, VerifyInclusion(p))
				assert.Equal(t, tree.Root(), p.Root)
			}
		})
	}
}

func TestEmptyTree(t *testing.T) {
	tree := Build(nil)
	assert.Equal(t, Sentinel, tree.Root())
	_, err := tree.Prove(0)
	assert.ErrorIs(t, err, ErrLeafNotFound)
}

func TestAppendMatchesRebuild(t *testing.T) {
	all := leaves(11)
	tree := Build(all[:3])
	tree = tree.Append(all[3])
	tree = tree.Append(all[4:9]...)
	tree = tree.Append(all[9:]...)

	assert.Equal(t, Build(all).Root(), tree.Root())
	assert.Equal(t, 11, tree.Size())
}

func TestAppendDoesNotMutateOriginal(t *testing.T) {
	base := Build(leaves(3))
	root := base.Root()
	_ = base.Append(HashLeaf([]byte("new")))
	assert.Equal(t, root, base.Root())
	assert.Equal(t, 3, base.Size())
}

func TestVerifyInclusionFailsClosed(t *testing.T) {
	tree := Build(leaves(8))
	p, err := tree.Prove(3)
	require.NoError(t, err)

	t.Run("foreign leaf", func(t *testing.T) {
		bad := p
		bad.Leaf = HashLeaf([]byte("stranger"))
		assert.False(t, VerifyInclusion(bad))
	})

	t.Run("tampered sibling", func(t *testing.T) {
		bad := p
		bad.Siblings = append([]Hash(nil), p.Siblings...)
		bad.Siblings[1][0] ^= 0xff
		assert.False(t, VerifyInclusion(bad))
	})

	t.Run("length mismatch", func(t *testing.T) {
		bad := p
		bad.Positions = p.Positions[:1]
		assert.False(t, VerifyInclusion(bad))
	})

	t.Run("wrong root", func(t *testing.T) {
		bad := p
		bad.Root = Build(leaves(9)).Root()
		assert.False(t, VerifyInclusion(bad))
	})
}

func TestPairOrderingIsCanonical(t *testing.T) {
	a, b := HashLeaf([]byte("a")), HashLeaf([]byte("b"))
	assert.Equal(t, hashPair(a, b), hashPair(b, a))
	assert.Equal(t, Build([]Hash{a, b}).Root(), Build([]Hash{b, a}).Root())
}

func TestProofJSON(t *testing.T) {
	tree := Build(leaves(4))
	p, err := tree.ProveLeaf(tree.Leaf(2))
	require.NoError(t, err)

	raw, err := json.Marshal(p)
	require.NoError(t, err)
	var decoded Proof
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.True(t, VerifyInclusion(decoded))
}
