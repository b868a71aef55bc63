package match_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/macropower/decil/pkg/match"
	"github.com/macropower/decil/pkg/policy"
)

func TestBinding(t *testing.T) {
	t.Parallel()

	var b match.Binding

	assert.Equal(t, 0, b.Len())
	assert.True(t, b.CanAdd(1, policy.Name("a")))

	b1 := b.Add(1, policy.Name("a"))
	b2 := b1.Add(2, policy.NewConditionalType([]string{"x", "y"}, nil))

	assert.Equal(t, 0, b.Len())
	assert.Equal(t, 1, b1.Len())
	assert.Equal(t, 2, b2.Len())

	assert.True(t, b1.CanAdd(1, policy.Name("a")))
	assert.False(t, b1.CanAdd(1, policy.Name("b")))

	assert.Equal(t, []string{"a", "{ x y }", "$3"}, b2.Args(3))
	assert.NotEqual(t, b1.Key(), b2.Key())
	assert.Equal(t, b2.Key(), b1.Add(2, policy.NewConditionalType([]string{"y", "x"}, nil)).Key())
}
