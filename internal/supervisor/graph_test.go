package supervisor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func indexOf(order []string, name string) int {
	for i, n := range order {
		if n == name {
			return i
		}
	}
	return -1
}

func TestGraphOrderRespectsRequires(t *testing.T) {
	defs := []*ServiceDefinition{
		{Name: "web", Requires: []string{"database"}},
		{Name: "database"},
	}
	g := buildGraph(defs)
	order, err := g.order()
	require.NoError(t, err)
	assert.Less(t, indexOf(order, "database"), indexOf(order, "web"))
}

func TestGraphOrderRespectsBefore(t *testing.T) {
	defs := []*ServiceDefinition{
		{Name: "network"},
		{Name: "firewall", Before: []string{"network"}},
	}
	g := buildGraph(defs)
	order, err := g.order()
	require.NoError(t, err)
	assert.Less(t, indexOf(order, "firewall"), indexOf(order, "network"))
}

func TestGraphDetectsCycle(t *testing.T) {
	defs := []*ServiceDefinition{
		{Name: "a", Requires: []string{"b"}},
		{Name: "b", Requires: []string{"a"}},
	}
	g := buildGraph(defs)
	_, err := g.order()
	require.Error(t, err)
	var cycleErr *CircularDependencyError
	require.ErrorAs(t, err, &cycleErr)
}

func TestGraphUnknownDependencies(t *testing.T) {
	defs := []*ServiceDefinition{
		{Name: "web", Requires: []string{"ghost"}},
	}
	g := buildGraph(defs)
	unknown := g.unknownDependencies()
	assert.Equal(t, []string{"ghost"}, unknown["web"])
}
