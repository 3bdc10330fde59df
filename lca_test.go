package hsm_test

import (
	"fmt"
	"slices"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	hsm "github.com/stateforward/go-hfsm"
)

const treeSize = 24

// randomModel grows a tree where state i+1 hangs off one of the states
// declared before it.
func randomModel(seeds []int) hsm.Model {
	children := map[int][]int{}
	for i, seed := range seeds {
		children[seed%(i+1)] = append(children[seed%(i+1)], i+1)
	}
	var build func(node int) hsm.Partial
	build = func(node int) hsm.Partial {
		var partials []hsm.Partial
		for _, child := range children[node] {
			partials = append(partials, build(child))
		}
		return hsm.State(fmt.Sprintf("s%d", node), partials...)
	}
	var partials []hsm.Partial
	for _, child := range children[0] {
		partials = append(partials, build(child))
	}
	return hsm.Define("root", partials...)
}

func TestTreeProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	seeds := gen.SliceOfN(treeSize, gen.IntRange(0, 1<<16))
	index := gen.IntRange(0, treeSize)

	properties.Property("LCA is a common ancestor", prop.ForAll(
		func(seeds []int, a, b int) bool {
			model := randomModel(seeds)
			lca := model.LCA(hsm.StateID(a), hsm.StateID(b))
			return slices.Contains(slices.Collect(model.PathToRoot(hsm.StateID(a))), lca) &&
				slices.Contains(slices.Collect(model.PathToRoot(hsm.StateID(b))), lca)
		},
		seeds, index, index,
	))

	properties.Property("LCA is the deepest common ancestor", prop.ForAll(
		func(seeds []int, a, b int) bool {
			model := randomModel(seeds)
			lca := model.LCA(hsm.StateID(a), hsm.StateID(b))
			ancestors := slices.Collect(model.PathToRoot(hsm.StateID(a)))
			for common := range model.PathToRoot(hsm.StateID(b)) {
				if slices.Contains(ancestors, common) && model.Depth(common) > model.Depth(lca) {
					return false
				}
			}
			return true
		},
		seeds, index, index,
	))

	properties.Property("LCA is symmetric and LCA(x, x) is x", prop.ForAll(
		func(seeds []int, a, b int) bool {
			model := randomModel(seeds)
			x, y := hsm.StateID(a), hsm.StateID(b)
			return model.LCA(x, y) == model.LCA(y, x) && model.LCA(x, x) == x
		},
		seeds, index, index,
	))

	properties.Property("PathToRoot has depth+1 states and ends at the root", prop.ForAll(
		func(seeds []int, a int) bool {
			model := randomModel(seeds)
			path := slices.Collect(model.PathToRoot(hsm.StateID(a)))
			again := slices.Collect(model.PathToRoot(hsm.StateID(a)))
			return len(path) == model.Depth(hsm.StateID(a))+1 &&
				path[0] == hsm.StateID(a) &&
				path[len(path)-1] == model.Root() &&
				slices.Equal(path, again)
		},
		seeds, index,
	))

	properties.TestingRun(t)
}

func TestLCAOfUnknownState(t *testing.T) {
	model := randomModel(make([]int, treeSize))
	if lca := model.LCA(hsm.StateID(treeSize+1), model.Root()); lca != hsm.None {
		t.Fatalf("expected None, got %d", lca)
	}
}
