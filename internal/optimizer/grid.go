package optimizer

import (
	"math"

	"perp-strategy-lab/internal/domain"
)

// combination is one point of the parameter grid.
type combination struct {
	index  int
	params []domain.ParamValue
}

// gridSize returns the number of combinations of axes, saturating at MaxInt.
// No axes yield one empty combination.
func gridSize(axes []Axis) int {
	n := 1
	for _, a := range axes {
		if len(a.Values) > 0 && n > math.MaxInt/len(a.Values) {
			return math.MaxInt
		}
		n *= len(a.Values)
	}
	return n
}

// generate enumerates at most limit combinations depth-first in axis
// declaration order: the last axis varies fastest.
func generate(axes []Axis, limit int) []combination {
	out := make([]combination, 0, min(gridSize(axes), limit))
	current := make([]domain.ParamValue, 0, len(axes))

	var walk func(depth int)
	walk = func(depth int) {
		if len(out) >= limit {
			return
		}
		if depth == len(axes) {
			out = append(out, combination{
				index:  len(out),
				params: append([]domain.ParamValue(nil), current...),
			})
			return
		}
		a := axes[depth]
		for _, v := range a.Values {
			current = append(current, domain.ParamValue{Name: a.Param.String(), Value: v})
			walk(depth + 1)
			current = current[:len(current)-1]
		}
	}
	walk(0)
	return out
}
