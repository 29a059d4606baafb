// Grid type classification.
//
// Scalar grids report their engine type name directly. Vector grids are
// split three ways by the is_color grid metadata hint: true reports
// TypeColor, false reports the raw vector type name, and a missing hint
// reports TypeUnknownVector. Files produced by other tools routinely lack
// the hint, so its absence is a classification result, not a failure.
package densevdb

import (
	"errors"
	"fmt"
)

// Classification labels.
const (
	TypeFloat         = "float"
	TypeInt32         = "int32"
	TypeVector        = "vec3s"
	TypeColor         = "vec3_color"
	TypeUnknownVector = "vec3_unknown"
)

// Classify returns the semantic type label of g. It fails only when the
// is_color hint is present with a non-bool shape.
func Classify(g *Grid) (string, error) {
	return classify(g.kind, &g.meta)
}

func classify(kind ValueKind, meta *Meta) (string, error) {
	switch kind {
	case KindFloat:
		return TypeFloat, nil
	case KindInt32:
		return TypeInt32, nil
	case KindVec3Float:
		isColor, err := meta.Bool(metaIsColor)
		switch {
		case errors.Is(err, ErrNotFound):
			return TypeUnknownVector, nil
		case err != nil:
			return "", err
		case isColor:
			return TypeColor, nil
		default:
			return TypeVector, nil
		}
	default:
		return "", fmt.Errorf("%w: value kind %v", ErrCorruptRecord, kind)
	}
}
