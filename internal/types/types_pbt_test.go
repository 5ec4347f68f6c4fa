package types

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestWindowProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	// Property: the start of a non-empty window is always contained, the end never is
	properties.Property("half-open bounds", prop.ForAll(
		func(startOffset, length int64) bool {
			if length <= 0 {
				length = 1
			}
			w := Window{
				Start: base.Add(time.Duration(startOffset) * time.Minute),
				End:   base.Add(time.Duration(startOffset+length) * time.Minute),
			}
			return w.Contains(w.Start) && !w.Contains(w.End)
		},
		gen.Int64Range(-1_000_000, 1_000_000),
		gen.Int64Range(1, 1_000_000),
	))

	// Property: nothing outside [Start, End) is contained
	properties.Property("exterior points excluded", prop.ForAll(
		func(length, outside int64) bool {
			w := Window{Start: base, End: base.Add(time.Duration(length) * time.Minute)}
			before := w.Start.Add(-time.Duration(outside) * time.Minute)
			after := w.End.Add(time.Duration(outside) * time.Minute)
			return !w.Contains(before) && !w.Contains(after)
		},
		gen.Int64Range(1, 1_000_000),
		gen.Int64Range(1, 1_000_000),
	))

	properties.TestingRun(t)
}
