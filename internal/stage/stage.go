// Package stage implements the forward/unwind contract HeadersStage and
// BodiesStage share, and the StageLoop that drives them (spec.md §4.5,
// §4.6).
package stage

import (
	"context"

	"github.com/gurukamath/silkworm/types"
)

// Status is the outcome of a single Forward or UnwindTo call.
type Status int

const (
	Unspecified Status = iota
	Done
	UnwindNeeded
	Error
)

func (s Status) String() string {
	switch s {
	case Done:
		return "Done"
	case UnwindNeeded:
		return "UnwindNeeded"
	case Error:
		return "Error"
	default:
		return "Unspecified"
	}
}

// Result is returned by every Forward/UnwindTo call. UnwindPoint and
// BadBlock are only meaningful when Status is UnwindNeeded.
type Result struct {
	Status      Status
	UnwindPoint types.BlockNum
	BadBlock    types.Hash
}

// Stage is the capability set spec.md §9 Design Notes call for: a name, a
// forward step, and an unwind-to step. HeadersStage and BodiesStage both
// implement it; StageLoop only knows about this interface.
type Stage interface {
	Name() string
	Forward(ctx context.Context, firstSync bool) (Result, error)
	UnwindTo(ctx context.Context, target types.BlockNum, badBlock types.Hash) (Result, error)
}
