package stage

import (
	"context"
	"fmt"

	"github.com/gurukamath/silkworm/libs/log"
	"github.com/gurukamath/silkworm/types"
)

// StageLoop runs a fixed ordered list of stages forward, unwinding in
// reverse whenever one of them signals UnwindNeeded (spec.md §4.6).
type StageLoop struct {
	stages []Stage
	logger log.Logger
}

// New returns a StageLoop driving stages in the given order.
func New(logger log.Logger, stages ...Stage) *StageLoop {
	return &StageLoop{stages: stages, logger: logger}
}

// Run repeats forward_all/unwind_all until stopped reports true or a stage
// returns Error, at which point unwind_all's partial-unwind failure is
// fatal per spec.md §4.6.
func (sl *StageLoop) Run(ctx context.Context, stopped func() bool) error {
	firstSync := true
	for {
		if stopped() {
			return nil
		}

		result, lastIdx, err := sl.forwardAll(ctx, firstSync)
		if err != nil {
			return err
		}

		if result.Status == UnwindNeeded {
			result, err = sl.unwindAll(ctx, lastIdx, result.UnwindPoint, result.BadBlock)
			if err != nil {
				return err
			}
		}

		if result.Status == Error {
			return fmt.Errorf("stage loop: terminated with status %s", result.Status)
		}

		firstSync = false
	}
}

// forwardAll runs stages in index order, stopping at the first
// UnwindNeeded or Error (spec.md §4.6). It returns the index of the stage
// that produced the returned result, which unwind_all then starts from.
func (sl *StageLoop) forwardAll(ctx context.Context, firstSync bool) (Result, int, error) {
	var last Result
	for i, st := range sl.stages {
		res, err := st.Forward(ctx, firstSync)
		if err != nil {
			return Result{Status: Error}, i, fmt.Errorf("stage %s: forward: %w", st.Name(), err)
		}
		last = res
		if res.Status == UnwindNeeded || res.Status == Error {
			return res, i, nil
		}
	}
	return last, len(sl.stages) - 1, nil
}

// unwindAll runs stages in reverse from lastIdx down to and including 0.
// This inclusive sweep is deliberate: every stage up to and including
// lastIdx may have persisted data from the batch being unwound, so every
// one of them must roll back, not just the stages strictly above 0.
func (sl *StageLoop) unwindAll(ctx context.Context, lastIdx int, target types.BlockNum, badBlock types.Hash) (Result, error) {
	var final Result
	for i := lastIdx; i >= 0; i-- {
		st := sl.stages[i]
		res, err := st.UnwindTo(ctx, target, badBlock)
		if err != nil {
			return Result{Status: Error}, fmt.Errorf("stage %s: unwind: %w", st.Name(), err)
		}
		if res.Status == Error {
			return res, fmt.Errorf("stage %s: unwind reported Error, partial unwind is fatal", st.Name())
		}
		final = res
	}
	return final, nil
}
