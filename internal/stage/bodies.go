package stage

import (
	"context"
	"fmt"

	"github.com/gurukamath/silkworm/internal/bodysequence"
	"github.com/gurukamath/silkworm/internal/store"
	"github.com/gurukamath/silkworm/libs/log"
	"github.com/gurukamath/silkworm/types"
)

// BodiesStage pulls matched bodies from BodySequence and writes them keyed
// by header hash, advancing the bodies watermark (spec.md §4.5).
type BodiesStage struct {
	db     store.ReadWriteAccess
	bodies *bodysequence.BodySequence
	logger log.Logger
}

// NewBodiesStage returns a BodiesStage writing through db and withdrawing
// matched bodies from bodies.
func NewBodiesStage(db store.ReadWriteAccess, bodies *bodysequence.BodySequence, logger log.Logger) *BodiesStage {
	return &BodiesStage{db: db, bodies: bodies, logger: logger}
}

func (s *BodiesStage) Name() string { return "Bodies" }

// Forward withdraws every matched body and commits it in one batch, keyed
// by header hash. A header BodySequence gave up matching (no peer's reply
// ever produced a body agreeing with its roots) signals UnwindNeeded instead
// of being written (spec.md §4.5, §8 S4).
func (s *BodiesStage) Forward(ctx context.Context, firstSync bool) (Result, error) {
	// Bad blocks take priority: BodySequence.OnBodies already declared this
	// header unsatisfiable by any peer, so there is nothing to gain by
	// committing the rest of the ready batch before unwinding past it.
	if bad := s.bodies.WithdrawBad(); len(bad) > 0 {
		hash := bad[0]
		target := types.BlockNum(0)
		if header, ok := s.db.GetHeader(hash); ok && header.Number > 0 {
			target = header.Number - 1
		}
		s.logger.Error("bodies stage: declaring bad block", "hash", hash, "unwind_point", target)
		return Result{Status: UnwindNeeded, UnwindPoint: target, BadBlock: hash}, nil
	}

	matched := s.bodies.WithdrawReady()
	if len(matched) == 0 {
		return Result{Status: Done}, nil
	}

	batch := make(map[types.Hash]*types.Body, len(matched))
	highest := s.db.BodiesHeight()

	for _, m := range matched {
		header, ok := s.db.GetHeader(m.Hash)
		if !ok {
			// Header not yet committed by HeadersStage; hold the body for
			// a later pass by leaving it out of this batch.
			continue
		}
		// Defense in depth: OnBodies already matches by recomputed root
		// before a body reaches the ready set, so this should be
		// unreachable in practice. Guards persistence against a future
		// matching bug rather than being the primary detection path.
		ok, err := m.Body.MatchesHeader(header)
		if err != nil {
			return Result{Status: Error}, fmt.Errorf("bodies stage: root check: %w", err)
		}
		if !ok {
			target := types.BlockNum(0)
			if header.Number > 0 {
				target = header.Number - 1
			}
			return Result{Status: UnwindNeeded, UnwindPoint: target, BadBlock: m.Hash}, nil
		}
		batch[m.Hash] = m.Body
		if header.Number > highest {
			highest = header.Number
		}
	}

	if len(batch) == 0 {
		return Result{Status: Done}, nil
	}

	if err := s.db.CommitBodies(batch, highest); err != nil {
		return Result{Status: Error}, fmt.Errorf("bodies stage: commit batch: %w", err)
	}

	s.logger.Debug("bodies stage: committed batch", "count", len(batch), "height", highest)
	return Result{Status: Done}, nil
}

// UnwindTo resets the bodies watermark to target; body records themselves
// are left in place, same rationale as Store.UnwindHeaders.
func (s *BodiesStage) UnwindTo(ctx context.Context, target types.BlockNum, badBlock types.Hash) (Result, error) {
	if err := s.db.UnwindBodies(target + 1); err != nil {
		return Result{Status: Error}, fmt.Errorf("bodies stage: unwind: %w", err)
	}
	s.logger.Info("bodies stage: unwound", "target", target, "bad_block", badBlock)
	return Result{Status: Done}, nil
}
