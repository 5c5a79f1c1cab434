package stage

import (
	"context"
	"fmt"
	"time"

	"github.com/gurukamath/silkworm/internal/headerchain"
	"github.com/gurukamath/silkworm/internal/store"
	"github.com/gurukamath/silkworm/libs/log"
	"github.com/gurukamath/silkworm/types"
)

// progressLogInterval is how often Forward reports its write throughput,
// matching the 30s cadence of the downloader this spec was distilled from.
const progressLogInterval = 30 * time.Second

// HeadersStage pulls contiguous header runs from HeaderChain, verifies
// parent linkage against the DB tip, and writes them in batches bounded by
// batchSize (spec.md §4.5).
type HeadersStage struct {
	db        store.ReadWriteAccess
	headers   *headerchain.HeaderChain
	logger    log.Logger
	batchSize int
	progress  *progressMeter
}

// NewHeadersStage returns a HeadersStage writing through db and withdrawing
// runs from headers. batchSize bounds how many headers one commit touches.
func NewHeadersStage(db store.ReadWriteAccess, headers *headerchain.HeaderChain, logger log.Logger, batchSize int) *HeadersStage {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &HeadersStage{
		db:        db,
		headers:   headers,
		logger:    logger,
		batchSize: batchSize,
		progress:  newProgressMeter(db.HeadersHeight(), progressLogInterval),
	}
}

func (s *HeadersStage) Name() string { return "Headers" }

// Forward withdraws every ready run from HeaderChain and commits it in
// batches. A run whose first header doesn't extend the current DB tip
// signals UnwindNeeded rather than being written (spec.md §4.5).
func (s *HeadersStage) Forward(ctx context.Context, firstSync bool) (Result, error) {
	run := s.headers.WithdrawReady()
	if len(run) == 0 {
		return Result{Status: Done}, nil
	}

	if tipHeight := s.db.HeadersHeight(); tipHeight > 0 {
		tip, ok := s.db.GetHeaderByNumber(tipHeight)
		if ok && run[0].ParentHash != tip.Hash() {
			return Result{
				Status:      UnwindNeeded,
				UnwindPoint: tipHeight - 1,
				BadBlock:    run[0].Hash(),
			}, nil
		}
	}

	for start := 0; start < len(run); start += s.batchSize {
		end := start + s.batchSize
		if end > len(run) {
			end = len(run)
		}
		if err := s.db.CommitHeaders(run[start:end]); err != nil {
			return Result{Status: Error}, fmt.Errorf("headers stage: commit batch: %w", err)
		}
	}

	s.logger.Debug("headers stage: committed run", "count", len(run), "head", run[len(run)-1].Number)

	if delta, perSec, ok := s.progress.report(time.Now(), run[len(run)-1].Number); ok {
		s.logger.Info("headers stage: progress", "height", run[len(run)-1].Number, "delta", delta, "headers_per_sec", perSec)
	}

	return Result{Status: Done}, nil
}

// UnwindTo rolls the DB canonical chain and watermark back to target and
// tells HeaderChain to drop everything above it (spec.md §4.5, §4.6).
func (s *HeadersStage) UnwindTo(ctx context.Context, target types.BlockNum, badBlock types.Hash) (Result, error) {
	if err := s.db.UnwindHeaders(target + 1); err != nil {
		return Result{Status: Error}, fmt.Errorf("headers stage: unwind: %w", err)
	}
	s.headers.Unwind(target)
	s.logger.Info("headers stage: unwound", "target", target, "bad_block", badBlock)
	return Result{Status: Done}, nil
}
