package stage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gurukamath/silkworm/libs/log"
	"github.com/gurukamath/silkworm/types"
)

var errUnwindBoom = errors.New("unwind boom")

type fakeStage struct {
	name        string
	forwardRes  []Result // consumed one per Forward call, last one repeats
	forwardCall int
	unwound     bool
	unwindErr   error
	unwindRes   Result
	unwindLog   *[]string // if set, UnwindTo appends name in call order
}

func (f *fakeStage) Name() string { return f.name }

func (f *fakeStage) Forward(ctx context.Context, firstSync bool) (Result, error) {
	idx := f.forwardCall
	if idx >= len(f.forwardRes) {
		idx = len(f.forwardRes) - 1
	}
	f.forwardCall++
	return f.forwardRes[idx], nil
}

func (f *fakeStage) UnwindTo(ctx context.Context, target types.BlockNum, badBlock types.Hash) (Result, error) {
	f.unwound = true
	if f.unwindLog != nil {
		*f.unwindLog = append(*f.unwindLog, f.name)
	}
	if f.unwindErr != nil {
		return Result{Status: Error}, f.unwindErr
	}
	return f.unwindRes, nil
}

func TestForwardAllStopsAtFirstUnwindNeeded(t *testing.T) {
	a := &fakeStage{name: "a", forwardRes: []Result{{Status: Done}}}
	b := &fakeStage{name: "b", forwardRes: []Result{{Status: UnwindNeeded, UnwindPoint: 5}}}
	c := &fakeStage{name: "c", forwardRes: []Result{{Status: Done}}}
	sl := New(log.NewNopLogger(), a, b, c)

	res, lastIdx, err := sl.forwardAll(context.Background(), true)
	require.NoError(t, err)
	require.Equal(t, UnwindNeeded, res.Status)
	require.Equal(t, 1, lastIdx)
	require.Equal(t, 0, c.forwardCall) // c never ran
}

func TestUnwindAllSweepsInclusiveReverseOrder(t *testing.T) {
	var order []string
	a := &fakeStage{name: "a", unwindRes: Result{Status: Done}, unwindLog: &order}
	b := &fakeStage{name: "b", unwindRes: Result{Status: Done}, unwindLog: &order}
	c := &fakeStage{name: "c", unwindRes: Result{Status: Done}, unwindLog: &order}
	sl := New(log.NewNopLogger(), a, b, c)

	_, err := sl.unwindAll(context.Background(), 2, 1, types.ZeroHash)
	require.NoError(t, err)
	require.True(t, a.unwound)
	require.True(t, b.unwound)
	require.True(t, c.unwound)
	require.Equal(t, []string{"c", "b", "a"}, order)
}

func TestUnwindAllStopsAtLastIdxNotFullStageList(t *testing.T) {
	a := &fakeStage{name: "a", unwindRes: Result{Status: Done}}
	b := &fakeStage{name: "b", unwindRes: Result{Status: Done}}
	c := &fakeStage{name: "c", unwindRes: Result{Status: Done}}
	sl := New(log.NewNopLogger(), a, b, c)

	_, err := sl.unwindAll(context.Background(), 1, 0, types.ZeroHash)
	require.NoError(t, err)
	require.True(t, a.unwound)
	require.True(t, b.unwound)
	require.False(t, c.unwound) // outside lastIdx, never touched
}

func TestUnwindAllFailureIsFatal(t *testing.T) {
	a := &fakeStage{name: "a"}
	b := &fakeStage{name: "b", unwindErr: errUnwindBoom}
	sl := New(log.NewNopLogger(), a, b)

	_, err := sl.unwindAll(context.Background(), 1, 0, types.ZeroHash)
	require.Error(t, err)
}

func TestRunStopsWhenStoppedReportsTrue(t *testing.T) {
	a := &fakeStage{name: "a", forwardRes: []Result{{Status: Done}}}
	sl := New(log.NewNopLogger(), a)

	err := sl.Run(context.Background(), func() bool { return true })
	require.NoError(t, err)
}

func TestRunUnwindsThenContinuesAfterNeeded(t *testing.T) {
	calls := 0
	a := &fakeStage{
		name: "a",
		forwardRes: []Result{
			{Status: UnwindNeeded, UnwindPoint: 1},
			{Status: Done},
		},
		unwindRes: Result{Status: Done},
	}
	sl := New(log.NewNopLogger(), a)

	err := sl.Run(context.Background(), func() bool {
		calls++
		return calls > 2
	})
	require.NoError(t, err)
	require.True(t, a.unwound)
}
