package edk

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/outofforest/parallel"
	"github.com/outofforest/qa"
)

func TestSerialTaskRunnerRunsTasksInOrder(t *testing.T) {
	requireT := require.New(t)

	ctx := qa.NewContext(t)
	group := qa.NewGroup(ctx, t)

	runner := NewSerialTaskRunner()
	var order []int
	for i := range 100 {
		requireT.True(runner.PostTask(func() {
			order = append(order, i)
		}))
	}

	group.Spawn("runner", parallel.Fail, runner.Run)

	result, ok := call(runner, func() int {
		return len(order)
	})
	requireT.True(ok)
	requireT.Equal(100, result)

	for i, v := range order {
		requireT.Equal(i, v)
	}

	group.Exit(nil)
	requireT.NoError(group.Wait())
}

func TestSerialTaskRunnerRejectsTasksAfterStop(t *testing.T) {
	requireT := require.New(t)

	ctx, cancel := context.WithCancel(qa.NewContext(t))

	runner := NewSerialTaskRunner()
	var executed bool
	requireT.True(runner.PostTask(func() {
		executed = true
	}))

	cancel()
	requireT.ErrorIs(runner.Run(ctx), context.Canceled)
	requireT.True(executed)

	requireT.False(runner.PostTask(func() {}))
	_, ok := call(runner, func() struct{} {
		return struct{}{}
	})
	requireT.False(ok)
}

func TestPostOrRun(t *testing.T) {
	requireT := require.New(t)

	var executed bool
	postOrRun(nil, func() {
		executed = true
	})
	requireT.True(executed)

	runner := NewSerialTaskRunner()
	executed = false
	postOrRun(runner, func() {
		executed = true
	})
	requireT.False(executed)
}
