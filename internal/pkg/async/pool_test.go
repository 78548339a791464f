package async_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"funnelmetrics/internal/pkg/async"
)

func TestPoolExecute(t *testing.T) {
	pool := async.NewPool[int](2)
	boom := errors.New("boom")

	results := pool.Execute(context.Background(), []async.Task[int]{
		{Name: "one", Execute: func(context.Context) (int, error) { return 1, nil }},
		{Name: "two", Execute: func(context.Context) (int, error) { return 2, nil }},
		{Name: "fail", Execute: func(context.Context) (int, error) { return 0, boom }},
	})

	require.Len(t, results, 3)
	assert.Equal(t, 1, results["one"].Data)
	assert.Equal(t, 2, results["two"].Data)
	assert.ErrorIs(t, results["fail"].Err, boom)
}

func TestPoolRunsConcurrently(t *testing.T) {
	pool := async.NewPool[string](2)
	release := make(chan struct{})
	started := make(chan struct{}, 2)

	task := func(name string) async.Task[string] {
		return async.Task[string]{Name: name, Execute: func(ctx context.Context) (string, error) {
			started <- struct{}{}
			<-release
			return name, nil
		}}
	}

	done := make(chan map[string]async.Result[string])
	go func() {
		done <- pool.Execute(context.Background(), []async.Task[string]{task("current"), task("previous")})
	}()

	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case <-time.After(time.Second):
			t.Fatal("tasks did not start in parallel")
		}
	}
	close(release)

	results := <-done
	assert.Equal(t, "current", results["current"].Data)
	assert.Equal(t, "previous", results["previous"].Data)
}

func TestPoolStopsOnCancel(t *testing.T) {
	pool := async.NewPool[int](1)
	ctx, cancel := context.WithCancel(context.Background())

	results := pool.Execute(ctx, []async.Task[int]{
		{Name: "cancel", Execute: func(context.Context) (int, error) { cancel(); return 1, nil }},
		{Name: "never", Execute: func(ctx context.Context) (int, error) { <-ctx.Done(); return 0, ctx.Err() }},
	})
	_, ok := results["never"]
	assert.False(t, ok)
}
