// internal/pkg/async/pool.go
package async

import (
	"context"
	"sync"
)

type Task[T any] struct {
	Name    string
	Execute func(ctx context.Context) (T, error)
}

type Result[T any] struct {
	Name string
	Data T
	Err  error
}

type Pool[T any] struct {
	workerCount int
}

func NewPool[T any](workerCount int) *Pool[T] {
	if workerCount < 1 {
		workerCount = 1
	}
	return &Pool[T]{workerCount: workerCount}
}

func (p *Pool[T]) worker(ctx context.Context, wg *sync.WaitGroup, tasks <-chan Task[T], results chan<- Result[T]) {
	defer wg.Done()
	for {
		select {
		case task, ok := <-tasks:
			if !ok {
				return
			}
			data, err := task.Execute(ctx)
			select {
			case results <- Result[T]{Name: task.Name, Data: data, Err: err}:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// Execute runs tasks on the pool's workers and returns their results keyed
// by task name. Tasks that had not finished when ctx ended are missing.
func (p *Pool[T]) Execute(ctx context.Context, tasks []Task[T]) map[string]Result[T] {
	var wg sync.WaitGroup
	results := make(map[string]Result[T], len(tasks))
	taskCh := make(chan Task[T])
	resultCh := make(chan Result[T], len(tasks))

	// Start workers
	for i := 0; i < p.workerCount; i++ {
		wg.Add(1)
		go p.worker(ctx, &wg, taskCh, resultCh)
	}

	// Send tasks
	go func() {
		defer close(taskCh)
		for _, task := range tasks {
			select {
			case taskCh <- task:
			case <-ctx.Done():
				return
			}
		}
	}()

	// Collect results
	for i := 0; i < len(tasks); i++ {
		select {
		case result := <-resultCh:
			results[result.Name] = result
		case <-ctx.Done():
			wg.Wait()
			return results
		}
	}

	wg.Wait()
	return results
}
