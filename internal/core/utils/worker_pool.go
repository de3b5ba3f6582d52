package utils

import "sync"

// MapInPool applies fn to every input using at most maxWorkers goroutines and
// returns the outputs in input order. fn must be safe for concurrent use.
func MapInPool[In any, Out any](inputs []In, maxWorkers int, fn func(In) Out) []Out {
	outputs := make([]Out, len(inputs))
	if len(inputs) == 0 {
		return outputs
	}

	workers := min(len(inputs), maxWorkers)
	if workers < 1 {
		workers = 1
	}

	indices := make(chan int, len(inputs))
	for i := range inputs {
		indices <- i
	}
	close(indices)

	wg := sync.WaitGroup{}
	wg.Add(workers)

	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()

			for i := range indices {
				outputs[i] = fn(inputs[i])
			}
		}()
	}

	wg.Wait()
	return outputs
}
