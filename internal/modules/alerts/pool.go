package alerts

import (
	"context"
	"sync"
)

// workerPool runs rule evaluations on a fixed number of goroutines.
type workerPool struct {
	numWorkers int
}

func newWorkerPool(numWorkers int) *workerPool {
	if numWorkers <= 0 {
		numWorkers = 4
	}
	return &workerPool{numWorkers: numWorkers}
}

type ruleJob struct {
	index int
	rule  Rule
}

type ruleResultItem struct {
	index  int
	result RuleResult
}

// run evaluates rules in parallel, returning results in input order.
// Once ctx is done no further rules are dispatched; jobs already handed to a worker finish.
// The second return value counts rules that were never dispatched.
func (wp *workerPool) run(ctx context.Context, rules []Rule, fn func(Rule) RuleResult) ([]RuleResult, int) {
	if len(rules) == 0 {
		return []RuleResult{}, 0
	}

	jobs := make(chan ruleJob)
	results := make(chan ruleResultItem, len(rules))

	numActualWorkers := wp.numWorkers
	if len(rules) < numActualWorkers {
		numActualWorkers = len(rules)
	}

	var wg sync.WaitGroup
	for i := 0; i < numActualWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				results <- ruleResultItem{index: job.index, result: fn(job.rule)}
			}
		}()
	}

	dispatched := 0
dispatch:
	for idx, rule := range rules {
		select {
		case <-ctx.Done():
			break dispatch
		default:
		}
		select {
		case jobs <- ruleJob{index: idx, rule: rule}:
			dispatched++
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	collected := make([]*RuleResult, len(rules))
	for item := range results {
		r := item.result
		collected[item.index] = &r
	}

	out := make([]RuleResult, 0, dispatched)
	for _, r := range collected {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, len(rules) - dispatched
}

// keyedMutex serializes work per key.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refLock)}
}

// Lock blocks until key is free and returns the unlock func.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
