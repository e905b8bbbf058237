package pipeline

import (
	"sync"

	"github.com/pkg/errors"
)

var (
	ErrPipelineMustBeSet    = errors.New("pipeline must be set")
	ErrInputMustBeSet       = errors.New("input must be set")
	ErrMergerInputs         = errors.New("merger needs at least one input")
	ErrResultStoreMustBeSet = errors.New("result store must be set")
	ErrStepExists           = errors.New("step already exists")
	ErrStepNotFound         = errors.New("step not found")
	ErrEdgeExists           = errors.New("steps are already linked")
	ErrCycle                = errors.New("dependency creates a cycle")
	ErrResultNotFound       = errors.New("step result not found")
)

type errorChans struct {
	mu   sync.Mutex
	list []*errorChan
}

func (ec *errorChans) add(errChan *errorChan) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.list = append(ec.list, errChan)
}

// open registers the error channel of step. The step sends at most one error, then closes it.
func (ec *errorChans) open(step string) chan<- error {
	c := make(chan error, 1)
	ec.add(newErrorChan(step, c))

	return c
}

// errorChan carries the error of one step, decorated with the step name when merged.
type errorChan struct {
	c    <-chan error
	name string
}

func newErrorChan(name string, c <-chan error) *errorChan {
	return &errorChan{
		c:    c,
		name: name,
	}
}

// mergeErrors merges multiple channels of errors.
// Based on https://blog.golang.org/pipelines.
func mergeErrors(cs ...*errorChan) <-chan error {
	var wg sync.WaitGroup
	// The output channel can hold one error per step, so senders never block even if
	// waitForPipeline returns early.
	out := make(chan error, len(cs))

	output := func(c *errorChan) {
		defer wg.Done()
		if c.c == nil {
			return
		}
		for n := range c.c {
			out <- errors.Wrap(n, c.name)
		}
	}
	wg.Add(len(cs))
	for _, c := range cs {
		go output(c)
	}

	// Close out once all the output goroutines are done. This must start after the wg.Add call.
	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}
