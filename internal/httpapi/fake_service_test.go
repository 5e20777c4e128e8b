package httpapi

import (
	"sync"

	"llmserve/internal/scheduler"
	"llmserve/pkg/types"
)

// fakeService answers every request with a fixed token stream.
type fakeService struct {
	tokens    []string
	finishErr error
	submitErr error
	ready     bool
	hold      chan struct{}

	mu  sync.Mutex
	got []*scheduler.InferenceRequest
}

func (f *fakeService) Submit(req *scheduler.InferenceRequest) error {
	if f.submitErr != nil {
		return f.submitErr
	}
	f.mu.Lock()
	f.got = append(f.got, req)
	f.mu.Unlock()
	go func() {
		if f.hold != nil {
			<-f.hold
		}
		for _, tok := range f.tokens {
			_ = req.Sink.Send(scheduler.Result{Token: tok})
		}
		req.Sink.Finish(f.finishErr)
	}()
	return nil
}

func (f *fakeService) Status() types.StatusResponse {
	if f.ready {
		return types.StatusResponse{State: "ready"}
	}
	return types.StatusResponse{State: "loading"}
}

func (f *fakeService) Ready() bool { return f.ready }

func (f *fakeService) last() *scheduler.InferenceRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.got) == 0 {
		return nil
	}
	return f.got[len(f.got)-1]
}
