package llm

import (
	"context"
	"sync"
)

// Static replays canned responses in order and repeats the last one once they run
// out. Used for tests and for running the service without a model provider.
type Static struct {
	mu        sync.Mutex
	responses []string
	next      int
	Err       error
	Requests  []Request
}

func NewStatic(responses ...string) *Static {
	return &Static{responses: responses}
}

func (s *Static) Generate(ctx context.Context, req Request) (Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Requests = append(s.Requests, req)

	if s.Err != nil {
		return Response{}, s.Err
	}
	if len(s.responses) == 0 {
		return Response{}, ErrEmptyResponse
	}

	text := s.responses[min(s.next, len(s.responses)-1)]
	s.next++

	return Response{Text: text, Model: req.Model, StopReason: "end_turn"}, nil
}

func (s *Static) LastRequest() (Request, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Requests) == 0 {
		return Request{}, false
	}
	return s.Requests[len(s.Requests)-1], true
}
