package client

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// ErrModRequestUnavailable is returned by Send when a request cannot be made.
var ErrModRequestUnavailable = errors.New("moderator request not available")

// ModRequestState is what the moderator request page renders.
type ModRequestState struct {
	Available    bool
	Loading      bool
	Answer       map[string]string
	ErrorMessage string
}

// ModRequestForm lets a learner ask for moderator rights.
type ModRequestForm struct {
	srv API

	mu    sync.Mutex
	state ModRequestState
}

func NewModRequestForm(srv API) *ModRequestForm {
	return &ModRequestForm{srv: srv, state: ModRequestState{Loading: true}}
}

func (f *ModRequestForm) State() ModRequestState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Check asks the API whether a request may be sent.
func (f *ModRequestForm) Check(ctx context.Context) error {
	var status struct {
		RequestedMod bool `json:"requested_mod"`
	}
	err := f.srv.Get(ctx, "user/can_request_mod", true, &status)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.Loading = false
	if err != nil {
		f.state.Available = false
		return errors.Wrap(err, "checking moderator request")
	}
	f.state.Available = !status.RequestedMod
	return nil
}

// Send posts the request with reason.
func (f *ModRequestForm) Send(ctx context.Context, reason string) error {
	if !f.State().Available {
		return ErrModRequestUnavailable
	}

	answer := map[string]string{}
	err := f.srv.Post(ctx, "user/request_mod", map[string]string{"reason": reason}, &answer)

	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		var httpErr *HTTPError
		if errors.As(err, &httpErr) {
			f.state.ErrorMessage = httpErr.StatusText
		} else {
			f.state.ErrorMessage = err.Error()
		}
		return errors.Wrap(err, "sending moderator request")
	}
	f.state.Answer = answer
	f.state.Available = false
	f.state.ErrorMessage = ""
	return nil
}
