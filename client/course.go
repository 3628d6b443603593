package client

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"

	"github.com/pkg/errors"

	"github.com/clonecademy/clonecademy/core"
)

// ErrSuperseded is returned by Load when a newer load was started before this one settled.
var ErrSuperseded = errors.New("load superseded by a newer one")

type (
	CourseID   string
	QuestionID int64
)

type Question struct {
	ID    QuestionID `json:"id"`
	Title string     `json:"title"`
	Type  string     `json:"type"`
}

type Module struct {
	Name      string     `json:"name"`
	Questions []Question `json:"question"`
}

type Course struct {
	ID      CourseID
	Name    string
	Modules []Module
	Solved  map[QuestionID]struct{}
}

// IsSolved reports whether the question id is in the solved set.
func (c *Course) IsSolved(id QuestionID) bool {
	_, ok := c.Solved[id]
	return ok
}

// Completion tells whether the last question of the last module is solved.
// It is Unknown when there is no such question.
func (c *Course) Completion() Completion {
	if len(c.Modules) == 0 {
		return Unknown
	}
	last := c.Modules[len(c.Modules)-1]
	if len(last.Questions) == 0 {
		return Unknown
	}
	if c.IsSolved(last.Questions[len(last.Questions)-1].ID) {
		return Completed
	}
	return Incomplete
}

type Completion int

const (
	Unknown Completion = iota
	Completed
	Incomplete
)

func (c Completion) String() string {
	switch c {
	case Completed:
		return "completed"
	case Incomplete:
		return "incomplete"
	default:
		return "unknown"
	}
}

// CourseViewState is what a course page renders.
type CourseViewState struct {
	Course     *Course
	Completion Completion
	Loading    bool
	Err        error
}

// CourseView holds the state of one course page and loads it from the API.
// Only the newest load may write state; older results are dropped.
type CourseView struct {
	srv    Getter
	logger core.Logger

	// OnChange receives every new state in order. It must not call Load.
	OnChange func(CourseViewState)

	mu    sync.Mutex
	pubMu sync.Mutex
	seq   uint64
	state CourseViewState
}

func NewCourseView(srv Getter, logger core.Logger) *CourseView {
	if logger == nil {
		logger = core.NopLogger()
	}
	return &CourseView{srv: srv, logger: logger}
}

// State returns a snapshot of the current state.
func (v *CourseView) State() CourseViewState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Load fetches course id and, unless superseded meanwhile, replaces the state with the result.
func (v *CourseView) Load(ctx context.Context, id CourseID) error {
	var seq uint64
	v.apply(func() bool {
		v.seq++
		seq = v.seq
		v.state.Loading = true
		return true
	})

	course, err := v.fetch(ctx, id)

	superseded := false
	v.apply(func() bool {
		if seq != v.seq {
			superseded = true
			return false
		}
		if err != nil {
			v.state = CourseViewState{Err: err}
		} else {
			v.state = CourseViewState{Course: course, Completion: course.Completion()}
		}
		return true
	})
	if superseded {
		v.logger.Debug("discarding superseded course load", map[string]interface{}{"course": id})
		return ErrSuperseded
	}
	return err
}

// apply runs mutate under mu and hands the resulting state to OnChange when mutate reports a change.
// pubMu is always taken before mu, and mu is released before OnChange runs, so OnChange may call State.
func (v *CourseView) apply(mutate func() bool) {
	v.pubMu.Lock()
	defer v.pubMu.Unlock()

	v.mu.Lock()
	changed := mutate()
	st := v.state
	v.mu.Unlock()

	if changed && v.OnChange != nil {
		v.OnChange(st)
	}
}

type coursePayload struct {
	Name    string       `json:"name"`
	Modules []Module     `json:"modules"`
	Solved  []QuestionID `json:"solved"`
}

func (v *CourseView) fetch(ctx context.Context, id CourseID) (*Course, error) {
	var raw json.RawMessage
	if err := v.srv.Get(ctx, "courses/"+url.PathEscape(string(id))+"/", true, &raw); err != nil {
		return nil, errors.Wrap(err, "fetching course")
	}
	if err := validatePayload(coursePayloadSchema, raw); err != nil {
		return nil, errors.Wrap(err, "validating course")
	}
	var p coursePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errors.Wrap(ErrMalformedPayload, err.Error())
	}

	c := &Course{
		ID:      id,
		Name:    p.Name,
		Modules: p.Modules,
		Solved:  make(map[QuestionID]struct{}, len(p.Solved)),
	}
	for _, qid := range p.Solved {
		c.Solved[qid] = struct{}{}
	}
	return c, nil
}

// Listen reloads the view each time src navigates to a course.
func (v *CourseView) Listen(ctx context.Context, src *ParamSource) *Subscription {
	return Listen(ctx, src, DefaultParamKey, func(ctx context.Context, id string) error {
		return v.Load(ctx, CourseID(id))
	})
}
