package course

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testCourse() Course {
	return Course{
		ID:   1,
		Name: "Cloning 101",
		Modules: []Module{
			{ID: 10, Questions: []Question{{ID: 100}, {ID: 101}}},
			{ID: 11},
			{ID: 12, Questions: []Question{{ID: 120}}},
		},
	}
}

func solvedSet(ids ...int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func TestQuestion_Evaluate(t *testing.T) {
	mc := Question{
		Type: TypeMultipleChoice,
		Answers: []Answer{
			{ID: 1, IsCorrect: true},
			{ID: 2},
			{ID: 3, IsCorrect: true},
		},
	}
	tests := []struct {
		name    string
		q       Question
		answers []int64
		want    bool
	}{
		{name: "exact answers", q: mc, answers: []int64{3, 1}, want: true},
		{name: "duplicates ignored", q: mc, answers: []int64{1, 3, 3}, want: true},
		{name: "missing answer", q: mc, answers: []int64{1}},
		{name: "extra answer", q: mc, answers: []int64{1, 2, 3}},
		{name: "no answer", q: mc},
		{name: "no correct answer", q: Question{Type: TypeMultipleChoice, Answers: []Answer{{ID: 1}}}, answers: []int64{1}},
		{name: "info text", q: Question{Type: TypeInfoText}, want: true},
		{name: "info youtube", q: Question{Type: TypeInfoYoutube}, answers: []int64{42}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.q.Evaluate(tt.answers))
		})
	}
}

func TestYoutubeVideoID(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{url: "https://www.youtube.com/watch?v=dQw4w9WgXcQ", want: "dQw4w9WgXcQ"},
		{url: "http://youtube.com/embed/dQw4w9WgXcQ", want: "dQw4w9WgXcQ"},
		{url: "https://youtu.be/dQw4w9WgXcQ", want: "dQw4w9WgXcQ"},
		{url: " dQw4w9WgXcQ ", want: "dQw4w9WgXcQ"},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, YoutubeVideoID(tt.url))
		})
	}
}

func TestCourse_Navigation(t *testing.T) {
	c := testCourse()

	next, ok := c.Next(Position{Module: 1, Question: 1})
	assert.True(t, ok)
	assert.Equal(t, Position{Module: 1, Question: 2}, next)

	// empty modules are skipped
	next, ok = c.Next(Position{Module: 1, Question: 2})
	assert.True(t, ok)
	assert.Equal(t, Position{Module: 3, Question: 1}, next)

	_, ok = c.Next(Position{Module: 3, Question: 1})
	assert.False(t, ok)

	prev, ok := c.Previous(Position{Module: 3, Question: 1})
	assert.True(t, ok)
	assert.Equal(t, Position{Module: 1, Question: 2}, prev)

	_, ok = c.Previous(Position{Module: 1, Question: 1})
	assert.False(t, ok)

	_, _, ok = c.At(Position{Module: 2, Question: 1})
	assert.False(t, ok)
	_, q, ok := c.At(Position{Module: 3, Question: 1})
	assert.True(t, ok)
	assert.Equal(t, int64(120), q.ID)

	assert.Equal(t, []int64{100, 101, 120}, c.QuestionIDs())
}

func TestCourse_Progress(t *testing.T) {
	c := testCourse()

	tests := []struct {
		name          string
		course        Course
		solved        map[int64]struct{}
		wantCompleted bool
		wantNext      Position
		wantNextOK    bool
	}{
		{name: "nothing solved", course: c, solved: solvedSet(), wantNext: Position{1, 1}, wantNextOK: true},
		{name: "partly solved", course: c, solved: solvedSet(100), wantNext: Position{1, 2}, wantNextOK: true},
		{name: "only last solved", course: c, solved: solvedSet(120), wantCompleted: true, wantNext: Position{1, 1}, wantNextOK: true},
		{name: "all solved", course: c, solved: solvedSet(100, 101, 120), wantCompleted: true},
		{name: "no modules", course: Course{}, solved: solvedSet(1)},
		{
			name:       "empty last module",
			course:     Course{Modules: []Module{{Questions: []Question{{ID: 1}}}, {}}},
			solved:     solvedSet(),
			wantNext:   Position{1, 1},
			wantNextOK: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantCompleted, tt.course.IsCompleted(tt.solved))
			next, ok := tt.course.FirstUnsolved(tt.solved)
			assert.Equal(t, tt.wantNextOK, ok)
			assert.Equal(t, tt.wantNext, next)
		})
	}
}
