package course

import (
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/clonecademy/clonecademy/core"
)

// Question types
const (
	TypeMultipleChoice = "multiple_choice"
	TypeInfoText       = "info_text"
	TypeInfoYoutube    = "info_youtube"
)

// Difficulties
const (
	DifficultyEasy = iota
	DifficultyModerate
	DifficultyDifficult
	DifficultyExpert
)

// Languages
const (
	LanguageEnglish = "en"
	LanguageGerman  = "de"
)

var (
	QuestionTypes = []string{TypeMultipleChoice, TypeInfoText, TypeInfoYoutube}

	youtubeIDRegex = regexp.MustCompile(`(?:http(?:s)?)?://(?:www\.)?(?:youtu\.be|youtube\.com)?/(?:watch\?v=|embed/)?(.*)`)
)

// YoutubeVideoID reduces a YouTube URL to its video id. Anything that is not a URL is returned as is.
func YoutubeVideoID(url string) string {
	url = strings.TrimSpace(url)
	if m := youtubeIDRegex.FindStringSubmatch(url); len(m) == 2 && m[1] != "" {
		return m[1]
	}
	return url
}

type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Course struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	CategoryID     int64     `json:"category_id,omitempty"`
	Category       string    `json:"category"`
	Difficulty     int       `json:"difficulty"`
	Language       string    `json:"language"`
	ResponsibleMod string    `json:"responsible_mod"`
	IsVisible      bool      `json:"is_visible"`
	Modules        []Module  `json:"modules,omitempty"`
	CreatedAt      time.Time `json:"created_at"` // UTC
	UpdatedAt      time.Time `json:"updated_at"` // UTC
}

type Module struct {
	ID           int64      `json:"id"`
	CourseID     int64      `json:"-"`
	Name         string     `json:"name"`
	LearningText string     `json:"learning_text"`
	Order        int        `json:"order"`
	Questions    []Question `json:"questions"`
}

type Question struct {
	ID        int64    `json:"id"`
	ModuleID  int64    `json:"-"`
	Order     int      `json:"order"`
	Type      string   `json:"type"`
	Title     string   `json:"title"`
	Body      string   `json:"body"`
	Feedback  string   `json:"feedback"`
	TextField string   `json:"text_field,omitempty"` // info_text & info_youtube
	URL       string   `json:"url,omitempty"`        // info_youtube: video id
	Answers   []Answer `json:"answers,omitempty"`    // multiple_choice
}

type Answer struct {
	ID         int64  `json:"id"`
	QuestionID int64  `json:"-"`
	Text       string `json:"text"`
	IsCorrect  bool   `json:"is_correct"`
}

// Try is the record of one submitted answer.
type Try struct {
	ID         int64     `json:"id"`
	UserID     string    `json:"user_id"`
	QuestionID int64     `json:"question_id"`
	Answer     string    `json:"answer"`
	Solved     bool      `json:"solved"`
	Date       time.Time `json:"date"` // UTC
}

// Evaluate tells whether answerIDs solve q. Info questions are always solved; a multiple
// choice question is solved iff the chosen answers are exactly the correct ones.
func (q Question) Evaluate(answerIDs []int64) bool {
	if q.Type != TypeMultipleChoice {
		return true
	}
	correct := make(map[int64]struct{})
	for _, a := range q.Answers {
		if a.IsCorrect {
			correct[a.ID] = struct{}{}
		}
	}
	if len(correct) == 0 {
		return false
	}
	chosen := make(map[int64]struct{}, len(answerIDs))
	for _, id := range answerIDs {
		chosen[id] = struct{}{}
	}
	if len(chosen) != len(correct) {
		return false
	}
	for id := range correct {
		if _, ok := chosen[id]; !ok {
			return false
		}
	}
	return true
}

func (q Question) NumCorrectAnswers() int {
	var n int
	for _, a := range q.Answers {
		if a.IsCorrect {
			n++
		}
	}
	return n
}

// QuestionIDs lists the course questions in play order.
func (c Course) QuestionIDs() []int64 {
	ids := make([]int64, 0)
	for _, m := range c.Modules {
		for _, q := range m.Questions {
			ids = append(ids, q.ID)
		}
	}
	return ids
}

// Position locates a question by its 1-based module and question indices.
type Position struct {
	Module   int `json:"module"`
	Question int `json:"question"`
}

// At returns the module and question at pos.
func (c Course) At(pos Position) (Module, Question, bool) {
	if pos.Module < 1 || pos.Module > len(c.Modules) {
		return Module{}, Question{}, false
	}
	m := c.Modules[pos.Module-1]
	if pos.Question < 1 || pos.Question > len(m.Questions) {
		return m, Question{}, false
	}
	return m, m.Questions[pos.Question-1], true
}

// Next returns the position after pos, if any.
func (c Course) Next(pos Position) (Position, bool) {
	if pos.Module < 1 || pos.Module > len(c.Modules) {
		return Position{}, false
	}
	if pos.Question < len(c.Modules[pos.Module-1].Questions) {
		return Position{Module: pos.Module, Question: pos.Question + 1}, true
	}
	for mi := pos.Module + 1; mi <= len(c.Modules); mi++ {
		if len(c.Modules[mi-1].Questions) > 0 {
			return Position{Module: mi, Question: 1}, true
		}
	}
	return Position{}, false
}

// Previous returns the position before pos, if any.
func (c Course) Previous(pos Position) (Position, bool) {
	if pos.Question > 1 {
		return Position{Module: pos.Module, Question: pos.Question - 1}, true
	}
	for mi := pos.Module - 1; mi >= 1; mi-- {
		if n := len(c.Modules[mi-1].Questions); n > 0 {
			return Position{Module: mi, Question: n}, true
		}
	}
	return Position{}, false
}

// FirstUnsolved returns the position of the first question not in solved.
func (c Course) FirstUnsolved(solved map[int64]struct{}) (Position, bool) {
	for mi, m := range c.Modules {
		for qi, q := range m.Questions {
			if _, ok := solved[q.ID]; !ok {
				return Position{Module: mi + 1, Question: qi + 1}, true
			}
		}
	}
	return Position{}, false
}

// IsCompleted tells whether the last question of the last module is solved.
// A course whose last module has no question is never completed.
func (c Course) IsCompleted(solved map[int64]struct{}) bool {
	if len(c.Modules) == 0 {
		return false
	}
	last := c.Modules[len(c.Modules)-1]
	if len(last.Questions) == 0 {
		return false
	}
	_, ok := solved[last.Questions[len(last.Questions)-1].ID]
	return ok
}

// Requests

type NewCategory struct {
	Name string `json:"name" validate:"required,notblank,max=144"`
}

func (nc *NewCategory) Validate(validate *validator.Validate) error {
	nc.Name = core.CleanString(nc.Name)
	return validate.Struct(nc)
}

// SaveCourse creates a course or, when ID is set, replaces an existing course tree.
// Modules and questions keep their ids; the missing ones are deleted.
type SaveCourse struct {
	ID          int64        `json:"id" yaml:"id"`
	Name        string       `json:"name" yaml:"name" validate:"required,notblank,max=144"`
	Description string       `json:"description" yaml:"description"`
	Category    string       `json:"category" yaml:"category" validate:"required,notblank"`
	Difficulty  int          `json:"difficulty" yaml:"difficulty" validate:"min=0,max=3"`
	Language    string       `json:"language" yaml:"language" validate:"required,oneof=en de"`
	IsVisible   bool         `json:"is_visible" yaml:"is_visible"`
	Modules     []SaveModule `json:"modules" yaml:"modules" validate:"required,min=1,dive"`
}

type SaveModule struct {
	ID           int64          `json:"id" yaml:"id"`
	Name         string         `json:"name" yaml:"name" validate:"required,notblank,max=144"`
	LearningText string         `json:"learning_text" yaml:"learning_text"`
	Questions    []SaveQuestion `json:"questions" yaml:"questions" validate:"dive"`
}

type SaveQuestion struct {
	ID        int64        `json:"id" yaml:"id"`
	Type      string       `json:"type" yaml:"type" validate:"required,questiontype"`
	Title     string       `json:"title" yaml:"title" validate:"required,notblank"`
	Body      string       `json:"body" yaml:"body"`
	Feedback  string       `json:"feedback" yaml:"feedback"`
	TextField string       `json:"text_field" yaml:"text_field"`
	URL       string       `json:"url" yaml:"url"`
	Answers   []SaveAnswer `json:"answers" yaml:"answers" validate:"dive"`
}

type SaveAnswer struct {
	Text      string `json:"text" yaml:"text" validate:"required,notblank"`
	IsCorrect bool   `json:"is_correct" yaml:"is_correct"`
}

func (sc *SaveCourse) Validate(validate *validator.Validate) error {
	sc.Name = core.CleanString(sc.Name)
	sc.Category = core.CleanString(sc.Category)
	sc.Language = core.CleanString(sc.Language, true /* lower */)
	if sc.Language == "" {
		sc.Language = LanguageEnglish
	}
	for mi := range sc.Modules {
		sc.Modules[mi].Name = core.CleanString(sc.Modules[mi].Name)
		for qi := range sc.Modules[mi].Questions {
			q := &sc.Modules[mi].Questions[qi]
			q.Type = core.CleanString(q.Type, true /* lower */)
			q.Title = strings.TrimSpace(q.Title)
			if q.Type == TypeInfoYoutube {
				q.URL = YoutubeVideoID(q.URL)
			}
		}
	}
	return validate.Struct(sc)
}

// AnswerRequest is what a learner submits for a question. Info questions take no answer.
type AnswerRequest struct {
	Answers []int64 `json:"answers"`
}

type QueryFilter struct {
	Category string `query:"category"`
	Language string `query:"language"`
	Search   string `query:"search"`
	// AllCourses includes invisible courses.
	AllCourses bool `query:"-"`
}

func (qf *QueryFilter) Clean() {
	qf.Category = core.CleanString(qf.Category)
	qf.Language = core.CleanString(qf.Language, true /* lower */)
	qf.Search = core.CleanString(qf.Search)
}

// Views

type CourseSummary struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	Category       string `json:"category"`
	Difficulty     int    `json:"difficulty"`
	Language       string `json:"language"`
	ResponsibleMod string `json:"responsible_mod"`
	IsVisible      bool   `json:"is_visible"`
	NumModules     int    `json:"num_modules"`
	NumQuestions   int    `json:"num_questions"`
}

// CourseDetail is the course as seen by a learner, with their progress.
type CourseDetail struct {
	ID             int64          `json:"id"`
	Name           string         `json:"name"`
	Description    string         `json:"description"`
	Category       string         `json:"category"`
	Difficulty     int            `json:"difficulty"`
	Language       string         `json:"language"`
	ResponsibleMod string         `json:"responsible_mod"`
	IsVisible      bool           `json:"is_visible"`
	Modules        []ModuleDetail `json:"modules"`
	Solved         []int64        `json:"solved"`
	NumQuestions   int            `json:"num_questions"`
	NumAnswered    int            `json:"num_answered"`
	NextQuestion   *Position      `json:"next_question"`
	CurrentModule  int            `json:"current_module"`
	Completed      bool           `json:"completed"`
}

type ModuleDetail struct {
	ID           int64             `json:"id"`
	Name         string            `json:"name"`
	LearningText string            `json:"learning_text"`
	Questions    []QuestionSummary `json:"question"`
	LastModule   bool              `json:"last_module"`
}

type QuestionSummary struct {
	ID     int64  `json:"id"`
	Title  string `json:"title"`
	Type   string `json:"type"`
	Solved bool   `json:"solved"`
}

// QuestionDetail is a question as served to a learner: no correct flags, no feedback.
type QuestionDetail struct {
	ID           int64            `json:"id"`
	Title        string           `json:"title"`
	Body         string           `json:"body"`
	Type         string           `json:"type"`
	TextField    string           `json:"text_field,omitempty"`
	URL          string           `json:"url,omitempty"`
	Answers      []AnswerChoice   `json:"answers,omitempty"`
	LearningText string           `json:"learning_text"`
	Progress     [][]ProgressItem `json:"progress"`
	LastQuestion bool             `json:"last_question"`
	LastModule   bool             `json:"last_module"`
	Solved       bool             `json:"solved"`
}

type AnswerChoice struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

type ProgressItem struct {
	Title  string `json:"title"`
	Solved bool   `json:"solved"`
}

type AnswerResult struct {
	Solved          bool      `json:"solved"`
	Feedback        string    `json:"feedback,omitempty"`
	Next            *Position `json:"next"`
	CourseCompleted bool      `json:"course_completed"`
}

// QuestionStatistic is the per question summary of a user's tries.
type QuestionStatistic struct {
	UserID   string `json:"-"`
	Username string `json:"-"`
	CourseID int64  `json:"course_id"`
	Course   string `json:"course"`
	ID       int64  `json:"id"`
	Question string `json:"question"`
	Solved   bool   `json:"solved"`
	Tries    int    `json:"tries"`
}
