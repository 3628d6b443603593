package course

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/clonecademy/clonecademy/core"
	"github.com/clonecademy/clonecademy/core/user"
)

var (
	// errors
	ErrNotFound         = errors.New("course not found")
	ErrCategoryNotFound = errors.New("category not found")
	ErrQuestionNotFound = errors.New("question not found")
	ErrModuleNotFound   = errors.New("module not found")
	ErrQuestionLocked   = errors.New("the previous question has to be solved first")
	ErrNameExists       = errors.New("a course with this name already exists")
	ErrCategoryExists   = errors.New("a category with this name already exists")
)

type (
	Repository interface {
		QueryCategories(ctx context.Context) ([]Category, error)
		GetCategoryByName(ctx context.Context, name string) (Category, error)
		CreateCategory(ctx context.Context, name string) (Category, error)

		// QueryCourses returns the matching courses without their modules.
		QueryCourses(ctx context.Context, filter *QueryFilter) ([]CourseSummary, error)
		// GetCourse returns the full course tree, modules and questions ordered.
		GetCourse(ctx context.Context, id int64) (Course, error)
		CourseNameExists(ctx context.Context, name string, excludedID int64) (bool, error)
		// SaveCourse inserts or replaces the whole course tree in one transaction.
		SaveCourse(ctx context.Context, c Course) (Course, error)
		SetCourseVisibility(ctx context.Context, id int64, visible bool) error

		CreateTry(ctx context.Context, t Try) (Try, error)
		// SolvedQuestionIDs returns the ids of the course questions the user solved at least once.
		SolvedQuestionIDs(ctx context.Context, userID string, courseID int64) ([]int64, error)
		// QueryStatistics aggregates tries per user and question. An empty userID selects every user.
		QueryStatistics(ctx context.Context, userID string) ([]QuestionStatistic, error)
	}

	ServiceInterface interface {
		Categories(ctx context.Context) ([]Category, error)
		CreateCategory(ctx context.Context, actor user.User, data NewCategory) (Category, error)
		Query(ctx context.Context, actor user.User, filter *QueryFilter) ([]CourseSummary, error)
		Save(ctx context.Context, actor user.User, data SaveCourse) (Course, error)
		GetForEdit(ctx context.Context, actor user.User, id int64) (Course, error)
		ToggleVisibility(ctx context.Context, actor user.User, id int64) (Course, error)
		Detail(ctx context.Context, actor user.User, id int64) (CourseDetail, error)
		Module(ctx context.Context, actor user.User, id int64, module int) (ModuleDetail, error)
		Question(ctx context.Context, actor user.User, id int64, pos Position) (QuestionDetail, error)
		Answer(ctx context.Context, actor user.User, id int64, pos Position, data AnswerRequest) (AnswerResult, error)
		Statistics(ctx context.Context, actor user.User) ([]QuestionStatistic, error)
		AllStatistics(ctx context.Context) ([]QuestionStatistic, error)
	}

	Service struct {
		repo   Repository
		logger core.Logger
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(repo Repository, logger core.Logger) *Service {
	if logger == nil {
		logger = core.NopLogger()
	}
	return &Service{repo: repo, logger: logger}
}

func (svc *Service) Categories(ctx context.Context) ([]Category, error) {
	return svc.repo.QueryCategories(ctx)
}

func (svc *Service) CreateCategory(ctx context.Context, actor user.User, data NewCategory) (Category, error) {
	if !actor.IsModerator() {
		return Category{}, core.ErrPermissionDenied
	}
	if _, err := svc.repo.GetCategoryByName(ctx, data.Name); err == nil {
		return Category{}, core.NewValidationError(ErrCategoryExists, core.FieldError{Field: "name", Error: ErrCategoryExists.Error()})
	} else if errors.Cause(err) != ErrCategoryNotFound {
		return Category{}, errors.Wrap(err, "getting category")
	}
	return svc.repo.CreateCategory(ctx, data.Name)
}

func (svc *Service) Query(ctx context.Context, actor user.User, filter *QueryFilter) ([]CourseSummary, error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	filter.AllCourses = actor.IsModerator()
	return svc.repo.QueryCourses(ctx, filter)
}

// Save creates or edits a course. Only moderators may create; only the responsible
// moderator or an admin may edit.
func (svc *Service) Save(ctx context.Context, actor user.User, data SaveCourse) (Course, error) {
	if !actor.IsModerator() {
		return Course{}, core.ErrPermissionDenied
	}

	var orig Course
	if data.ID != 0 {
		var err error
		if orig, err = svc.GetForEdit(ctx, actor, data.ID); err != nil {
			return Course{}, err
		}
	}

	exists, err := svc.repo.CourseNameExists(ctx, data.Name, data.ID)
	if err != nil {
		return Course{}, errors.Wrap(err, "checking course name")
	}
	if exists {
		return Course{}, core.NewValidationError(ErrNameExists, core.FieldError{Field: "name", Error: ErrNameExists.Error()})
	}

	cat, err := svc.repo.GetCategoryByName(ctx, data.Category)
	if err != nil {
		if errors.Cause(err) == ErrCategoryNotFound {
			return Course{}, core.NewValidationError(err, core.FieldError{Field: "category", Error: err.Error()})
		}
		return Course{}, errors.Wrap(err, "getting category")
	}

	now := time.Now().UTC()
	c := Course{
		ID:             data.ID,
		Name:           data.Name,
		Description:    data.Description,
		CategoryID:     cat.ID,
		Category:       cat.Name,
		Difficulty:     data.Difficulty,
		Language:       data.Language,
		ResponsibleMod: actor.ID,
		IsVisible:      data.IsVisible,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if data.ID != 0 {
		c.ResponsibleMod = orig.ResponsibleMod
		c.CreatedAt = orig.CreatedAt
	}

	// ids of another course's modules or questions are dropped
	moduleIDs, questionIDs := make(map[int64]struct{}), make(map[int64]struct{})
	for _, m := range orig.Modules {
		moduleIDs[m.ID] = struct{}{}
		for _, q := range m.Questions {
			questionIDs[q.ID] = struct{}{}
		}
	}
	keep := func(id int64, known map[int64]struct{}) int64 {
		if _, ok := known[id]; ok {
			return id
		}
		return 0
	}

	c.Modules = make([]Module, 0, len(data.Modules))
	for mi, sm := range data.Modules {
		m := Module{
			ID:           keep(sm.ID, moduleIDs),
			Name:         sm.Name,
			LearningText: sm.LearningText,
			Order:        mi,
			Questions:    make([]Question, 0, len(sm.Questions)),
		}
		for qi, sq := range sm.Questions {
			q := Question{
				ID:        keep(sq.ID, questionIDs),
				Order:     qi,
				Type:      sq.Type,
				Title:     sq.Title,
				Body:      sq.Body,
				Feedback:  sq.Feedback,
				TextField: sq.TextField,
				URL:       sq.URL,
			}
			if sq.Type == TypeMultipleChoice {
				for _, sa := range sq.Answers {
					q.Answers = append(q.Answers, Answer{Text: sa.Text, IsCorrect: sa.IsCorrect})
				}
			}
			m.Questions = append(m.Questions, q)
		}
		c.Modules = append(c.Modules, m)
	}

	saved, err := svc.repo.SaveCourse(ctx, c)
	if err != nil {
		return Course{}, errors.Wrap(err, "saving course")
	}
	svc.logger.Info("course saved: "+saved.Name, map[string]interface{}{"course_id": saved.ID}, actor)
	return saved, nil
}

func (svc *Service) GetForEdit(ctx context.Context, actor user.User, id int64) (Course, error) {
	c, err := svc.repo.GetCourse(ctx, id)
	if err != nil {
		return Course{}, err
	}
	if !canEdit(actor, c) {
		return Course{}, core.ErrPermissionDenied
	}
	return c, nil
}

func (svc *Service) ToggleVisibility(ctx context.Context, actor user.User, id int64) (Course, error) {
	c, err := svc.GetForEdit(ctx, actor, id)
	if err != nil {
		return Course{}, err
	}
	c.IsVisible = !c.IsVisible
	if err = svc.repo.SetCourseVisibility(ctx, c.ID, c.IsVisible); err != nil {
		return Course{}, errors.Wrap(err, "setting course visibility")
	}
	return c, nil
}

// getPlayable returns the course if actor may take it, with the set of questions actor solved.
func (svc *Service) getPlayable(ctx context.Context, actor user.User, id int64) (Course, map[int64]struct{}, error) {
	c, err := svc.repo.GetCourse(ctx, id)
	if err != nil {
		return Course{}, nil, err
	}
	if !c.IsVisible && !actor.IsModerator() {
		return Course{}, nil, ErrNotFound
	}
	ids, err := svc.repo.SolvedQuestionIDs(ctx, actor.ID, c.ID)
	if err != nil {
		return Course{}, nil, errors.Wrap(err, "getting solved questions")
	}
	solved := make(map[int64]struct{}, len(ids))
	for _, qid := range ids {
		solved[qid] = struct{}{}
	}
	return c, solved, nil
}

func (svc *Service) Detail(ctx context.Context, actor user.User, id int64) (CourseDetail, error) {
	c, solved, err := svc.getPlayable(ctx, actor, id)
	if err != nil {
		return CourseDetail{}, err
	}

	detail := CourseDetail{
		ID:             c.ID,
		Name:           c.Name,
		Description:    c.Description,
		Category:       c.Category,
		Difficulty:     c.Difficulty,
		Language:       c.Language,
		ResponsibleMod: c.ResponsibleMod,
		IsVisible:      c.IsVisible,
		Modules:        make([]ModuleDetail, 0, len(c.Modules)),
		Solved:         make([]int64, 0, len(solved)),
		Completed:      c.IsCompleted(solved),
	}
	for mi, m := range c.Modules {
		md := moduleDetail(m, solved, mi == len(c.Modules)-1)
		detail.NumQuestions += len(md.Questions)
		detail.Modules = append(detail.Modules, md)
	}
	for _, qid := range c.QuestionIDs() {
		if _, ok := solved[qid]; ok {
			detail.Solved = append(detail.Solved, qid)
		}
	}
	detail.NumAnswered = len(detail.Solved)

	if pos, ok := c.FirstUnsolved(solved); ok {
		detail.NextQuestion = &pos
		detail.CurrentModule = pos.Module
	} else {
		detail.CurrentModule = len(c.Modules)
	}
	return detail, nil
}

func moduleDetail(m Module, solved map[int64]struct{}, last bool) ModuleDetail {
	md := ModuleDetail{
		ID:           m.ID,
		Name:         m.Name,
		LearningText: m.LearningText,
		Questions:    make([]QuestionSummary, 0, len(m.Questions)),
		LastModule:   last,
	}
	for _, q := range m.Questions {
		_, ok := solved[q.ID]
		md.Questions = append(md.Questions, QuestionSummary{ID: q.ID, Title: q.Title, Type: q.Type, Solved: ok})
	}
	return md
}

func (svc *Service) Module(ctx context.Context, actor user.User, id int64, module int) (ModuleDetail, error) {
	c, solved, err := svc.getPlayable(ctx, actor, id)
	if err != nil {
		return ModuleDetail{}, err
	}
	if module < 1 || module > len(c.Modules) {
		return ModuleDetail{}, ErrModuleNotFound
	}
	return moduleDetail(c.Modules[module-1], solved, module == len(c.Modules)), nil
}

// locate returns the question at pos once checked that the question before it is solved.
func locate(c Course, solved map[int64]struct{}, pos Position) (Module, Question, error) {
	m, q, ok := c.At(pos)
	if !ok {
		return Module{}, Question{}, ErrQuestionNotFound
	}
	if prev, ok := c.Previous(pos); ok {
		_, pq, _ := c.At(prev)
		if _, done := solved[pq.ID]; !done {
			return Module{}, Question{}, ErrQuestionLocked
		}
	}
	return m, q, nil
}

func (svc *Service) Question(ctx context.Context, actor user.User, id int64, pos Position) (QuestionDetail, error) {
	c, solved, err := svc.getPlayable(ctx, actor, id)
	if err != nil {
		return QuestionDetail{}, err
	}
	m, q, err := locate(c, solved, pos)
	if err != nil {
		return QuestionDetail{}, err
	}

	_, isSolved := solved[q.ID]
	detail := QuestionDetail{
		ID:           q.ID,
		Title:        q.Title,
		Body:         q.Body,
		Type:         q.Type,
		TextField:    q.TextField,
		URL:          q.URL,
		LearningText: m.LearningText,
		Progress:     make([][]ProgressItem, 0, len(c.Modules)),
		LastQuestion: pos.Question == len(m.Questions),
		LastModule:   pos.Module == len(c.Modules),
		Solved:       isSolved,
	}
	for _, a := range q.Answers {
		detail.Answers = append(detail.Answers, AnswerChoice{ID: a.ID, Text: a.Text})
	}
	for _, cm := range c.Modules {
		items := make([]ProgressItem, 0, len(cm.Questions))
		for _, cq := range cm.Questions {
			_, ok := solved[cq.ID]
			items = append(items, ProgressItem{Title: cq.Title, Solved: ok})
		}
		detail.Progress = append(detail.Progress, items)
	}
	return detail, nil
}

// Answer evaluates and records a try. The feedback is only given once solved.
func (svc *Service) Answer(ctx context.Context, actor user.User, id int64, pos Position, data AnswerRequest) (AnswerResult, error) {
	c, solved, err := svc.getPlayable(ctx, actor, id)
	if err != nil {
		return AnswerResult{}, err
	}
	_, q, err := locate(c, solved, pos)
	if err != nil {
		return AnswerResult{}, err
	}

	isSolved := q.Evaluate(data.Answers)
	if _, err = svc.repo.CreateTry(ctx, Try{
		UserID:     actor.ID,
		QuestionID: q.ID,
		Answer:     formatAnswer(data.Answers),
		Solved:     isSolved,
		Date:       time.Now().UTC(),
	}); err != nil {
		return AnswerResult{}, errors.Wrap(err, "recording try")
	}

	res := AnswerResult{Solved: isSolved}
	if isSolved {
		solved[q.ID] = struct{}{}
		res.Feedback = q.Feedback
		if next, ok := c.Next(pos); ok {
			res.Next = &next
		}
	}
	res.CourseCompleted = c.IsCompleted(solved)
	return res, nil
}

func (svc *Service) Statistics(ctx context.Context, actor user.User) ([]QuestionStatistic, error) {
	return svc.repo.QueryStatistics(ctx, actor.ID)
}

func (svc *Service) AllStatistics(ctx context.Context) ([]QuestionStatistic, error) {
	return svc.repo.QueryStatistics(ctx, "")
}

func canEdit(actor user.User, c Course) bool {
	return actor.IsAdmin() || (actor.HasRole(user.RoleModerator) && c.ResponsibleMod == actor.ID)
}

func formatAnswer(ids []int64) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	return strings.Join(parts, ",")
}
