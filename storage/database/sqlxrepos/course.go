package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/clonecademy/clonecademy/core/course"
)

type (
	courseRow struct {
		ID             int64       `db:"id"`
		Name           string      `db:"name"`
		Description    string      `db:"description"`
		CategoryID     null.Int64  `db:"category_id"`
		Category       null.String `db:"category"`
		Difficulty     int         `db:"difficulty"`
		Language       string      `db:"language"`
		ResponsibleMod null.String `db:"responsible_mod"`
		IsVisible      bool        `db:"is_visible"`
		CreatedAt      time.Time   `db:"created_at"`
		UpdatedAt      time.Time   `db:"updated_at"`
	}

	courseSummaryRow struct {
		courseRow
		NumModules   int `db:"num_modules"`
		NumQuestions int `db:"num_questions"`
	}

	moduleRow struct {
		ID           int64  `db:"id"`
		CourseID     int64  `db:"course_id"`
		Name         string `db:"name"`
		LearningText string `db:"learning_text"`
		Position     int    `db:"position"`
	}

	questionRow struct {
		ID        int64       `db:"id"`
		ModuleID  int64       `db:"module_id"`
		Position  int         `db:"position"`
		Type      string      `db:"type"`
		Title     string      `db:"title"`
		Body      string      `db:"body"`
		Feedback  null.String `db:"feedback"`
		TextField null.String `db:"text_field"`
		URL       null.String `db:"url"`
	}

	answerRow struct {
		ID         int64  `db:"id"`
		QuestionID int64  `db:"question_id"`
		Position   int    `db:"position"`
		Text       string `db:"text"`
		IsCorrect  bool   `db:"is_correct"`
	}

	tryRow struct {
		ID         int64      `db:"id"`
		UserID     string     `db:"user_id"`
		QuestionID null.Int64 `db:"question_id"`
		Answer     string     `db:"answer"`
		Solved     bool       `db:"solved"`
		Date       time.Time  `db:"date"`
	}

	statisticRow struct {
		UserID   string      `db:"user_id"`
		Username null.String `db:"username"`
		CourseID int64       `db:"course_id"`
		Course   string      `db:"course"`
		ID       int64       `db:"question_id"`
		Question string      `db:"question"`
		Solved   bool        `db:"solved"`
		Tries    int         `db:"tries"`
	}
)

const courseSelect = `SELECT c."id", c."name", c."description", c."category_id", cat."name" AS "category",
	c."difficulty", c."language", c."responsible_mod", c."is_visible", c."created_at", c."updated_at"
	FROM "courses" c LEFT JOIN "categories" cat ON cat."id" = c."category_id"`

type courseRepository struct {
	db *sqlx.DB
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *sqlx.DB) *courseRepository {
	return &courseRepository{db: db}
}

func (row courseRow) toCourse() course.Course {
	return course.Course{
		ID:             row.ID,
		Name:           row.Name,
		Description:    row.Description,
		CategoryID:     row.CategoryID.Int64,
		Category:       row.Category.String,
		Difficulty:     row.Difficulty,
		Language:       row.Language,
		ResponsibleMod: row.ResponsibleMod.String,
		IsVisible:      row.IsVisible,
		CreatedAt:      row.CreatedAt.UTC(),
		UpdatedAt:      row.UpdatedAt.UTC(),
	}
}

// Categories

func (repo courseRepository) QueryCategories(ctx context.Context) ([]course.Category, error) {
	cats := make([]course.Category, 0)
	if err := repo.db.SelectContext(ctx, &cats, `SELECT "id", "name" FROM "categories" ORDER BY "name"`); err != nil {
		return nil, errors.Wrap(err, "querying categories")
	}
	return cats, nil
}

func (repo courseRepository) GetCategoryByName(ctx context.Context, name string) (course.Category, error) {
	var cat course.Category
	q := repo.db.Rebind(`SELECT "id", "name" FROM "categories" WHERE LOWER("name") = ?`)
	if err := repo.db.GetContext(ctx, &cat, q, strings.ToLower(name)); err != nil {
		if err == sql.ErrNoRows {
			return course.Category{}, course.ErrCategoryNotFound
		}
		return course.Category{}, errors.Wrap(err, "getting category")
	}
	return cat, nil
}

func (repo courseRepository) CreateCategory(ctx context.Context, name string) (course.Category, error) {
	cat := course.Category{Name: name}
	q := repo.db.Rebind(`INSERT INTO "categories" ("name") VALUES (?) RETURNING "id"`)
	if err := repo.db.GetContext(ctx, &cat.ID, q, name); err != nil {
		return course.Category{}, errors.Wrap(err, "inserting category")
	}
	return cat, nil
}

// Courses

func (repo courseRepository) QueryCourses(ctx context.Context, filter *course.QueryFilter) ([]course.CourseSummary, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter != nil {
		if !filter.AllCourses {
			where = append(where, `c."is_visible" = ?`)
			args = append(args, true)
		}
		if filter.Category != "" {
			where = append(where, `LOWER(cat."name") = ?`)
			args = append(args, strings.ToLower(filter.Category))
		}
		if filter.Language != "" {
			where = append(where, `c."language" = ?`)
			args = append(args, filter.Language)
		}
		if filter.Search != "" {
			val := "%" + strings.ToLower(filter.Search) + "%"
			where = append(where, `(LOWER(c."name") LIKE ? OR LOWER(c."description") LIKE ?)`)
			args = append(args, val, val)
		}
	}

	q := `SELECT c."id", c."name", c."description", c."category_id", cat."name" AS "category",
		c."difficulty", c."language", c."responsible_mod", c."is_visible", c."created_at", c."updated_at",
		(SELECT COUNT(*) FROM "modules" m WHERE m."course_id" = c."id") AS "num_modules",
		(SELECT COUNT(*) FROM "questions" q JOIN "modules" m ON m."id" = q."module_id"
			WHERE m."course_id" = c."id") AS "num_questions"
		FROM "courses" c LEFT JOIN "categories" cat ON cat."id" = c."category_id"`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += ` ORDER BY c."name"`

	var rows []courseSummaryRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying courses")
	}
	summaries := make([]course.CourseSummary, 0, len(rows))
	for _, row := range rows {
		summaries = append(summaries, course.CourseSummary{
			ID:             row.ID,
			Name:           row.Name,
			Description:    row.Description,
			Category:       row.Category.String,
			Difficulty:     row.Difficulty,
			Language:       row.Language,
			ResponsibleMod: row.ResponsibleMod.String,
			IsVisible:      row.IsVisible,
			NumModules:     row.NumModules,
			NumQuestions:   row.NumQuestions,
		})
	}
	return summaries, nil
}

func (repo courseRepository) GetCourse(ctx context.Context, id int64) (course.Course, error) {
	return getCourse(ctx, repo.db, id)
}

// queryer is implemented by both *sqlx.DB and *sqlx.Tx.
type queryer interface {
	sqlx.QueryerContext
	Rebind(query string) string
}

// getCourse loads the whole course tree with q, which may be a transaction.
func getCourse(ctx context.Context, q queryer, id int64) (course.Course, error) {
	var row courseRow
	if err := sqlx.GetContext(ctx, q, &row, q.Rebind(courseSelect+` WHERE c."id" = ?`), id); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return course.Course{}, course.ErrNotFound
		}
		return course.Course{}, errors.Wrap(err, "getting course")
	}
	c := row.toCourse()
	rebind := q.Rebind

	var modRows []moduleRow
	if err := sqlx.SelectContext(ctx, q, &modRows, rebind(
		`SELECT "id", "course_id", "name", "learning_text", "position" FROM "modules"
		WHERE "course_id" = ? ORDER BY "position", "id"`), id); err != nil {
		return course.Course{}, errors.Wrap(err, "getting modules")
	}
	c.Modules = make([]course.Module, 0, len(modRows))
	if len(modRows) == 0 {
		return c, nil
	}

	modIDs := make([]int64, 0, len(modRows))
	for _, mr := range modRows {
		modIDs = append(modIDs, mr.ID)
	}
	qq, args, err := sqlx.In(`SELECT "id", "module_id", "position", "type", "title", "body", "feedback", "text_field", "url"
		FROM "questions" WHERE "module_id" IN (?) ORDER BY "position", "id"`, modIDs)
	if err != nil {
		return course.Course{}, errors.Wrap(err, "building questions query")
	}
	var qRows []questionRow
	if err = sqlx.SelectContext(ctx, q, &qRows, rebind(qq), args...); err != nil {
		return course.Course{}, errors.Wrap(err, "getting questions")
	}

	answers := make(map[int64][]course.Answer)
	if len(qRows) > 0 {
		qIDs := make([]int64, 0, len(qRows))
		for _, qr := range qRows {
			qIDs = append(qIDs, qr.ID)
		}
		aq, args, err := sqlx.In(`SELECT "id", "question_id", "position", "text", "is_correct"
			FROM "answers" WHERE "question_id" IN (?) ORDER BY "position", "id"`, qIDs)
		if err != nil {
			return course.Course{}, errors.Wrap(err, "building answers query")
		}
		var aRows []answerRow
		if err = sqlx.SelectContext(ctx, q, &aRows, rebind(aq), args...); err != nil {
			return course.Course{}, errors.Wrap(err, "getting answers")
		}
		for _, ar := range aRows {
			answers[ar.QuestionID] = append(answers[ar.QuestionID], course.Answer{
				ID: ar.ID, QuestionID: ar.QuestionID, Text: ar.Text, IsCorrect: ar.IsCorrect,
			})
		}
	}

	questions := make(map[int64][]course.Question)
	for _, qr := range qRows {
		questions[qr.ModuleID] = append(questions[qr.ModuleID], course.Question{
			ID:        qr.ID,
			ModuleID:  qr.ModuleID,
			Order:     qr.Position,
			Type:      qr.Type,
			Title:     qr.Title,
			Body:      qr.Body,
			Feedback:  qr.Feedback.String,
			TextField: qr.TextField.String,
			URL:       qr.URL.String,
			Answers:   answers[qr.ID],
		})
	}
	for _, mr := range modRows {
		qs := questions[mr.ID]
		if qs == nil {
			qs = []course.Question{}
		}
		c.Modules = append(c.Modules, course.Module{
			ID:           mr.ID,
			CourseID:     mr.CourseID,
			Name:         mr.Name,
			LearningText: mr.LearningText,
			Order:        mr.Position,
			Questions:    qs,
		})
	}
	return c, nil
}

func (repo courseRepository) CourseNameExists(ctx context.Context, name string, excludedID int64) (bool, error) {
	var ids []int64
	q := repo.db.Rebind(`SELECT "id" FROM "courses" WHERE LOWER("name") = ? AND "id" <> ? LIMIT 1`)
	if err := repo.db.SelectContext(ctx, &ids, q, strings.ToLower(name), excludedID); err != nil {
		return false, errors.Wrap(err, "checking course name")
	}
	return len(ids) > 0, nil
}

// SaveCourse upserts the course row, deletes the modules and questions that are not part
// of c anymore, upserts the remaining ones and rewrites the answers.
func (repo courseRepository) SaveCourse(ctx context.Context, c course.Course) (course.Course, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return course.Course{}, errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if c.ID, err = saveCourseRow(ctx, tx, c); err != nil {
		return course.Course{}, err
	}

	keptModules := make([]int64, 0, len(c.Modules))
	keptQuestions := make([]int64, 0)
	for _, m := range c.Modules {
		if m.ID != 0 {
			keptModules = append(keptModules, m.ID)
		}
		for _, q := range m.Questions {
			if q.ID != 0 {
				keptQuestions = append(keptQuestions, q.ID)
			}
		}
	}
	if err = deleteMissing(ctx, tx,
		`DELETE FROM "modules" WHERE "course_id" = ? AND "id" NOT IN (?)`, c.ID, keptModules); err != nil {
		return course.Course{}, errors.Wrap(err, "deleting modules")
	}
	if err = deleteMissing(ctx, tx,
		`DELETE FROM "questions" WHERE "module_id" IN (SELECT "id" FROM "modules" WHERE "course_id" = ?) AND "id" NOT IN (?)`,
		c.ID, keptQuestions); err != nil {
		return course.Course{}, errors.Wrap(err, "deleting questions")
	}

	for mi := range c.Modules {
		m := &c.Modules[mi]
		m.CourseID = c.ID
		if m.ID, err = saveModuleRow(ctx, tx, *m); err != nil {
			return course.Course{}, err
		}
		for qi := range m.Questions {
			q := &m.Questions[qi]
			q.ModuleID = m.ID
			if q.ID, err = saveQuestionRow(ctx, tx, *q); err != nil {
				return course.Course{}, err
			}
			if err = saveAnswers(ctx, tx, q); err != nil {
				return course.Course{}, err
			}
		}
	}

	saved, err := getCourse(ctx, tx, c.ID)
	if err != nil {
		return course.Course{}, err
	}
	if err = tx.Commit(); err != nil {
		return course.Course{}, errors.Wrap(err, "committing course")
	}
	return saved, nil
}

func saveCourseRow(ctx context.Context, tx *sqlx.Tx, c course.Course) (int64, error) {
	args := []interface{}{
		c.Name, c.Description, null.NewInt64(c.CategoryID, c.CategoryID != 0), c.Difficulty, c.Language,
		null.NewString(c.ResponsibleMod, c.ResponsibleMod != ""), c.IsVisible, c.UpdatedAt.UTC(),
	}
	if c.ID == 0 {
		var id int64
		q := tx.Rebind(`INSERT INTO "courses" ("name", "description", "category_id", "difficulty", "language",
			"responsible_mod", "is_visible", "updated_at", "created_at") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING "id"`)
		if err := tx.GetContext(ctx, &id, q, append(args, c.CreatedAt.UTC())...); err != nil {
			return 0, errors.Wrap(err, "inserting course")
		}
		return id, nil
	}

	q := tx.Rebind(`UPDATE "courses" SET "name" = ?, "description" = ?, "category_id" = ?, "difficulty" = ?,
		"language" = ?, "responsible_mod" = ?, "is_visible" = ?, "updated_at" = ? WHERE "id" = ?`)
	res, err := tx.ExecContext(ctx, q, append(args, c.ID)...)
	if err != nil {
		return 0, errors.Wrap(err, "updating course")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return 0, course.ErrNotFound
	}
	return c.ID, nil
}

func saveModuleRow(ctx context.Context, tx *sqlx.Tx, m course.Module) (int64, error) {
	if m.ID == 0 {
		var id int64
		q := tx.Rebind(`INSERT INTO "modules" ("course_id", "name", "learning_text", "position")
			VALUES (?, ?, ?, ?) RETURNING "id"`)
		if err := tx.GetContext(ctx, &id, q, m.CourseID, m.Name, m.LearningText, m.Order); err != nil {
			return 0, errors.Wrap(err, "inserting module")
		}
		return id, nil
	}
	q := tx.Rebind(`UPDATE "modules" SET "name" = ?, "learning_text" = ?, "position" = ? WHERE "id" = ? AND "course_id" = ?`)
	if _, err := tx.ExecContext(ctx, q, m.Name, m.LearningText, m.Order, m.ID, m.CourseID); err != nil {
		return 0, errors.Wrap(err, "updating module")
	}
	return m.ID, nil
}

// saveQuestionRow updates the question, or inserts it when it is new or went away with its old module.
func saveQuestionRow(ctx context.Context, tx *sqlx.Tx, qu course.Question) (int64, error) {
	args := []interface{}{
		qu.ModuleID, qu.Order, qu.Type, qu.Title, qu.Body,
		null.NewString(qu.Feedback, qu.Feedback != ""),
		null.NewString(qu.TextField, qu.TextField != ""),
		null.NewString(qu.URL, qu.URL != ""),
	}
	if qu.ID != 0 {
		q := tx.Rebind(`UPDATE "questions" SET "module_id" = ?, "position" = ?, "type" = ?, "title" = ?, "body" = ?,
			"feedback" = ?, "text_field" = ?, "url" = ? WHERE "id" = ?`)
		res, err := tx.ExecContext(ctx, q, append(args, qu.ID)...)
		if err != nil {
			return 0, errors.Wrap(err, "updating question")
		}
		if n, err := res.RowsAffected(); err != nil || n > 0 {
			return qu.ID, nil
		}
	}

	var id int64
	q := tx.Rebind(`INSERT INTO "questions" ("module_id", "position", "type", "title", "body", "feedback", "text_field", "url")
		VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING "id"`)
	if err := tx.GetContext(ctx, &id, q, args...); err != nil {
		return 0, errors.Wrap(err, "inserting question")
	}
	return id, nil
}

func saveAnswers(ctx context.Context, tx *sqlx.Tx, qu *course.Question) error {
	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM "answers" WHERE "question_id" = ?`), qu.ID); err != nil {
		return errors.Wrap(err, "deleting answers")
	}
	q := tx.Rebind(`INSERT INTO "answers" ("question_id", "position", "text", "is_correct") VALUES (?, ?, ?, ?) RETURNING "id"`)
	for ai := range qu.Answers {
		a := &qu.Answers[ai]
		a.QuestionID = qu.ID
		if err := tx.GetContext(ctx, &a.ID, q, qu.ID, ai, a.Text, a.IsCorrect); err != nil {
			return errors.Wrap(err, "inserting answer")
		}
	}
	return nil
}

// deleteMissing runs q, a DELETE with a parent id and a NOT IN (?) list of kept ids.
func deleteMissing(ctx context.Context, tx *sqlx.Tx, q string, parentID int64, kept []int64) error {
	if len(kept) == 0 {
		q = strings.Replace(q, ` AND "id" NOT IN (?)`, "", 1)
		_, err := tx.ExecContext(ctx, tx.Rebind(q), parentID)
		return err
	}
	qq, args, err := sqlx.In(q, parentID, kept)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, tx.Rebind(qq), args...)
	return err
}

func (repo courseRepository) SetCourseVisibility(ctx context.Context, id int64, visible bool) error {
	q := repo.db.Rebind(`UPDATE "courses" SET "is_visible" = ?, "updated_at" = ? WHERE "id" = ?`)
	res, err := repo.db.ExecContext(ctx, q, visible, time.Now().UTC(), id)
	if err != nil {
		return errors.Wrap(err, "updating course visibility")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return course.ErrNotFound
	}
	return nil
}

// Tries

func (repo courseRepository) CreateTry(ctx context.Context, t course.Try) (course.Try, error) {
	row := tryRow{
		UserID:     t.UserID,
		QuestionID: null.NewInt64(t.QuestionID, t.QuestionID != 0),
		Answer:     t.Answer,
		Solved:     t.Solved,
		Date:       t.Date.UTC(),
	}
	q := repo.db.Rebind(`INSERT INTO "tries" ("user_id", "question_id", "answer", "solved", "date")
		VALUES (?, ?, ?, ?, ?) RETURNING "id"`)
	if err := repo.db.GetContext(ctx, &t.ID, q, row.UserID, row.QuestionID, row.Answer, row.Solved, row.Date); err != nil {
		return course.Try{}, errors.Wrap(err, "inserting try")
	}
	return t, nil
}

func (repo courseRepository) SolvedQuestionIDs(ctx context.Context, userID string, courseID int64) ([]int64, error) {
	ids := make([]int64, 0)
	q := repo.db.Rebind(`SELECT DISTINCT t."question_id" FROM "tries" t
		JOIN "questions" q ON q."id" = t."question_id"
		JOIN "modules" m ON m."id" = q."module_id"
		WHERE t."user_id" = ? AND m."course_id" = ? AND t."solved" = ?`)
	if err := repo.db.SelectContext(ctx, &ids, q, userID, courseID, true); err != nil {
		return nil, errors.Wrap(err, "querying solved questions")
	}
	return ids, nil
}

func (repo courseRepository) QueryStatistics(ctx context.Context, userID string) ([]course.QuestionStatistic, error) {
	q := `SELECT t."user_id", u."username", c."id" AS "course_id", c."name" AS "course",
		q."id" AS "question_id", q."title" AS "question",
		MAX(CASE WHEN t."solved" THEN 1 ELSE 0 END) = 1 AS "solved", COUNT(t."id") AS "tries"
		FROM "tries" t
		JOIN "users" u ON u."id" = t."user_id"
		JOIN "questions" q ON q."id" = t."question_id"
		JOIN "modules" m ON m."id" = q."module_id"
		JOIN "courses" c ON c."id" = m."course_id"`
	var args []interface{}
	if userID != "" {
		q += ` WHERE t."user_id" = ?`
		args = append(args, userID)
	}
	q += ` GROUP BY t."user_id", u."username", c."id", c."name", q."id", q."title", m."position", q."position"
		ORDER BY u."username", c."name", m."position", q."position"`

	var rows []statisticRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying statistics")
	}
	stats := make([]course.QuestionStatistic, 0, len(rows))
	for _, row := range rows {
		stats = append(stats, course.QuestionStatistic{
			UserID:   row.UserID,
			Username: row.Username.String,
			CourseID: row.CourseID,
			Course:   row.Course,
			ID:       row.ID,
			Question: row.Question,
			Solved:   row.Solved,
			Tries:    row.Tries,
		})
	}
	return stats, nil
}
