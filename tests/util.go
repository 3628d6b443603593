package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/clonecademy/clonecademy/core/course"
	"github.com/clonecademy/clonecademy/core/user"
	"github.com/clonecademy/clonecademy/storage/database"
)

// OpenDB opens a migrated SQLite database in a temp dir, closed at the end of the test.
func OpenDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err = database.Migrate(db, "up"); err != nil {
		t.Fatalf("OpenDB() failed: %v", err)
	}
	return db
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateCategory(t *testing.T, repo course.Repository, name string) course.Category {
	t.Helper()
	cat, err := repo.CreateCategory(context.Background(), name)
	if err != nil {
		t.Fatalf("CreateCategory() failed: %v", err)
	}
	return cat
}

// CreateCourse saves a visible course of the given module sizes. Questions are multiple
// choice with two answers, the first one correct.
func CreateCourse(t *testing.T, repo course.Repository, cat course.Category, mod user.User, name string, moduleSizes ...int) course.Course {
	t.Helper()
	now := time.Now().UTC()
	c := course.Course{
		Name:           name,
		Description:    name + " description",
		CategoryID:     cat.ID,
		Difficulty:     course.DifficultyModerate,
		Language:       course.LanguageEnglish,
		ResponsibleMod: mod.ID,
		IsVisible:      true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for mi, size := range moduleSizes {
		m := course.Module{Name: name + " module", LearningText: "read me", Order: mi, Questions: []course.Question{}}
		for qi := 0; qi < size; qi++ {
			m.Questions = append(m.Questions, course.Question{
				Order:    qi,
				Type:     course.TypeMultipleChoice,
				Title:    "question",
				Body:     "pick the right one",
				Feedback: "well done",
				Answers: []course.Answer{
					{Text: "right", IsCorrect: true},
					{Text: "wrong"},
				},
			})
		}
		c.Modules = append(c.Modules, m)
	}
	saved, err := repo.SaveCourse(context.Background(), c)
	if err != nil {
		t.Fatalf("CreateCourse() failed: %v", err)
	}
	return saved
}

// CorrectAnswers returns the ids of the correct answers of q.
func CorrectAnswers(q course.Question) []int64 {
	ids := make([]int64, 0, 1)
	for _, a := range q.Answers {
		if a.IsCorrect {
			ids = append(ids, a.ID)
		}
	}
	return ids
}
