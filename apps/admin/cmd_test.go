package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/clonecademy/clonecademy/core"
	"github.com/clonecademy/clonecademy/core/course"
	"github.com/clonecademy/clonecademy/core/user"
	emailsvc "github.com/clonecademy/clonecademy/services/email"
	"github.com/clonecademy/clonecademy/storage/database/sqlxrepos"
	"github.com/clonecademy/clonecademy/tests"
)

func setup(t *testing.T) *commandLine {
	conf := core.NewTestConfig()

	// set up DB & repos
	db := testutil.OpenDB(t)
	usrRepo := sqlxrepos.NewUserRepository(db)
	courseRepo := sqlxrepos.NewCourseRepository(db)
	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	emailsvc.ResetSentMessages()

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	course.InitValidators(validate, translator)

	// start CLI
	return &commandLine{
		db:         db,
		conf:       conf,
		logger:     core.NopLogger(),
		out:        io.Discard,
		validate:   validate,
		mailSvc:    mailSvc,
		usrRepo:    usrRepo,
		usrSvc:     user.NewService(usrRepo, mailSvc, conf, nil),
		courseRepo: courseRepo,
		courseSvc:  course.NewService(courseRepo, nil),
	}
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func checkErr(t *testing.T, tt cliTest, err error) {
	switch {
	case tt.wantErr != nil:
		assert.Equal(t, tt.wantErr, err)
	case tt.wantErrStr != "":
		if assert.Error(t, err) {
			assert.Contains(t, err.Error(), tt.wantErrStr)
		}
	default:
		assert.NoError(t, err)
	}
}

func mockPassword(pwd string) {
	readPasswordFunc = func(fd int) ([]byte, error) {
		return []byte(pwd), nil
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)

	var gotCommand string
	var gotArgs []string
	origMigrate := migrateFunc
	defer func() { migrateFunc = origMigrate }()
	migrateFunc = func(db *sqlx.DB, command string, args ...string) error {
		gotCommand, gotArgs = command, args
		switch command {
		case "up", "up-by-one", "down", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}, extra: []string{"2"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}, extra: []string{"1"}},
		{name: "status", args: []string{"migrate", "status"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			gotCommand, gotArgs = "", nil
			err := cli.run(args)
			checkErr(t, tt, err)
			if err == nil {
				assert.Equal(t, tt.args[1], gotCommand)
				if want, ok := tt.extra.([]string); ok {
					assert.Equal(t, want, gotArgs)
				}
			}
		})
	}
}

func Test_commandLine_addUser(t *testing.T) {
	cli := setup(t)
	testutil.CreateUser(t, cli.usrRepo, "Mark", "mark", "mark@test.cd", "Zebra#Lamp42", nil, true)

	tests := []cliTest{
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "no username nor email", args: []string{"adduser", "-name", "Root"}, wantErr: errHelp},
		{name: "no password", args: []string{"adduser", "-name", "Root", "-username", "root"}, extra: "", wantErr: errHelp},
		{name: "weak password", args: []string{"adduser", "-name", "Root", "-username", "root"}, extra: "root", wantErrStr: "password"},
		{name: "username taken", args: []string{"adduser", "-name", "Mark", "-username", "mark"}, extra: "Otter$Fjord77", wantErrStr: "username"},
		{name: "admin created", args: []string{"adduser", "-name", "Root", "-username", "root", "-admin"}, extra: "Otter$Fjord77"},
		{name: "moderator created", args: []string{"adduser", "-name", "Mod", "-email", "MOD@test.cd", "-moderator"}, extra: "Otter$Fjord77"},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		pwd, _ := tt.extra.(string)
		mockPassword(pwd)

		t.Run(tt.name, func(t *testing.T) {
			checkErr(t, tt, cli.run(args))
		})
	}

	ctx := context.Background()
	root, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Username: "root"})
	require.NoError(t, err)
	assert.True(t, root.IsAdmin())
	assert.True(t, root.IsActive)
	assert.NoError(t, root.CheckPassword("Otter$Fjord77"))

	mod, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Email: "mod@test.cd"})
	require.NoError(t, err)
	assert.Equal(t, []string{user.RoleModerator}, mod.Roles)
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli := setup(t)
	usr := testutil.CreateUser(t, cli.usrRepo, "User", "awe", "awe@test.cd", "mdr", nil, true)

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"resetpassword", "-username", "lol"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-username", "lol"}, extra: "lol", wantErr: user.ErrNotFound},
		{name: "reset with username", args: []string{"resetpassword", "-username", usr.Username}, extra: "lol"},
		{name: "reset with email", args: []string{"resetpassword", "-username", strings.ToUpper(usr.Email)}, extra: "lmao"},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		pwd, _ := tt.extra.(string)
		mockPassword(pwd)

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			checkErr(t, tt, err)
			if err == nil {
				refreshedUsr, err := cli.usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
				require.NoError(t, err)
				assert.NoError(t, refreshedUsr.CheckPassword(pwd))
			}
		})
	}
}

const coursesYAML = `
categories: [Physics]
courses:
  - name: Genetics
    description: Genes and heredity
    category: Biochemistry
    difficulty: 1
    language: en
    is_visible: true
    modules:
      - name: Basics
        learning_text: DNA carries the genetic information.
        questions:
          - type: info_text
            title: Read
            text_field: DNA is a double helix
          - type: multiple_choice
            title: Helix
            feedback: Watson and Crick
            answers:
              - text: single
              - text: double
                is_correct: true
  - name: Mechanics
    category: Physics
    modules:
      - name: Motion
        questions:
          - type: info_youtube
            title: Watch
            url: https://youtu.be/dQw4w9WgXcQ
`

func Test_commandLine_loadCourses(t *testing.T) {
	cli := setup(t)
	mod := testutil.CreateUser(t, cli.usrRepo, "Mod", "mod", "mod@test.cd", "pwd", []string{user.RoleModerator}, true)
	testutil.CreateUser(t, cli.usrRepo, "Learner", "learner", "learner@test.cd", "pwd", nil, true)

	dir := t.TempDir()
	valid := filepath.Join(dir, "courses.yml")
	require.NoError(t, os.WriteFile(valid, []byte(coursesYAML), 0o600))
	unknownField := filepath.Join(dir, "unknown.yml")
	require.NoError(t, os.WriteFile(unknownField, []byte("courses:\n  - title: lol\n"), 0o600))

	tests := []cliTest{
		{name: "no args", args: []string{"loadcourses"}, wantErr: errHelp},
		{name: "no moderator", args: []string{"loadcourses", "-file", valid}, wantErr: errHelp},
		{name: "missing file", args: []string{"loadcourses", "-file", filepath.Join(dir, "nope.yml"), "-mod", "mod"}, wantErrStr: "no such file"},
		{name: "unknown field", args: []string{"loadcourses", "-file", unknownField, "-mod", "mod"}, wantErrStr: "decoding courses"},
		{name: "learner forbidden", args: []string{"loadcourses", "-file", valid, "-mod", "learner"}, wantErrStr: core.ErrPermissionDenied.Error()},
		{name: "imported", args: []string{"loadcourses", "-file", valid, "-mod", "mod"}},
		{name: "imported again", args: []string{"loadcourses", "-file", valid, "-mod", "MOD@test.cd"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		t.Run(tt.name, func(t *testing.T) {
			checkErr(t, tt, cli.run(args))
		})
	}

	ctx := context.Background()
	cats, err := cli.courseSvc.Categories(ctx)
	require.NoError(t, err)
	assert.Len(t, cats, 2)

	summaries, err := cli.courseRepo.QueryCourses(ctx, &course.QueryFilter{AllCourses: true})
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "Genetics", summaries[0].Name)
	assert.Equal(t, 2, summaries[0].NumQuestions)
	assert.False(t, summaries[1].IsVisible)

	genetics, err := cli.courseRepo.GetCourse(ctx, summaries[0].ID)
	require.NoError(t, err)
	assert.Equal(t, mod.ID, genetics.ResponsibleMod)
	mechanics, err := cli.courseRepo.GetCourse(ctx, summaries[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "dQw4w9WgXcQ", mechanics.Modules[0].Questions[0].URL)
}

func Test_commandLine_exportStats(t *testing.T) {
	cli := setup(t)
	ctx := context.Background()
	learner := testutil.CreateUser(t, cli.usrRepo, "Learner", "learner", "learner@test.cd", "pwd", nil, true)
	mod := testutil.CreateUser(t, cli.usrRepo, "Mod", "mod", "mod@test.cd", "pwd", []string{user.RoleModerator}, true)
	cat := testutil.CreateCategory(t, cli.courseRepo, "Biochemistry")
	c := testutil.CreateCourse(t, cli.courseRepo, cat, mod, "Genetics", 2)

	q := c.Modules[0].Questions[0]
	_, err := cli.courseSvc.Answer(ctx, learner, c.ID, course.Position{Module: 1, Question: 1}, course.AnswerRequest{Answers: []int64{q.Answers[1].ID}})
	require.NoError(t, err)
	_, err = cli.courseSvc.Answer(ctx, learner, c.ID, course.Position{Module: 1, Question: 1}, course.AnswerRequest{Answers: testutil.CorrectAnswers(q)})
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "stats.xlsx")
	require.NoError(t, cli.run([]string{"admin", "exportstats", "-out", out, "-email"}))

	f, err := excelize.OpenFile(out)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(statsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"User", "Course", "Question", "Solved", "Tries"}, rows[0])
	assert.Equal(t, []string{"learner", "Genetics", "question", "TRUE", "2"}, rows[1])

	sent := emailsvc.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "staff@test.cd", sent[0].To[0].Address)
	require.Len(t, sent[0].Attachments, 1)
	assert.Equal(t, "stats.xlsx", sent[0].Attachments[0].Filename)
	assert.Equal(t, xlsxContentType, sent[0].Attachments[0].ContentType)
	assert.Equal(t, core.MailCategoryStatistics, sent[0].Category)

	t.Run("no admin emails", func(t *testing.T) {
		cli.conf.AdminEmails = nil
		err := cli.run([]string{"admin", "exportstats", "-out", out, "-email"})
		assert.Equal(t, errNoAdminEmails, err)
	})
}

func Test_commandLine_printUsage(t *testing.T) {
	cli := setup(t)
	var buf bytes.Buffer
	cli.out = &buf
	assert.Equal(t, errHelp, cli.run([]string{"admin"}))
	assert.Contains(t, buf.String(), "loadcourses")
}
