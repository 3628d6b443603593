package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"golang.org/x/term"

	"github.com/clonecademy/clonecademy/core"
	"github.com/clonecademy/clonecademy/core/course"
	"github.com/clonecademy/clonecademy/core/user"
	"github.com/clonecademy/clonecademy/storage/database"
)

var (
	readPasswordFunc = term.ReadPassword // mockable
	migrateFunc      = database.Migrate  // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db         *sqlx.DB
	conf       *core.Config
	logger     core.Logger
	out        io.Writer
	validate   *validator.Validate
	mailSvc    core.EmailService
	usrRepo    user.Repository
	usrSvc     user.ServiceInterface
	courseRepo course.Repository
	courseSvc  course.ServiceInterface
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  adduser -name NAME -username USERNAME -email EMAIL [-admin] [-moderator] - create a user")
	fmt.Fprintln(cli.out, "  resetpassword -username USERNAME|EMAIL - reset user's password")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a goose migration command (up, down, status, ...)")
	fmt.Fprintln(cli.out, "  loadcourses -file FILE.yml -mod USERNAME - import courses, existing names are skipped")
	fmt.Fprintln(cli.out, "  exportstats -out FILE.xlsx [-email] - export every user's tries")
}

// promptPassword reads a password from the terminal without echoing it.
func (cli *commandLine) promptPassword(label string) (string, error) {
	fmt.Fprint(cli.out, label)
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserCmd.SetOutput(cli.out)
	addUserName := addUserCmd.String("name", "", "The user's full name.")
	addUserUname := addUserCmd.String("username", "", "The user's username. The password will be prompted next.")
	addUserEmail := addUserCmd.String("email", "", "The user's email.")
	addUserAdmin := addUserCmd.Bool("admin", false, "Grant admin rights.")
	addUserMod := addUserCmd.Bool("moderator", false, "Grant moderator rights.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordCmd.SetOutput(cli.out)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The user's username or email. The password will be prompted next.")

	loadCoursesCmd := flag.NewFlagSet("loadcourses", flag.ContinueOnError)
	loadCoursesCmd.SetOutput(cli.out)
	loadCoursesFile := loadCoursesCmd.String("file", "", "The YAML file listing the courses.")
	loadCoursesMod := loadCoursesCmd.String("mod", "", "Username or email of the responsible moderator.")

	exportStatsCmd := flag.NewFlagSet("exportstats", flag.ContinueOnError)
	exportStatsCmd.SetOutput(cli.out)
	exportStatsOut := exportStatsCmd.String("out", "statistics.xlsx", "The spreadsheet to write.")
	exportStatsEmail := exportStatsCmd.Bool("email", false, "Email the spreadsheet to the admins.")

	switch args[1] {
	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *addUserName == "" || (*addUserUname == "" && *addUserEmail == "") {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword("Enter password:")
		if err != nil {
			return err
		}
		if pwd == "" {
			addUserCmd.Usage()
			return errHelp
		}
		var roles []string
		if *addUserAdmin {
			roles = append(roles, user.RoleAdmin)
		}
		if *addUserMod {
			roles = append(roles, user.RoleModerator)
		}
		return cli.addUser(user.NewUser{
			Name:            *addUserName,
			Username:        *addUserUname,
			Email:           *addUserEmail,
			Password:        pwd,
			PasswordConfirm: pwd,
			Roles:           roles,
		})
	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *resetPasswordUname == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword("Enter password:")
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*resetPasswordUname, pwd)
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "loadcourses":
		if err := loadCoursesCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *loadCoursesFile == "" || *loadCoursesMod == "" {
			loadCoursesCmd.Usage()
			return errHelp
		}
		f, err := os.Open(*loadCoursesFile)
		if err != nil {
			return err
		}
		defer f.Close()
		return cli.loadCourses(f, *loadCoursesMod)
	case "exportstats":
		if err := exportStatsCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		return cli.exportStats(*exportStatsOut, *exportStatsEmail)
	default:
		cli.printUsage()
		return errHelp
	}
}
