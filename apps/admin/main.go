package main

import (
	"log"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/clonecademy/clonecademy/core"
	"github.com/clonecademy/clonecademy/core/course"
	"github.com/clonecademy/clonecademy/core/user"
	emailsvc "github.com/clonecademy/clonecademy/services/email"
	logsvc "github.com/clonecademy/clonecademy/services/logger"
	"github.com/clonecademy/clonecademy/storage/database"
	"github.com/clonecademy/clonecademy/storage/database/sqlxrepos"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)

	// set up DB
	if err := database.CreateIfNotExist(conf); err != nil {
		logger.Fatal("creating database", err)
	}
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal("opening database", err)
	}

	// set up services
	var mailSvc core.EmailService
	if conf.Debug || conf.SendgridAPIKey == "" {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	usrRepo := sqlxrepos.NewUserRepository(db)
	courseRepo := sqlxrepos.NewCourseRepository(db)

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	course.InitValidators(validate, translator)

	// start CLI
	cli := commandLine{
		db:         db,
		conf:       conf,
		logger:     logger,
		out:        os.Stdout,
		validate:   validate,
		mailSvc:    mailSvc,
		usrRepo:    usrRepo,
		usrSvc:     user.NewService(usrRepo, mailSvc, conf, logger),
		courseRepo: courseRepo,
		courseSvc:  course.NewService(courseRepo, logger),
	}
	err = cli.run(os.Args)
	emailsvc.Wait()

	_ = db.Close()
	logger.Close()
	if err != nil {
		if err != errHelp {
			logger.Error("admin command failed: "+err.Error(), err)
		}
		os.Exit(1)
	}
}
