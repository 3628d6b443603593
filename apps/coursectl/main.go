package main

import (
	"fmt"
	"log"
	"os"

	"github.com/clonecademy/clonecademy/core"
	logsvc "github.com/clonecademy/clonecademy/services/logger"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stderr, "COURSECTL : ", log.LstdFlags|log.Lshortfile),
		conf,
	)

	a := &app{conf: conf, logger: logger, in: os.Stdin, out: os.Stdout}
	err := newRootCmd(a).Execute()
	logger.Close()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
