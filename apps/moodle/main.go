package main

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/trezcool/moodle/core"
	"github.com/trezcool/moodle/core/moodle"
	"github.com/trezcool/moodle/services/logger"
)

var logger *log.Logger

func main() {
	logger = log.New(os.Stderr, "MOODLE : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf, err := core.NewConfig()
	errAndDie(err)

	logSvc := logsvc.NewRollbarLogger(logger, conf)
	defer logSvc.Close()

	cli := commandLine{
		conf:   conf,
		client: moodle.NewClient(&http.Client{}, logSvc),
		logger: logSvc,
		out:    os.Stdout,
	}
	if err := cli.run(os.Args); err != nil {
		if !isUserError(err) {
			logSvc.Error("command failed", err)
		}
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		logSvc.Close()
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
