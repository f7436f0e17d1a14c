package logsvc

import (
	"log"

	"github.com/google/uuid"
	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"

	"github.com/trezcool/moodle/core"
	"github.com/trezcool/moodle/core/moodle"
)

// RollbarLogger reports to Rollbar and prints to a ConsoleLogger.
type RollbarLogger struct {
	console *ConsoleLogger
	runID   string
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(std *log.Logger, conf *core.Config) *RollbarLogger {
	runID := uuid.New().String()
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)
	rollbar.SetCustom(map[string]interface{}{"run_id": runID, "moodle_url": conf.Moodle.BaseURL})
	if conf.Moodle.Username != "" {
		rollbar.SetPerson(conf.Moodle.Username, conf.Moodle.Username, "")
	}
	rollbar.SetEnabled(conf.RollbarToken != "")
	return &RollbarLogger{
		console: NewConsoleLogger(std, conf.Debug),
		runID:   runID,
	}
}

func (l RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

// RunID identifies this invocation in Rollbar items.
func (l RollbarLogger) RunID() string { return l.runID }

// Close waits for queued items to be sent.
func (l RollbarLogger) Close() {
	rollbar.Wait()
}

// expected fmt: msg | error, map[string]interface{}, moodle.User
func (l RollbarLogger) prepare(msg string, args []interface{}) []interface{} {
	newArgs := make([]interface{}, 0, len(args)+1)
	newArgs = append(newArgs, msg)
	extras := make(map[string]interface{})
	for _, arg := range args {
		switch a := arg.(type) {
		case moodle.User:
			extras["moodle_user_id"] = a.ID
			extras["moodle_user"] = a.String()
		case map[string]interface{}:
			for k, v := range a {
				extras[k] = v
			}
		default:
			newArgs = append(newArgs, arg)
		}
	}
	if len(extras) > 0 {
		newArgs = append(newArgs, extras)
	}
	return newArgs
}

func (l RollbarLogger) Debug(msg string, args ...interface{}) {
	rollbar.Debug(l.prepare(msg, args)...)
	l.console.Debug(msg, args...)
}

func (l RollbarLogger) Info(msg string, args ...interface{}) {
	rollbar.Info(l.prepare(msg, args)...)
	l.console.Info(msg, args...)
}

func (l RollbarLogger) Warn(msg string, args ...interface{}) {
	rollbar.Warning(l.prepare(msg, args)...)
	l.console.Warn(msg, args...)
}

func (l RollbarLogger) Error(msg string, args ...interface{}) {
	rollbar.Error(l.prepare(msg, args)...)
	l.console.Error(msg, args...)
}

func (l RollbarLogger) Fatal(msg string, args ...interface{}) {
	rollbar.Critical(l.prepare(msg, args)...)
	rollbar.Wait()
	l.console.Fatal(msg, args...)
}
