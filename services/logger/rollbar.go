package logsvc

import (
	"fmt"
	"log"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"

	"github.com/trezcool/schoolbus/core"
)

type level int

const (
	levelDebug level = iota
	levelInfo
	levelWarn
	levelError
	levelFatal
)

var levelNames = map[level]string{
	levelDebug: "DEBUG",
	levelInfo:  "INFO",
	levelWarn:  "WARN",
	levelError: "ERROR",
	levelFatal: "FATAL",
}

// RollbarLogger reports to Rollbar and mirrors every entry to a std logger.
type RollbarLogger struct {
	std      *log.Logger
	minLevel level
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(std *log.Logger, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)

	// frame loop & feed debug entries are only wanted while developing
	minLevel := levelInfo
	if conf.Debug {
		minLevel = levelDebug
	}
	return &RollbarLogger{std: std, minLevel: minLevel}
}

func (l RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

// expected fmt: msg | error, map[string]interface{}, core.Actor
func (l RollbarLogger) prepare(msg string, args []interface{}) (rbArgs, printArgs []interface{}) {
	var actorSet bool
	rbArgs = make([]interface{}, 0, len(args)+1)
	rbArgs = append(rbArgs, msg)
	for _, arg := range args {
		if actor, ok := arg.(core.Actor); ok {
			if !actorSet { // only one person per item
				rollbar.SetPerson(actor.ID, actor.Username, actor.Email)
				actorSet = true
			}
			continue
		}
		rbArgs = append(rbArgs, arg)
		printArgs = append(printArgs, arg)
	}
	if !actorSet {
		rollbar.ClearPerson()
	}
	return rbArgs, printArgs
}

func (l RollbarLogger) print(lvl level, msg string, args []interface{}) {
	l.std.Println(fmt.Sprintf("%s: %s", levelNames[lvl], msg))
	for _, arg := range args {
		l.std.Printf("%+v\n", arg)
	}
}

func (l RollbarLogger) log(lvl level, report func(...interface{}), msg string, args []interface{}) {
	if lvl < l.minLevel {
		return
	}
	rbArgs, printArgs := l.prepare(msg, args)
	report(rbArgs...)
	l.print(lvl, msg, printArgs)
}

func (l RollbarLogger) Debug(msg string, args ...interface{}) {
	l.log(levelDebug, rollbar.Debug, msg, args)
}

func (l RollbarLogger) Info(msg string, args ...interface{}) {
	l.log(levelInfo, rollbar.Info, msg, args)
}

func (l RollbarLogger) Warn(msg string, args ...interface{}) {
	l.log(levelWarn, rollbar.Warning, msg, args)
}

func (l RollbarLogger) Error(msg string, args ...interface{}) {
	l.log(levelError, rollbar.Error, msg, args)
}

func (l RollbarLogger) Fatal(msg string, args ...interface{}) {
	l.log(levelFatal, rollbar.Critical, msg, args)
	rollbar.Wait()
	l.std.Fatal(msg)
}
