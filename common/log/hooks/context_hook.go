package hooks

import (
	"runtime/debug"
	"strings"

	"github.com/sirupsen/logrus"
)

type contextHook struct {
}

func NewContextHook() contextHook {
	return contextHook{}
}

func (hook contextHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire tags the entry with the file:line of the logging call site, found by
// walking the stack past this hook and the logrus machinery.
func (hook contextHook) Fire(entry *logrus.Entry) error {
	stack := debug.Stack()
	lines := strings.Split(string(stack), "\n")
	foundLoggerBlock := false
	incr := 1
	for i := 0; i < len(lines); i = i + incr {
		if strings.Contains(lines[i], "context_hook.go:") {
			foundLoggerBlock = true
			incr = 2
			continue
		}
		if !foundLoggerBlock || strings.Contains(lines[i], "/logrus") {
			continue
		}
		ctx := strings.Split(lines[i], "refpin/")
		entry.Data["file:line"] = strings.TrimSpace(ctx[len(ctx)-1])
		break
	}
	return nil
}
