package logger

import (
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

// callerHook points entry.Caller at the first frame outside logrus and this
// package, so the Entry/Log wrappers never show up as the call site.
type callerHook struct {
	skip []string
}

func newCallerHook() *callerHook {
	return &callerHook{skip: []string{"github.com/sirupsen/logrus", packagePath()}}
}

// packagePath returns the import path of this package, e.g.
// "tradersentiment/logger".
func packagePath() string {
	pc, _, _, _ := runtime.Caller(0)
	name := runtime.FuncForPC(pc).Name()
	return name[:strings.LastIndex(name, ".")]
}

func (h *callerHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *callerHook) Fire(entry *logrus.Entry) error {
	if frame, ok := h.callSite(); ok {
		entry.Caller = &frame
	}
	return nil
}

func (h *callerHook) callSite() (runtime.Frame, bool) {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if frame.Function != "" && !h.skipped(frame.Function) {
			return frame, true
		}
		if !more {
			return runtime.Frame{}, false
		}
	}
}

// skipped reports whether fn belongs to one of the wrapped packages. Sub
// packages such as logrus/hooks are skipped too.
func (h *callerHook) skipped(fn string) bool {
	for _, p := range h.skip {
		if strings.HasPrefix(fn, p+".") || strings.HasPrefix(fn, p+"/") {
			return true
		}
	}
	return false
}
