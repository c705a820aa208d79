package logger

import "context"

// recordingLogger captures emitted lines for assertions in tests instead of
// writing to stdout.
type recordingLogger struct {
	module string
	lines  *[]Line
}

// Line is one recorded log emission.
type Line struct {
	Module string
	Level  Level
	Msg    string
	Fields []Field
}

// NewRecording returns a Logger that appends every emission to the returned
// slice pointer, for use in tests that assert on log content.
func NewRecording() (Logger, *[]Line) {
	lines := &[]Line{}
	return &recordingLogger{lines: lines}, lines
}

func (r *recordingLogger) Module(name string) Logger {
	mod := name
	if r.module != "" {
		mod = r.module + "." + name
	}
	return &recordingLogger{module: mod, lines: r.lines}
}

func (r *recordingLogger) With(fields ...Field) Logger { return r }

func (r *recordingLogger) WithContext(_ context.Context) Logger {
	return r
}

func (r *recordingLogger) Log(level Level, msg string, fields ...Field) {
	*r.lines = append(*r.lines, Line{Module: r.module, Level: level, Msg: msg, Fields: fields})
}

func (r *recordingLogger) Debug(msg string, fields ...Field)    { r.Log(LevelDebug, msg, fields...) }
func (r *recordingLogger) Info(msg string, fields ...Field)     { r.Log(LevelInfo, msg, fields...) }
func (r *recordingLogger) Warn(msg string, fields ...Field)     { r.Log(LevelWarn, msg, fields...) }
func (r *recordingLogger) Error(msg string, fields ...Field)    { r.Log(LevelError, msg, fields...) }
func (r *recordingLogger) Critical(msg string, fields ...Field) { r.Log(LevelCritical, msg, fields...) }
