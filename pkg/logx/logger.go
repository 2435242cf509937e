package logx

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Fields is a set of structured key/value pairs attached to a line.
type Fields map[string]any

// record is one formatted log line before encoding.
type record struct {
	Level   Level
	Message string
	Fields  Fields
	Err     error
	Time    time.Time
}

// Logger writes leveled, structured lines to a single writer.
type Logger struct {
	mu       sync.Mutex
	config   Config
	writer   io.Writer
	exitFunc func(int)
}

func NewLogger(cfg *Config) *Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	w := cfg.Output
	if w == nil {
		w = os.Stdout
	}
	return &Logger{
		config:   *cfg,
		writer:   w,
		exitFunc: os.Exit,
	}
}

func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	l.config.Level = level
	l.mu.Unlock()
}

func (l *Logger) Level() Level {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.config.Level
}

// SetOutput redirects output. Tests point it at a bytes.Buffer.
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	l.writer = w
	l.mu.Unlock()
}

func (l *Logger) log(level Level, msg string, fields Fields, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.config.Level.allows(level) {
		return
	}

	rec := record{Level: level, Message: msg, Fields: fields, Err: err, Time: time.Now()}

	var line []byte
	if l.config.Format == FormatJSON {
		line = encodeJSON(rec)
	} else {
		line = encodeConsole(rec, l.config.EnableColors, l.config.TimeFormat)
	}

	if _, werr := l.writer.Write(line); werr != nil {
		fmt.Fprintf(os.Stderr, "logx: write failed: %v\n", werr)
	}
}

func (l *Logger) exit(code int) {
	l.exitFunc(code)
}

func (l *Logger) WithField(key string, value any) *Entry {
	return newEntry(l).WithField(key, value)
}

func (l *Logger) WithFields(fields Fields) *Entry {
	return newEntry(l).WithFields(fields)
}

func (l *Logger) WithError(err error) *Entry {
	return newEntry(l).WithError(err)
}
