// Package logger provides structured logging with per-file context
package logger

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

// Logger interface for abstracted logging
type Logger interface {
	Info(message string, fields ...Field)
	Error(message string, fields ...Field)
	Warn(message string, fields ...Field)
	Debug(message string, fields ...Field)
	Success(message string, fields ...Field)
	WithFile(path string) Logger
}

// Field represents a structured logging field
type Field struct {
	Key   string
	Value interface{}
}

// WithField creates a new field
func WithField(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// WithError creates an "error" field, omitting nil errors
func WithError(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

// FileLogger implements Logger with source file awareness
type FileLogger struct {
	logger *logrus.Logger
	file   string
	mu     sync.RWMutex
}

// CustomFormatter formats logs with colors
type CustomFormatter struct {
	TimestampFormat string
	DisableColors   bool
}

const marker = "👻"

// Format implements logrus.Formatter
func (f *CustomFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	timestamp := entry.Time.Format(f.TimestampFormat)

	var levelColor *color.Color
	var levelText string

	switch entry.Level {
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		levelColor = color.New(color.FgRed, color.Bold)
		levelText = "ERROR"
	case logrus.WarnLevel:
		levelColor = color.New(color.FgYellow, color.Bold)
		levelText = "WARN"
	case logrus.InfoLevel:
		levelColor = color.New(color.FgCyan)
		levelText = "INFO"
	case logrus.DebugLevel, logrus.TraceLevel:
		levelColor = color.New(color.FgWhite, color.Faint)
		levelText = "DEBUG"
	default:
		levelColor = color.New(color.FgGreen)
		levelText = "SUCCESS"
	}

	data := make(map[string]interface{}, len(entry.Data))
	for k, v := range entry.Data {
		data[k] = v
	}

	filePrefix := ""
	if file, ok := data["file"]; ok {
		if f.DisableColors {
			filePrefix = fmt.Sprintf("[%v] ", file)
		} else {
			filePrefix = fmt.Sprintf("[%s] ", color.New(color.FgBlue).Sprint(file))
		}
		delete(data, "file")
	}

	var output string
	if f.DisableColors {
		output = fmt.Sprintf("%s [%s] %s: %s%s", marker, timestamp, levelText, filePrefix, entry.Message)
	} else {
		output = fmt.Sprintf("%s [%s] %s: %s%s",
			marker,
			timestamp,
			levelColor.Sprint(levelText),
			filePrefix,
			entry.Message,
		)
	}

	if len(data) > 0 {
		keys := make([]string, 0, len(data))
		for k := range data {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%v", k, data[k]))
		}
		fields := " {" + strings.Join(parts, ", ") + "}"
		if f.DisableColors {
			output += fields
		} else {
			output += color.New(color.FgWhite, color.Faint).Sprint(fields)
		}
	}

	return []byte(output + "\n"), nil
}

// ParseLevel maps a verbosity name to a logrus level, defaulting to info
func ParseLevel(level string) logrus.Level {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return logrus.InfoLevel
	}
	return parsed
}

// CreateLogger creates a logger writing to output and, when logFile is set,
// appending uncolored entries to that file
func CreateLogger(output io.Writer, logFile, logLevel string, disableColors bool) (Logger, error) {
	log := logrus.New()
	log.SetLevel(ParseLevel(logLevel))
	log.SetFormatter(&CustomFormatter{
		TimestampFormat: "15:04:05",
		DisableColors:   disableColors,
	})
	log.SetOutput(output)

	if logFile != "" {
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		log.AddHook(&fileHook{
			out:       file,
			formatter: &CustomFormatter{TimestampFormat: "2006-01-02 15:04:05", DisableColors: true},
		})
	}

	return &FileLogger{logger: log}, nil
}

// fileHook mirrors entries into a file with its own formatter
type fileHook struct {
	mu        sync.Mutex
	out       io.Writer
	formatter logrus.Formatter
}

func (h *fileHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *fileHook) Fire(entry *logrus.Entry) error {
	line, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.out.Write(line)
	return err
}

// CreateLoggerWithOutput creates a logger with custom output (for testing)
func CreateLoggerWithOutput(logLevel string, output io.Writer) Logger {
	log := logrus.New()
	log.SetLevel(ParseLevel(logLevel))
	log.SetFormatter(&CustomFormatter{
		TimestampFormat: "15:04:05",
		DisableColors:   true,
	})
	log.SetOutput(output)

	return &FileLogger{logger: log}
}

// WithFile creates a new logger tagged with a source file
func (l *FileLogger) WithFile(path string) Logger {
	return &FileLogger{
		logger: l.logger,
		file:   path,
	}
}

func (l *FileLogger) convertFields(fields []Field) logrus.Fields {
	result := make(logrus.Fields, len(fields)+1)
	if l.file != "" {
		result["file"] = l.file
	}
	for _, f := range fields {
		result[f.Key] = f.Value
	}
	return result
}

// Info logs an info message
func (l *FileLogger) Info(message string, fields ...Field) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	l.logger.WithFields(l.convertFields(fields)).Info(message)
}

// Error logs an error message
func (l *FileLogger) Error(message string, fields ...Field) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	l.logger.WithFields(l.convertFields(fields)).Error(message)
}

// Warn logs a warning message
func (l *FileLogger) Warn(message string, fields ...Field) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	l.logger.WithFields(l.convertFields(fields)).Warn(message)
}

// Debug logs a debug message
func (l *FileLogger) Debug(message string, fields ...Field) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	l.logger.WithFields(l.convertFields(fields)).Debug(message)
}

// Success logs a success message (info level with special formatting)
func (l *FileLogger) Success(message string, fields ...Field) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	l.logger.WithFields(l.convertFields(fields)).Info("✅ " + message)
}

// nopLogger discards everything
type nopLogger struct{}

// Nop returns a Logger that discards all output
func Nop() Logger { return nopLogger{} }

func (nopLogger) Info(string, ...Field)    {}
func (nopLogger) Error(string, ...Field)   {}
func (nopLogger) Warn(string, ...Field)    {}
func (nopLogger) Debug(string, ...Field)   {}
func (nopLogger) Success(string, ...Field) {}
func (n nopLogger) WithFile(string) Logger { return n }

// ConsoleLogger provides plain user-facing output for the CLI
type ConsoleLogger struct {
	out io.Writer
	err io.Writer
}

// NewConsoleLogger creates a console logger for CLI output
func NewConsoleLogger(out, errOut io.Writer) *ConsoleLogger {
	return &ConsoleLogger{out: out, err: errOut}
}

// Info prints info message
func (c *ConsoleLogger) Info(message string) {
	fmt.Fprintf(c.out, "%s %s %s\n", marker, color.CyanString("[wraith]"), message)
}

// Error prints error message
func (c *ConsoleLogger) Error(message string) {
	fmt.Fprintf(c.err, "%s %s %s\n", marker, color.RedString("[wraith]"), message)
}

// Warn prints warning message
func (c *ConsoleLogger) Warn(message string) {
	fmt.Fprintf(c.out, "%s %s %s\n", marker, color.YellowString("[wraith]"), message)
}

// Success prints success message
func (c *ConsoleLogger) Success(message string) {
	fmt.Fprintf(c.out, "%s %s ✅ %s\n", marker, color.GreenString("[wraith]"), message)
}
