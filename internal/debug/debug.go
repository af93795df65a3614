// Package debug is the leveled logger shared by the whole program.
// Every helper is a no-op below its level, so calls can stay in hot paths.
package debug

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

// Debug levels
const (
	LevelOff     = 0 // No output
	LevelInfo    = 1 // Phase changes, startup summary, errors
	LevelLive    = 2 // One line per control tick
	LevelVerbose = 3 // Estimator, controller and actuator details
	LevelTrace   = 4 // GPIO and PWM writes
)

var (
	mu     sync.RWMutex
	level  int
	logger = log.New(os.Stdout, "[PanTrack] ", log.LstdFlags|log.Lmicroseconds)
)

// Init sets the debug level (0-4). Values outside the range are clamped.
func Init(debugLevel int) {
	mu.Lock()
	defer mu.Unlock()
	level = max(LevelOff, min(debugLevel, LevelTrace))
}

// SetOutput redirects debug output, e.g. to tee it into the web dashboard.
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

// Level returns the current debug level.
func Level() int {
	mu.RLock()
	defer mu.RUnlock()
	return level
}

// IsEnabled reports whether messages of minLevel are printed.
func IsEnabled(minLevel int) bool {
	return minLevel > LevelOff && Level() >= minLevel
}

func logf(minLevel int, tag, format string, args ...any) {
	if !IsEnabled(minLevel) {
		return
	}
	logger.Printf(tag+" "+format, args...)
}

func banner(minLevel int, rule, title string) {
	if !IsEnabled(minLevel) {
		return
	}
	logger.Print(rule)
	logger.Printf("  %s", title)
	logger.Print(rule)
}

// Info prints an important message (level 1).
func Info(format string, args ...any) { logf(LevelInfo, "[INFO]", format, args...) }

// Value prints a named value (level 1).
func Value(name string, value any) { logf(LevelInfo, "[INFO]  ", "%s = %v", name, value) }

// Error prints err (level 1).
func Error(err error) { logf(LevelInfo, "[ERROR]", "%v", err) }

// Phase prints a tracking phase transition (level 1).
func Phase(tick int, from, to string) {
	logf(LevelInfo, "[INFO]", "Tick %d: %s -> %s", tick, from, to)
}

// Summary prints a banner (level 1).
func Summary(title string) {
	banner(LevelInfo, "═══════════════════════════════════════", title)
}

// Tick prints the commanded angles of one control tick (level 2).
func Tick(tick int, pan, tilt float64, lost int) {
	logf(LevelLive, "[LIVE]", "Tick %d: pan=%.2f tilt=%.2f lost=%d", tick, pan, tilt, lost)
}

// Verbose prints a detail message (level 3).
func Verbose(format string, args ...any) { logf(LevelVerbose, "[VERBOSE]", format, args...) }

// PrintStruct prints v with field names (level 3).
func PrintStruct(name string, v any) { logf(LevelVerbose, "[VERBOSE]", "%s: %+v", name, v) }

// Step prints a numbered startup step (level 3).
func Step(num int, description string) {
	logf(LevelVerbose, "[VERBOSE]", "Step %d: %s", num, description)
}

// Section prints a section separator (level 3).
func Section(name string) {
	banner(LevelVerbose, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━", name)
}

// Trace prints a low level message (level 4).
func Trace(format string, args ...any) { logf(LevelTrace, "[TRACE]", format, args...) }

// GPIO prints a pin operation (level 4).
func GPIO(operation string, pin int, value any) {
	logf(LevelTrace, "[GPIO]", "%s pin=%d value=%v", operation, pin, value)
}

// Fmt formats only when tracing is enabled, so callers can build GPIO
// values without allocating on every write.
func Fmt(format string, args ...any) string {
	if !IsEnabled(LevelTrace) {
		return ""
	}
	return fmt.Sprintf(format, args...)
}
