package logging

import (
	"strings"
	"sync"

	"go.uber.org/zap/zapcore"
)

// manager tracks every logger instantiated by GetLogger, so that
// UpdateLogLevels can retarget log levels process-wide without the
// caller needing a reference to each component's logger.
type manager struct {
	loggers  map[string]*Logger
	defLevel zapcore.Level
}

var (
	mgr      *manager
	mgrMu    sync.RWMutex
	initOnce sync.Once
)

func ensureManager() {
	initOnce.Do(func() {
		mgr = &manager{
			loggers:  make(map[string]*Logger),
			defLevel: zapcore.InfoLevel,
		}
	})
}

// GetLogger returns the logger for the named component, creating it on
// first use with the manager's current default level.
func GetLogger(component string) *Logger {
	ensureManager()

	mgrMu.RLock()
	if l, ok := mgr.loggers[component]; ok {
		mgrMu.RUnlock()
		return l
	}
	mgrMu.RUnlock()

	mgrMu.Lock()
	defer mgrMu.Unlock()

	if l, ok := mgr.loggers[component]; ok {
		return l
	}

	l := newLogger(component)
	l.SetLevel(mgr.defLevel)
	mgr.loggers[component] = l
	return l
}

func parseLevel(s string) (zapcore.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fatal":
		return zapcore.FatalLevel, true
	case "error":
		return zapcore.ErrorLevel, true
	case "warn", "warning":
		return zapcore.WarnLevel, true
	case "info":
		return zapcore.InfoLevel, true
	case "debug", "trace":
		return zapcore.DebugLevel, true
	default:
		return zapcore.InfoLevel, false
	}
}

// UpdateLogLevels applies a "component:level;component:level" string,
// where the special component name "." sets the default level applied
// to every component without an explicit override.
func UpdateLogLevels(spec string) error {
	ensureManager()

	spec = strings.NewReplacer(" ", "", "\t", "", "\n", "").Replace(spec)
	if spec == "" {
		return nil
	}

	mgrMu.Lock()
	defer mgrMu.Unlock()

	explicit := make(map[string]bool)
	var defaultLevel zapcore.Level
	hasDefault := false

	for _, entry := range strings.Split(spec, ";") {
		parts := strings.SplitN(entry, ":", 2)
		if len(parts) != 2 {
			continue
		}
		level, ok := parseLevel(parts[1])
		if !ok {
			continue
		}
		if parts[0] == "." {
			defaultLevel = level
			hasDefault = true
			continue
		}
		explicit[parts[0]] = true
		l, ok := mgr.loggers[parts[0]]
		if !ok {
			l = newLogger(parts[0])
			mgr.loggers[parts[0]] = l
		}
		l.SetLevel(level)
	}

	if hasDefault {
		mgr.defLevel = defaultLevel
		for name, l := range mgr.loggers {
			if !explicit[name] {
				l.SetLevel(defaultLevel)
			}
		}
	}

	return nil
}

// resetForTesting clears all manager state. Test-only.
func resetForTesting() {
	mgrMu.Lock()
	defer mgrMu.Unlock()
	mgr = nil
	initOnce = sync.Once{}
}
