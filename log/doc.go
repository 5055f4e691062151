// Package log provides the leveled logging interface shared by fabflow components.
//
// The default implementation wraps github.com/kataras/golog:
//
//	logger := log.New(os.Stderr, log.LogLevelDebug)
//	logger.Info("thread %s suspended at %s", threadID, node)
//
// Components accept a Logger through their options and fall back to
// GetDefaultLogger when none is given. NoOpLogger silences a component in tests.
package log
