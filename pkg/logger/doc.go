// Package logger provides the structured logger used across davmigrate.
//
// It wraps zerolog behind a small Logger interface so that components take
// a Logger as a constructor argument and tests can substitute a TestLogger
// or a no-op logger.
//
//	if err := logger.Initialize(&cfg.Logging); err != nil {
//	    return err
//	}
//	log := logger.GetLogger().WithField("entity", "Account")
//	log.InfoWithFields("candidates loaded", map[string]interface{}{
//	    "count": len(files),
//	})
//
// Console output is coloured and human readable. When logging.file is set,
// JSON lines are appended to that file as well.
package logger
