package saver

import "log/slog"

// ErrorTitle is the title passed to a [Reporter] for save failures.
const ErrorTitle = "File Error"

// Reporter presents a failure to the user.
type Reporter interface {
	ReportError(title, message string)
}

// ReporterFunc adapts a plain function to [Reporter].
type ReporterFunc func(title, message string)

// ReportError calls f(title, message).
func (f ReporterFunc) ReportError(title, message string) { f(title, message) }

// LogReporter reports failures to a structured logger, or to the default
// slog logger when Logger is nil.
type LogReporter struct {
	Logger *slog.Logger
}

// ReportError logs message at error level.
func (l LogReporter) ReportError(title, message string) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Error(message, "title", title)
}

// finalizeReport finalizes s and hands a failure to r.
func finalizeReport(s Session, r Reporter) error {
	err := s.Finalize()
	if err != nil && r != nil {
		r.ReportError(ErrorTitle, err.Error())
	}
	return err
}
