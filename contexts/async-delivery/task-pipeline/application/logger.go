package application

import "log/slog"

const ModuleName = "async-delivery/task-pipeline"

func ResolveLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}
