package log

import "log/slog"

func InstanceID[T ~string](id T) slog.Attr {
	return slog.String("instance_id", string(id))
}

func CorrelationID[T ~int64](id T) slog.Attr {
	return slog.Int64("correlation_id", int64(id))
}

func Orchestration(name string) slog.Attr {
	return slog.String("orchestration", name)
}

func WorkUnit(name string) slog.Attr {
	return slog.String("work_unit", name)
}

func Status[T ~string](status T) slog.Attr {
	return slog.String("status", string(status))
}

func EventType[T ~string](typ T) slog.Attr {
	return slog.String("event_type", string(typ))
}

func Error(err error) slog.Attr {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return slog.String("error", msg)
}

func ErrorString(msg string) slog.Attr {
	return slog.String("error", msg)
}
