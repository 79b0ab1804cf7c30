package logger

import (
	"log/slog"
)

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// FlagKey records the flag key under the key "flag_key".
func FlagKey(key string) slog.Attr {
	return slog.String("flag_key", key)
}

// UserID records the user identifier under the key "user_id".
// If id is nil, it returns an empty Attr.
func UserID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("user_id", id)
}

// EnvironmentID records the environment identifier under the key "environment_id".
// If id is nil, it returns an empty Attr.
func EnvironmentID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("environment_id", id)
}

// ProjectID records the project identifier under the key "project_id".
// If id is nil, it returns an empty Attr.
func ProjectID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("project_id", id)
}

// Reason records a decision reason under the key "reason".
func Reason(reason any) slog.Attr {
	return slog.Any("reason", reason)
}

// Path records the request path under the key "path".
func Path(path string) slog.Attr {
	return slog.String("path", path)
}

// Method records the HTTP method under the key "method".
func Method(method string) slog.Attr {
	return slog.String("method", method)
}

// Code records an error or status code under the key "code".
func Code(code any) slog.Attr {
	return slog.Any("code", code)
}

// Duration records a duration under the key "duration".
func Duration(d any) slog.Attr {
	return slog.Any("duration", d)
}
