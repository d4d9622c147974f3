package errors

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// FormatForCLI renders err for a terminal: the message, the hint and the
// code. verbose adds the cause chain and details.
func FormatForCLI(err error, verbose bool) string {
	if err == nil {
		return ""
	}

	se := asSyncError(err)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Error: %s\n", se.Message)
	if se.Suggestion != "" {
		fmt.Fprintf(&sb, "  Hint: %s\n", se.Suggestion)
	}
	if verbose {
		if se.Cause != nil {
			fmt.Fprintf(&sb, "  Cause: %s\n", se.Cause)
		}
		for _, k := range sortedKeys(se.Details) {
			fmt.Fprintf(&sb, "  %s: %s\n", k, se.Details[k])
		}
	}
	fmt.Fprintf(&sb, "  Code: %s\n", se.Code)
	return sb.String()
}

// LogAttrs returns slog attributes describing err. Plain errors give a
// single "error" attribute.
func LogAttrs(err error) []slog.Attr {
	if err == nil {
		return nil
	}

	var se *SyncError
	if !errors.As(err, &se) {
		return []slog.Attr{slog.String("error", err.Error())}
	}

	attrs := []slog.Attr{
		slog.String("error", err.Error()),
		slog.String("code", se.Code),
		slog.String("category", string(se.Category)),
		slog.Bool("retryable", se.Retryable),
	}
	if se.Cause != nil {
		attrs = append(attrs, slog.String("cause", se.Cause.Error()))
	}
	for _, k := range sortedKeys(se.Details) {
		attrs = append(attrs, slog.String("detail_"+k, se.Details[k]))
	}
	return attrs
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// asSyncError returns the first SyncError in err's chain, or wraps err as
// an internal error. The outer message is kept so wrapping context is not
// lost.
func asSyncError(err error) *SyncError {
	var se *SyncError
	if !errors.As(err, &se) {
		return Wrap(ErrCodeInternal, err)
	}
	if outer := err.Error(); outer != se.Error() {
		cp := *se
		cp.Message = strings.Replace(outer, se.Error(), se.Message, 1)
		return &cp
	}
	return se
}
