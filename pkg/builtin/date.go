package builtin

import (
	"fmt"
	"strings"
	"time"

	"github.com/wehubfusion/kage/pkg/binding"
)

var namedLayouts = map[string]string{
	"ANSIC":       time.ANSIC,
	"UnixDate":    time.UnixDate,
	"RubyDate":    time.RubyDate,
	"RFC822":      time.RFC822,
	"RFC822Z":     time.RFC822Z,
	"RFC850":      time.RFC850,
	"RFC1123":     time.RFC1123,
	"RFC1123Z":    time.RFC1123Z,
	"RFC3339":     time.RFC3339,
	"RFC3339Nano": time.RFC3339Nano,
	"Kitchen":     time.Kitchen,
	"DateTime":    time.DateTime,
	"DateOnly":    time.DateOnly,
	"TimeOnly":    time.TimeOnly,
}

func init() {
	register("format_date", newFormatDate)
}

// layout resolves a named format or returns the value as a Go layout
func layout(format string) string {
	if l, ok := namedLayouts[format]; ok {
		return l
	}
	return format
}

// newFormatDate reparses value from in_format and renders it in out_format,
// optionally moving it between time zones. An empty value yields nil.
func newFormatDate(name string, opts Options) (binding.Callable, error) {
	inFormat := opts.GetString("in_format", "RFC3339")
	outFormat := opts.GetString("out_format", "RFC3339")
	inLayout, outLayout := layout(inFormat), layout(outFormat)

	var inLoc, outLoc *time.Location
	if tz := opts.GetString("in_timezone", ""); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, &OperationError{Kind: "format_date", Message: fmt.Sprintf("invalid input timezone '%s'", tz), Err: err}
		}
		inLoc = loc
	}
	if tz := opts.GetString("out_timezone", ""); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, &OperationError{Kind: "format_date", Message: fmt.Sprintf("invalid output timezone '%s'", tz), Err: err}
		}
		outLoc = loc
	}

	return newCallable(name, []string{"value"}, func(args binding.Args) (interface{}, error) {
		raw := strings.TrimSpace(toString(args["value"]))
		if raw == "" {
			return nil, nil
		}
		raw = normalizeDate(raw, inFormat)

		var (
			t   time.Time
			err error
		)
		if inLoc != nil {
			t, err = time.ParseInLocation(inLayout, raw, inLoc)
		} else {
			t, err = time.Parse(inLayout, raw)
		}
		if err != nil {
			return nil, &OperationError{Kind: "format_date", Message: fmt.Sprintf("'%s' does not match %s", raw, inFormat), Err: err}
		}
		if outLoc != nil {
			t = t.In(outLoc)
		}
		return t.Format(outLayout), nil
	}), nil
}

// normalizeDate completes partial DateTime values and expands compact
// YYYYMMDD dates
func normalizeDate(s, format string) string {
	switch format {
	case "DateTime":
		if len(s) == 10 && strings.Count(s, "-") == 2 {
			return s + " 00:00:00"
		}
		if len(s) == 16 && strings.Count(s, ":") == 1 {
			return s + ":00"
		}
	case "DateOnly":
		if len(s) == 8 && !strings.ContainsAny(s, "-/") {
			return s[:4] + "-" + s[4:6] + "-" + s[6:8]
		}
	}
	return s
}
