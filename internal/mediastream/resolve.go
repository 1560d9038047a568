package mediastream

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// ErrUnsatisfiable reports a range that cannot be served for the file. The
// caller answers with 416 and "Content-Range: bytes */<total>".
var ErrUnsatisfiable = errors.New("range not satisfiable")

// Plan is the validated byte window for one response.
type Plan struct {
	Offset  int64
	Length  int64
	Total   int64
	Partial bool
}

// Status returns the HTTP status code for the plan.
func (p Plan) Status() int {
	if p.Partial {
		return http.StatusPartialContent
	}
	return http.StatusOK
}

// ContentRange renders the Content-Range header value, or "" for a full plan.
func (p Plan) ContentRange() string {
	if !p.Partial {
		return ""
	}
	return fmt.Sprintf("bytes %d-%d/%d", p.Offset, p.Offset+p.Length-1, p.Total)
}

// UnsatisfiedRange renders the Content-Range value sent with a 416.
func UnsatisfiedRange(total int64) string {
	return fmt.Sprintf("bytes */%d", total)
}

// Resolve computes the serving plan for a Range header against a file of the
// given size. Only the first range of a multi-range request is honored. A
// header in a unit other than bytes is ignored and the whole file is served.
func Resolve(header string, total int64) (Plan, error) {
	full := Plan{Offset: 0, Length: total, Total: total}
	header = strings.TrimSpace(header)
	if header == "" {
		return full, nil
	}

	unit, spec, ok := strings.Cut(header, "=")
	if !ok || !strings.EqualFold(strings.TrimSpace(unit), "bytes") {
		return full, nil
	}
	if first, _, multi := strings.Cut(spec, ","); multi {
		spec = first
	}
	spec = strings.TrimSpace(spec)

	startRaw, endRaw, ok := strings.Cut(spec, "-")
	if !ok {
		return Plan{}, fmt.Errorf("%w: malformed range %q", ErrUnsatisfiable, spec)
	}
	startRaw = strings.TrimSpace(startRaw)
	endRaw = strings.TrimSpace(endRaw)

	if startRaw == "" {
		// Suffix form: last N bytes.
		n, err := parseBound(endRaw)
		if err != nil {
			return Plan{}, err
		}
		if n == 0 || total == 0 {
			return Plan{}, fmt.Errorf("%w: empty suffix range", ErrUnsatisfiable)
		}
		if n > total {
			n = total
		}
		return Plan{Offset: total - n, Length: n, Total: total, Partial: true}, nil
	}

	start, err := parseBound(startRaw)
	if err != nil {
		return Plan{}, err
	}
	if start >= total {
		return Plan{}, fmt.Errorf("%w: start %d beyond size %d", ErrUnsatisfiable, start, total)
	}
	end := total - 1
	if endRaw != "" {
		requested, err := parseBound(endRaw)
		if err != nil {
			return Plan{}, err
		}
		if requested < start {
			return Plan{}, fmt.Errorf("%w: end %d before start %d", ErrUnsatisfiable, requested, start)
		}
		if requested < end {
			end = requested
		}
	}
	return Plan{Offset: start, Length: end - start + 1, Total: total, Partial: true}, nil
}

func parseBound(raw string) (int64, error) {
	if raw == "" || strings.ContainsAny(raw, "+-") {
		return 0, fmt.Errorf("%w: malformed bound %q", ErrUnsatisfiable, raw)
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("%w: malformed bound %q", ErrUnsatisfiable, raw)
	}
	return value, nil
}
