package bridge

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// compareArgs is the decoded {src, dest, threshold?} argument shape.
type compareArgs struct {
	src, dest    []byte
	threshold    int
	hasThreshold bool
}

func parseCompareArgs(command string, args any, allowThreshold bool) (compareArgs, error) {
	var out compareArgs
	m, ok := args.(map[string]any)
	if !ok {
		return out, ErrInvalidArgs(command, fmt.Sprintf("expected object {src, dest}, got %T", args))
	}
	var err error
	if out.src, err = templateArg(command, m, "src"); err != nil {
		return out, err
	}
	if out.dest, err = templateArg(command, m, "dest"); err != nil {
		return out, err
	}
	if raw, ok := m["threshold"]; ok && allowThreshold && raw != nil {
		v, err := intArg(command, raw)
		if err != nil {
			return out, err
		}
		out.threshold, out.hasThreshold = v, true
	}
	return out, nil
}

func templateArg(command string, m map[string]any, key string) ([]byte, error) {
	raw, ok := m[key]
	if !ok || raw == nil {
		return nil, ErrInvalidArgs(command, key+" is required")
	}
	s, ok := raw.(string)
	if !ok {
		return nil, ErrInvalidArgs(command, fmt.Sprintf("%s must be a base64 string, got %T", key, raw))
	}
	b, err := DecodeTemplate(s)
	if err != nil {
		return nil, ErrInvalidArgs(command, key+": "+err.Error())
	}
	if len(b) == 0 {
		return nil, ErrInvalidArgs(command, key+" is empty")
	}
	return b, nil
}

// intArg accepts Go integers and integral JSON numbers within int32 range.
func intArg(command string, raw any) (int, error) {
	switch v := raw.(type) {
	case int:
		return int32Arg(command, int64(v))
	case int32:
		return int(v), nil
	case int64:
		return int32Arg(command, v)
	case float64:
		return floatArg(command, v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int32Arg(command, n)
		}
		// 50.0 and 5e1 are integral too.
		f, err := v.Float64()
		if err != nil {
			return 0, ErrInvalidArgs(command, fmt.Sprintf("expected integer, got %s", v))
		}
		return floatArg(command, f)
	default:
		return 0, ErrInvalidArgs(command, fmt.Sprintf("expected integer, got %T", raw))
	}
}

func int32Arg(command string, n int64) (int, error) {
	if n > math.MaxInt32 || n < math.MinInt32 {
		return 0, ErrInvalidArgs(command, fmt.Sprintf("integer %d out of range", n))
	}
	return int(n), nil
}

func floatArg(command string, f float64) (int, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || f > math.MaxInt32 || f < math.MinInt32 {
		return 0, ErrInvalidArgs(command, fmt.Sprintf("expected integer, got %v", f))
	}
	return int(f), nil
}

func boolArg(command string, raw any) (bool, error) {
	v, ok := raw.(bool)
	if !ok {
		return false, ErrInvalidArgs(command, fmt.Sprintf("expected bool, got %T", raw))
	}
	return v, nil
}

// EncodeTemplate returns the wire form of a feature template.
func EncodeTemplate(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// DecodeTemplate decodes a base64 template, ignoring embedded whitespace so
// line-wrapped encodings are accepted.
func DecodeTemplate(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, s)
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}
