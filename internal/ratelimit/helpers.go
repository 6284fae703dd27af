package ratelimit

import (
	"errors"
	"strconv"
)

var errInvalidScriptReply = errors.New("ratelimit: invalid redis script reply")

func toInt64(v any) int64 {
	switch val := v.(type) {
	case int64:
		return val
	case float64:
		return int64(val)
	case string:
		n, _ := strconv.ParseInt(val, 10, 64)
		return n
	default:
		return 0
	}
}

func formatScore(us int64) string {
	return strconv.FormatInt(us, 10)
}
