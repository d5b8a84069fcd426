package ratelimit

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

func setRateLimitHeaders(w http.ResponseWriter, res Result) {
	h := w.Header()
	h.Set(HeaderLimit, strconv.Itoa(res.Limit))
	h.Set(HeaderRemaining, strconv.Itoa(res.Remaining))
	h.Set(HeaderReset, res.ResetAt.UTC().Format(time.RFC3339))
}

func writeDenied(w http.ResponseWriter, p Policy, res Result) {
	retryAfter := int(res.RetryAfter / time.Second)

	body := map[string]interface{}{
		"status":  "error",
		"message": p.Message,
	}
	switch p.Body {
	case BodyLimitReset:
		body["limit"] = res.Limit
		body["resetTime"] = res.ResetAt.UTC().Format(time.RFC3339)
	default:
		body["retryAfter"] = retryAfter
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(HeaderRetryAfter, strconv.Itoa(retryAfter))
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(body)
}
