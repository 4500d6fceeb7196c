package calendly

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

const signatureTolerance = 5 * time.Minute

// VerifySignature checks a "t=<unix>,v1=<hex>" signature header against
// HMAC-SHA256(key, "<t>.<body>").
func VerifySignature(body []byte, header, key string, now time.Time) bool {
	if key == "" || header == "" {
		return false
	}
	var ts, sig string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			sig = v
		}
	}
	if ts == "" || sig == "" {
		return false
	}
	sec, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}
	sent := time.Unix(sec, 0)
	if sent.Before(now.Add(-signatureTolerance)) || sent.After(now.Add(signatureTolerance)) {
		return false
	}
	return hmac.Equal([]byte(Sign(body, ts, key)), []byte(sig))
}

// Sign returns the hex signature for body sent at ts.
func Sign(body []byte, ts, key string) string {
	mac := hmac.New(sha256.New, []byte(key))
	_, _ = mac.Write([]byte(ts + "."))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
