package classifier

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// extractJSON decodes the first {...} object found in raw into v. Models
// tend to wrap JSON in prose or code fences.
func extractJSON(raw string, v interface{}) bool {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return false
	}
	return json.Unmarshal([]byte(raw[start:end+1]), v) == nil
}

// flexFloat accepts both 0.7 and "0.7".
type flexFloat struct {
	Value float64
	Set   bool
}

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("not a number: %s", b)
	}
	f.Value, f.Set = v, true
	return nil
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

func normalizeWord(s string) string {
	return strings.Trim(strings.ToLower(strings.TrimSpace(s)), ".!\"'` \n")
}

func normalizeSentiment(s string) (string, float64) {
	switch normalizeWord(s) {
	case "1", "+1", "positive":
		return SentimentPositive, 1
	case "-1", "- 1", "negative":
		return SentimentNegative, -1
	default:
		return SentimentNeutral, 0
	}
}

func riskLevelFromScore(score float64) string {
	switch {
	case score < 25:
		return RiskLow
	case score < 50:
		return RiskMedium
	case score < 75:
		return RiskHigh
	default:
		return RiskCritical
	}
}

func normalizeRiskLevel(s string) (string, bool) {
	switch l := normalizeWord(s); l {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return l, true
	}
	return "", false
}
