package scoring

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ParseAnswers normalizes a raw answer payload. Anything other than a JSON
// object yields no answers. Keys that are not question ids and values that
// are not non-negative integers (or numeric strings) are dropped, which the
// grader then treats as unanswered.
func ParseAnswers(raw json.RawMessage) map[uuid.UUID]int {
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return map[uuid.UUID]int{}
	}
	out := make(map[uuid.UUID]int, len(entries))
	for k, v := range entries {
		id, err := uuid.Parse(k)
		if err != nil {
			continue
		}
		if d, ok := parseDisplayIndex(v); ok {
			out[id] = d
		}
	}
	return out
}

func parseDisplayIndex(v json.RawMessage) (int, bool) {
	var n json.Number
	dec := json.NewDecoder(strings.NewReader(string(v)))
	dec.UseNumber()
	var anyVal any
	if err := dec.Decode(&anyVal); err != nil {
		return 0, false
	}
	switch t := anyVal.(type) {
	case json.Number:
		n = t
	case string:
		n = json.Number(strings.TrimSpace(t))
	default:
		return 0, false
	}
	d, err := strconv.Atoi(n.String())
	if err != nil || d < 0 {
		return 0, false
	}
	return d, true
}
