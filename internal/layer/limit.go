package layer

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Limit caps the number of result rows. Zero means unbounded.
type Limit int

// ParseLimit turns free-text input into a Limit. Anything that is not a
// positive integer is "unset".
func ParseLimit(s string) Limit {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0
	}
	return Limit(n)
}

func limitFromFloat(f float64) Limit {
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 || f != math.Trunc(f) || f > math.MaxInt32 {
		return 0
	}
	return Limit(int(f))
}

func (l Limit) Valid() bool {
	return l > 0
}

func (l Limit) MarshalJSON() ([]byte, error) {
	if !l.Valid() {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(int(l))), nil
}

// UnmarshalJSON accepts null, numbers and numeric strings (the form input is
// stored as typed).
func (l *Limit) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*l = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*l = ParseLimit(s)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		*l = 0
		return nil
	}
	*l = limitFromFloat(f)
	return nil
}

func (l *Limit) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode || node.Tag == "!!null" {
		*l = 0
		return nil
	}
	*l = ParseLimit(node.Value)
	return nil
}
