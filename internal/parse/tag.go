package parse

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MaxTagIDLength matches the width of the tag_id column.
const MaxTagIDLength = 100

var (
	ErrEmptyTagID   = errors.New("tag id is empty")
	ErrInvalidScan  = errors.New("invalid scan data")
	ErrTagIDTooLong = fmt.Errorf("tag id longer than %d characters", MaxTagIDLength)
)

// TagID validates a reader-supplied tag identifier. Ids are opaque: only the
// surrounding whitespace is dropped, case and inner characters are kept.
func TagID(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", ErrEmptyTagID
	}
	if len(s) > MaxTagIDLength {
		return "", ErrTagIDTooLong
	}
	return s, nil
}

// Sighting is one tag reported by a reader in a single poll cycle.
type Sighting struct {
	TagID          string `json:"tagId"`
	SignalStrength *int   `json:"signalStrength,omitempty"`
}

// SightingResult carries either a parsed sighting or the reason it was rejected.
// Rejections are per entry so one malformed tag never drops the batch.
type SightingResult struct {
	Index    int
	Raw      string
	Sighting Sighting
	Err      error
}

type scanEnvelope struct {
	DetectedTags json.RawMessage `json:"detectedTags"`
}

// rawSighting keeps everything but the tag id undecoded so optional reader
// fields can never reject an entry.
type rawSighting struct {
	TagID          string          `json:"tagId"`
	SignalStrength json.RawMessage `json:"signalStrength"`
}

// ScanPayload validates the shape of a scan body. The envelope must be a JSON
// object whose detectedTags is an array; anything else is ErrInvalidScan.
// Each array entry is parsed independently.
func ScanPayload(body []byte) ([]SightingResult, error) {
	var env scanEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, ErrInvalidScan
	}
	trimmed := strings.TrimSpace(string(env.DetectedTags))
	if trimmed == "" || trimmed == "null" || !strings.HasPrefix(trimmed, "[") {
		return nil, ErrInvalidScan
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(env.DetectedTags, &entries); err != nil {
		return nil, ErrInvalidScan
	}

	results := make([]SightingResult, 0, len(entries))
	for i, entry := range entries {
		res := SightingResult{Index: i, Raw: string(entry)}
		var raw rawSighting
		if err := json.Unmarshal(entry, &raw); err != nil {
			res.Err = fmt.Errorf("entry %d: %w", i, err)
			results = append(results, res)
			continue
		}
		id, err := TagID(raw.TagID)
		if err != nil {
			res.Err = fmt.Errorf("entry %d: %w", i, err)
			results = append(results, res)
			continue
		}
		res.Sighting = Sighting{TagID: id, SignalStrength: SignalStrength(raw.SignalStrength)}
		results = append(results, res)
	}
	return results, nil
}

// SignalStrength reads an RSSI sent as a JSON number or a numeric string and
// rounds it to the nearest integer. Anything else yields nil.
func SignalStrength(raw json.RawMessage) *int {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	var text string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil
		}
	} else {
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil
		}
		text = n.String()
	}

	f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt32 {
		return nil
	}
	v := int(math.Round(f))
	return &v
}
