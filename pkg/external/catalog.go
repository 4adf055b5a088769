package external

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/cnv-acmg-classifier/internal/domain"
)

// Keys of a catalog section that describe the section rather than an option.
var sectionMetaKeys = map[string]bool{
	"name": true,
	"info": true,
}

// optionPayload carries the catalog's field names verbatim
type optionPayload struct {
	SuggestedPoints wireNumber `json:"Suggested points"`
	MinScore        wireNumber `json:"Min Score"`
	MaxScore        wireNumber `json:"Max Score"`
	Evidence        *string    `json:"Evidence"`
}

// wireNumber accepts a JSON number or a numeric string. null and "" leave it unset.
type wireNumber struct {
	Value float64
	Set   bool
}

// UnmarshalJSON implements json.Unmarshaler
func (n *wireNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*n = wireNumber{}
		return nil
	}

	raw := string(data)
	if strings.HasPrefix(raw, `"`) {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			*n = wireNumber{}
			return nil
		}
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("not a number: %s", data)
	}
	*n = wireNumber{Value: v, Set: true}
	return nil
}

// DecodeCatalog parses the acmg_text payload: an object keyed by section id
// ("1".."5"), each holding its evidence options keyed by label. Option order
// follows the payload. Keys that do not name a section are ignored.
func DecodeCatalog(data []byte) (domain.EvidenceCatalog, error) {
	sections, err := orderedObject(data)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}

	catalog := make(domain.EvidenceCatalog, domain.SectionCount)
	for _, sec := range sections {
		id, ok := sectionID(sec.key)
		if !ok {
			continue
		}

		entries, err := orderedObject(sec.value)
		if err != nil {
			return nil, fmt.Errorf("catalog section %s: %w", sec.key, err)
		}

		options := make([]domain.EvidenceOption, 0, len(entries))
		for _, entry := range entries {
			if sectionMetaKeys[entry.key] {
				continue
			}
			opt, err := decodeOption(entry.key, entry.value)
			if err != nil {
				return nil, fmt.Errorf("catalog section %d: %w", id, err)
			}
			options = append(options, opt)
		}
		catalog[id] = options
	}

	return catalog, nil
}

func decodeOption(label string, raw json.RawMessage) (domain.EvidenceOption, error) {
	var payload optionPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return domain.EvidenceOption{}, fmt.Errorf("option %q: %w", label, err)
	}
	if !payload.SuggestedPoints.Set && (!payload.MinScore.Set || !payload.MaxScore.Set) {
		return domain.EvidenceOption{}, fmt.Errorf("option %q has neither 'Suggested points' nor 'Min Score'/'Max Score'", label)
	}

	opt := domain.EvidenceOption{
		Label:    label,
		MinScore: payload.MinScore.Value,
		MaxScore: payload.MaxScore.Value,
	}
	if payload.SuggestedPoints.Set {
		v := payload.SuggestedPoints.Value
		opt.SuggestedPoints = &v
	}
	if payload.Evidence != nil {
		opt.EvidenceText = *payload.Evidence
	}
	return opt, nil
}

// sectionID accepts "3" as well as "section3".
func sectionID(key string) (int, bool) {
	id, err := strconv.Atoi(strings.TrimPrefix(strings.ToLower(key), "section"))
	if err != nil || !domain.IsValidSection(id) {
		return 0, false
	}
	return id, true
}

type keyValue struct {
	key   string
	value json.RawMessage
}

// orderedObject decodes a JSON object keeping its key order.
func orderedObject(data []byte) ([]keyValue, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected an object, got %v", tok)
	}

	var out []keyValue
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", tok)
		}

		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("value of %q: %w", key, err)
		}
		out = append(out, keyValue{key: key, value: value})
	}

	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return out, nil
}
