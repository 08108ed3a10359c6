// Package domain defines the catalog entry, record, hypothesis and candidate
// types shared by the importer and the retrieval engine, together with the
// pure helpers that derive ids and embedding/query text from them.
package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/WessleyAI/service-catalog/pkg/fn"
)

// Source catalog keys. The catalog is published with Japanese field names;
// the English aliases are accepted as well.
const (
	KeyTitle          = "タイトル"
	KeyServiceContent = "サービス内容"
	KeyTarget         = "対象者"
	KeyConditions     = "条件・申し込み方法"
	KeyServiceLabels  = "サービスラベル"
	KeyTargetLabels   = "対象者ラベル"
	KeyURL            = "URL"
	KeyURLItems       = "items"
)

var fieldAliases = map[string][]string{
	KeyTitle:          {KeyTitle, "title"},
	KeyServiceContent: {KeyServiceContent, "service_content"},
	KeyTarget:         {KeyTarget, "target"},
	KeyConditions:     {KeyConditions, "conditions"},
	KeyServiceLabels:  {KeyServiceLabels, "service_labels"},
	KeyTargetLabels:   {KeyTargetLabels, "target_labels"},
	KeyURL:            {KeyURL, "url"},
}

// Entry is one raw catalog entry as supplied by the caller. Missing or
// oddly-typed fields decode to zero values instead of failing.
type Entry struct {
	Title          string
	ServiceContent string
	Target         string
	Conditions     string
	ServiceLabels  []string
	TargetLabels   []string
	URL            string

	// Raw is the entry exactly as received, unknown keys included.
	Raw json.RawMessage
}

// UnmarshalJSON decodes an entry from any JSON object shape. Non-object
// input yields an empty entry that still carries Raw.
func (e *Entry) UnmarshalJSON(data []byte) error {
	*e = Entry{Raw: append(json.RawMessage(nil), data...)}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil
	}

	e.Title = textValue(lookup(fields, KeyTitle))
	e.ServiceContent = textValue(lookup(fields, KeyServiceContent))
	e.Target = textValue(lookup(fields, KeyTarget))
	e.Conditions = textValue(lookup(fields, KeyConditions))
	e.ServiceLabels = labelValues(lookup(fields, KeyServiceLabels))
	e.TargetLabels = labelValues(lookup(fields, KeyTargetLabels))
	e.URL = urlItems(lookup(fields, KeyURL))
	return nil
}

// MarshalJSON emits Raw when present so unknown keys survive a round trip,
// otherwise the canonical source-catalog shape.
func (e Entry) MarshalJSON() ([]byte, error) {
	if len(e.Raw) > 0 {
		return e.Raw, nil
	}
	return json.Marshal(map[string]any{
		KeyTitle:          e.Title,
		KeyServiceContent: e.ServiceContent,
		KeyTarget:         e.Target,
		KeyConditions:     e.Conditions,
		KeyServiceLabels:  fn.OrEmpty(e.ServiceLabels),
		KeyTargetLabels:   fn.OrEmpty(e.TargetLabels),
		KeyURL:            map[string]string{KeyURLItems: e.URL},
	})
}

// DecodeEntries parses an import payload. The payload must be a JSON array;
// its elements may be any shape.
func DecodeEntries(data []byte) ([]Entry, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, NewValidationError("entries", preview(trimmed), ErrInvalidPayload)
	}
	var entries []Entry
	if err := json.Unmarshal(trimmed, &entries); err != nil {
		return nil, NewValidationError("entries", preview(trimmed), fmt.Errorf("%w: %v", ErrInvalidPayload, err))
	}
	return entries, nil
}

// Record is a catalog entry as persisted in the record store.
type Record struct {
	ID             string          `json:"id"`
	Title          string          `json:"title"`
	URL            string          `json:"url"`
	ServiceContent string          `json:"service_content"`
	Target         string          `json:"target"`
	Conditions     string          `json:"conditions"`
	ServiceLabels  []string        `json:"service_labels"`
	TargetLabels   []string        `json:"target_labels"`
	Raw            json.RawMessage `json:"raw,omitempty"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// NewRecord tags an entry with its id.
func NewRecord(id string, e Entry) Record {
	return Record{
		ID:             id,
		Title:          e.Title,
		URL:            e.URL,
		ServiceContent: e.ServiceContent,
		Target:         e.Target,
		Conditions:     e.Conditions,
		ServiceLabels:  fn.OrEmpty(e.ServiceLabels),
		TargetLabels:   fn.OrEmpty(e.TargetLabels),
		Raw:            e.Raw,
	}
}

// NoDetails is the summary used when a record has neither service content
// nor conditions.
const NoDetails = "詳細なし"

// Summary prefers the service content, then the conditions text.
func (r Record) Summary() string {
	if r.ServiceContent != "" {
		return r.ServiceContent
	}
	if r.Conditions != "" {
		return r.Conditions
	}
	return NoDetails
}

func lookup(fields map[string]json.RawMessage, key string) json.RawMessage {
	for _, k := range fieldAliases[key] {
		if v, ok := fields[k]; ok {
			return v
		}
	}
	return nil
}

// textValue renders a JSON scalar as text. Strings are unquoted, null is
// empty, anything else keeps its JSON spelling.
func textValue(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func labelValues(raw json.RawMessage) []string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		if s := textValue(raw); s != "" {
			return []string{s}
		}
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, textValue(it))
	}
	return out
}

func urlItems(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err == nil {
		return textValue(obj[KeyURLItems])
	}
	return textValue(raw)
}

func preview(b []byte) string {
	const max = 32
	r := []rune(strings.ToValidUTF8(string(b), ""))
	if len(r) > max {
		return string(r[:max]) + "..."
	}
	return string(r)
}
