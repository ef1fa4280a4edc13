package book

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Older store versions kept illustrations as bare strings - either a data URI
// or an URL. Current versions use a structured object. Decode both so that
// nothing past the collector has to branch on shape.
func (r *IllustrationRef) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if strings.HasPrefix(s, "data:") {
			r.Inline = s
		} else {
			r.URL = s
		}
		return nil
	}

	type plain IllustrationRef
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	// some producers used "data" instead of "inline_data"
	if p.Inline == "" {
		var alt struct {
			Data string `json:"data"`
		}
		if err := json.Unmarshal(data, &alt); err == nil && strings.HasPrefix(alt.Data, "data:") {
			p.Inline = alt.Data
		}
	}
	*r = IllustrationRef(p)
	return nil
}

// Footnotes were historically stored either as bare strings (marker implied
// by position, 1-based) or as {marker, text} objects.
func (f *Footnote) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		f.Text = s
		return nil
	}
	type plain Footnote
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*f = Footnote(p)
	return nil
}

// NumberFootnotes assigns positional markers to footnotes which were stored
// without one.
func (t *Translation) NumberFootnotes() {
	for i := range t.Footnotes {
		if t.Footnotes[i].Marker == "" {
			t.Footnotes[i].Marker = fmt.Sprintf("%d", i+1)
		}
	}
}
