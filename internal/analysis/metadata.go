package analysis

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// FailureMarker is the description of the result returned when analysis
	// fails. A model answer carrying it is rejected.
	FailureMarker = "Analysis failed"
	// UnknownYear is used when the model cannot determine a year.
	UnknownYear = "unknown year"
)

// Categories are the archival types allowed as the first segment of a
// standardized filename.
var Categories = []string{"Exam", "Notes", "Homework", "Slides", "Lab", "Book", "Code", "Other"}

var (
	// ErrEmptyResponse means the model returned nothing usable.
	ErrEmptyResponse = errors.New("empty model response")
	// ErrInvalidMetadata means the response parsed but failed validation.
	ErrInvalidMetadata = errors.New("invalid metadata")
)

// Metadata is the validated answer of the metadata model.
type Metadata struct {
	Description          string
	ShortDescription     string
	Subject              string
	Year                 string
	Keywords             string
	StandardizedFilename string
}

// Failed reports whether m is the failure sentinel.
func (m Metadata) Failed() bool {
	return m.Description == FailureMarker
}

// EmbeddingInput is the text embedded for the file. Missing fields leave an
// empty segment.
func (m Metadata) EmbeddingInput() string {
	return m.Subject + " " + m.Keywords + " " + m.ShortDescription
}

// DisplayStem derives the stored display name from the suggested filename.
// Suggestions of three characters or fewer fall back to fallback.
func (m Metadata) DisplayStem(fallback string) string {
	name := strings.TrimSpace(strings.Map(func(r rune) rune {
		if strings.ContainsRune(`\/*?:"<>|`, r) || unicode.IsControl(r) {
			return -1
		}
		return r
	}, m.StandardizedFilename))

	if utf8.RuneCountInString(name) <= 3 {
		return fallback
	}
	if i := strings.LastIndex(name, "."); i > 0 {
		name = strings.TrimSpace(name[:i])
	}
	if name == "" {
		return fallback
	}
	return name
}

func failedMetadata() Metadata {
	return Metadata{Description: FailureMarker}
}

var fencePattern = regexp.MustCompile("(?is)```(?:json)?\\s*(.*?)\\s*```")

// ParseMetadata decodes a model response, tolerating a fenced code block
// around the JSON object, and validates the result.
func ParseMetadata(raw string) (Metadata, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return Metadata{}, ErrEmptyResponse
	}
	if m := fencePattern.FindStringSubmatch(text); m != nil {
		text = m[1]
	}

	var wire struct {
		Description          flexString `json:"description"`
		ShortDescription     flexString `json:"short_description"`
		Subject              flexString `json:"subject"`
		Year                 flexString `json:"year"`
		Keywords             flexString `json:"keywords"`
		StandardizedFilename flexString `json:"standardized_filename"`
	}
	if err := json.Unmarshal([]byte(text), &wire); err != nil {
		// Prose around the object: retry on the outermost braces.
		start, end := strings.Index(text, "{"), strings.LastIndex(text, "}")
		if start < 0 || end <= start {
			return Metadata{}, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
		}
		if err := json.Unmarshal([]byte(text[start:end+1]), &wire); err != nil {
			return Metadata{}, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
		}
	}

	md := Metadata{
		Description:          strings.TrimSpace(string(wire.Description)),
		ShortDescription:     strings.TrimSpace(string(wire.ShortDescription)),
		Subject:              strings.TrimSpace(string(wire.Subject)),
		Year:                 strings.TrimSpace(string(wire.Year)),
		Keywords:             strings.TrimSpace(string(wire.Keywords)),
		StandardizedFilename: strings.TrimSpace(string(wire.StandardizedFilename)),
	}
	if err := md.validate(); err != nil {
		return Metadata{}, err
	}
	return md, nil
}

func (m *Metadata) validate() error {
	if m.Description == "" {
		return fmt.Errorf("%w: missing description", ErrInvalidMetadata)
	}
	if m.Description == FailureMarker {
		return fmt.Errorf("%w: description equals the failure marker", ErrInvalidMetadata)
	}
	if m.Year == "" {
		m.Year = UnknownYear
	}
	return nil
}

// flexString accepts a JSON string, number, null or array of scalars.
// Arrays are joined with ", ".
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*f = ""
		return nil
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	case data[0] == '[':
		var items []flexString
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		parts := make([]string, 0, len(items))
		for _, it := range items {
			if s := strings.TrimSpace(string(it)); s != "" {
				parts = append(parts, s)
			}
		}
		*f = flexString(strings.Join(parts, ", "))
		return nil
	case data[0] == '{':
		return fmt.Errorf("unexpected object value %s", data)
	default:
		// numbers and booleans keep their literal text
		*f = flexString(data)
		return nil
	}
}
