package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const plainResponse = `{
  "description": "Lecture notes covering geometric optics.",
  "short_description": "Optics lecture notes",
  "subject": "Physics",
  "year": "2023",
  "keywords": "optics, lenses, refraction",
  "standardized_filename": "Notes-2023-Physics-Optics(Week3).pdf"
}`

func TestParseMetadata(t *testing.T) {
	md, err := ParseMetadata(plainResponse)
	require.NoError(t, err)
	assert.Equal(t, "Lecture notes covering geometric optics.", md.Description)
	assert.Equal(t, "Optics lecture notes", md.ShortDescription)
	assert.Equal(t, "Physics", md.Subject)
	assert.Equal(t, "2023", md.Year)
	assert.Equal(t, "optics, lenses, refraction", md.Keywords)
	assert.Equal(t, "Notes-2023-Physics-Optics(Week3).pdf", md.StandardizedFilename)
	assert.False(t, md.Failed())
}

func TestParseMetadata_FencedEqualsPlain(t *testing.T) {
	want, err := ParseMetadata(plainResponse)
	require.NoError(t, err)

	fenced := map[string]string{
		"json tag":        "```json\n" + plainResponse + "\n```",
		"no tag":          "```\n" + plainResponse + "\n```",
		"upper tag":       "```JSON\n" + plainResponse + "```",
		"surrounded":      "Here you go:\n```json\n" + plainResponse + "\n```\nAnything else?",
		"prose no fences": "Sure. " + plainResponse + " Done.",
	}
	for name, raw := range fenced {
		t.Run(name, func(t *testing.T) {
			got, err := ParseMetadata(raw)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestParseMetadata_Defaults(t *testing.T) {
	md, err := ParseMetadata(`{"description": "A scanned receipt."}`)
	require.NoError(t, err)
	assert.Equal(t, UnknownYear, md.Year)
	assert.Empty(t, md.Subject)
	assert.Empty(t, md.Keywords)
	assert.Equal(t, "  ", md.EmbeddingInput())
}

func TestParseMetadata_FlexibleFields(t *testing.T) {
	md, err := ParseMetadata(`{
		"description": "d",
		"year": 2021,
		"keywords": ["algebra", "", "matrices", 3],
		"subject": null
	}`)
	require.NoError(t, err)
	assert.Equal(t, "2021", md.Year)
	assert.Equal(t, "algebra, matrices, 3", md.Keywords)
	assert.Empty(t, md.Subject)
}

func TestParseMetadata_Failures(t *testing.T) {
	tests := map[string]string{
		"empty":          "",
		"whitespace":     "   \n",
		"not json":       "I could not read this file.",
		"broken json":    `{"description": "x"`,
		"no description": `{"subject": "Physics"}`,
		"marker":         `{"description": "Analysis failed"}`,
		"object field":   `{"description": {"text": "x"}}`,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseMetadata(raw)
			assert.Error(t, err)
		})
	}
}

func TestEmbeddingInput(t *testing.T) {
	md := Metadata{Subject: "Physics", Keywords: "optics, lenses", ShortDescription: "Optics notes"}
	assert.Equal(t, "Physics optics, lenses Optics notes", md.EmbeddingInput())
}

func TestDisplayStem(t *testing.T) {
	tests := []struct {
		name      string
		suggested string
		want      string
	}{
		{"strips extension", "Notes-2023-Physics-Optics(Week3).pdf", "Notes-2023-Physics-Optics(Week3)"},
		{"removes forbidden characters", `Exam/2022:Math*Final?.docx`, "Exam2022MathFinal"},
		{"keeps dots before extension", "Book-2020-CS-Go.v2.epub", "Book-2020-CS-Go.v2"},
		{"no extension", "Slides-2024-History", "Slides-2024-History"},
		{"too short", "a.b", "original"},
		{"empty", "", "original"},
		{"only forbidden", `<<>>||`, "original"},
		{"leading dot only", ".hidden", ".hidden"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			md := Metadata{StandardizedFilename: tt.suggested}
			assert.Equal(t, tt.want, md.DisplayStem("original"))
		})
	}
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "héll", truncateRunes("héllo", 4))
	assert.Equal(t, "héllo", truncateRunes("héllo", 5))
	assert.Equal(t, "", truncateRunes("abc", 0))
}
