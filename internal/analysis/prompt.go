package analysis

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/shareandimprove/archivist/internal/llm"
)

const (
	// MaxPromptContent is the number of content characters sent to the model.
	MaxPromptContent = 5000
	// MaxNeighbors is the number of sibling names given as context.
	MaxNeighbors = 10

	// Placeholder is the content used when nothing could be read from a file.
	Placeholder = "[Binary or unreadable file content]"

	defaultLanguage = "English"
)

const systemPromptTemplate = `You are an archivist cataloguing study and work material.
Analyse the file described by the user and answer with one JSON object containing exactly these fields:
- "description": a detailed description of the content, at most 200 words
- "short_description": a one sentence summary, at most 30 words
- "subject": the subject or course the file belongs to
- "year": the year the material refers to, or "unknown year" when it cannot be determined
- "keywords": a comma-separated list of keywords
- "standardized_filename": an archival file name of the form Type-Year-Subject-SpecificName(Note).Extension, where Type is one of: %s. Keep the original extension.
Use the names of the other files in the same directory only as weak hints.
Write description, short_description, subject and keywords in %s.`

const visionPrompt = `Transcribe all text visible in this image verbatim, preserving line breaks.
Do not describe the image. Answer with the transcribed text only.`

func systemPrompt(language string) string {
	if language == "" {
		language = defaultLanguage
	}
	return fmt.Sprintf(systemPromptTemplate, strings.Join(Categories, ", "), language)
}

func userPrompt(in Input, content string) string {
	neighbors := in.Neighbors
	if len(neighbors) > MaxNeighbors {
		neighbors = neighbors[:MaxNeighbors]
	}
	siblings := "(none)"
	if len(neighbors) > 0 {
		siblings = strings.Join(neighbors, ", ")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "File path: %s\n", in.Path)
	fmt.Fprintf(&b, "File name: %s\n", in.Name)
	fmt.Fprintf(&b, "File size: %d bytes\n", in.SizeBytes)
	fmt.Fprintf(&b, "Other files in the same directory: %s\n", siblings)
	fmt.Fprintf(&b, "Content (first %d characters):\n%s", MaxPromptContent, truncateRunes(content, MaxPromptContent))
	return b.String()
}

func metadataMessages(language string, in Input, content string) []llm.Message {
	return []llm.Message{
		llm.System(systemPrompt(language)),
		llm.User(userPrompt(in, content)),
	}
}

func visionMessages(mimeType string, image []byte) []llm.Message {
	return []llm.Message{{
		Role: "user",
		Parts: []llm.ContentPart{
			llm.TextPart(visionPrompt),
			llm.ImagePart(mimeType, image),
		},
	}}
}

// truncateRunes returns at most n characters of s.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
