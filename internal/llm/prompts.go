package llm

import (
	"sort"
	"strings"
	"text/template"
)

const transformSystemPrompt = `You transform tabular cell values. Apply the instruction to the value and reply with the transformed value only, no explanation, no quotes.`

const transformPrompt = `Instruction: {{ .Instruction }}

Value:
{{ .Text }}`

var transformPromptTmpl = template.Must(template.New("transformPrompt").Parse(transformPrompt))

type transformPromptFields struct {
	Instruction string
	Text        string
}

const generateSystemPrompt = `You generate one new value per input record of a table. Reply with exactly one value per line, in the same order as the records, without numbering, bullets, or commentary.`

const generatePrompt = `{{ .Prompt }}

Records ({{ len .Records }} total, one value expected per record):
{{ range $i, $r := .Records }}Record {{ $i }}: {{ $r }}
{{ end }}`

var generatePromptTmpl = template.Must(template.New("generatePrompt").Parse(generatePrompt))

type generatePromptFields struct {
	Prompt  string
	Records []string
}

const filterSystemPrompt = `You decide which rows of a table match a description. Reply with a single JSON array of booleans, one entry per row, in order. No other text.`

const filterPrompt = `Description: {{ .Description }}

Rows ({{ len .Texts }} total):
{{ range $i, $t := .Texts }}Row {{ $i }}: {{ $t }}
{{ end }}`

var filterPromptTmpl = template.Must(template.New("filterPrompt").Parse(filterPrompt))

type filterPromptFields struct {
	Description string
	Texts       []string
}

func renderTransformPrompt(text, instruction string) (string, error) {
	var sb strings.Builder
	err := transformPromptTmpl.Execute(&sb, transformPromptFields{Instruction: instruction, Text: text})
	return sb.String(), err
}

func renderGeneratePrompt(records []map[string]string, prompt string) (string, error) {
	rendered := make([]string, len(records))
	for i, record := range records {
		rendered[i] = formatRecord(record)
	}

	var sb strings.Builder
	err := generatePromptTmpl.Execute(&sb, generatePromptFields{Prompt: prompt, Records: rendered})
	return sb.String(), err
}

func renderFilterPrompt(texts []string, description string) (string, error) {
	var sb strings.Builder
	err := filterPromptTmpl.Execute(&sb, filterPromptFields{Description: description, Texts: texts})
	return sb.String(), err
}

// formatRecord renders a field map with stable key order so prompts are
// deterministic for a given record.
func formatRecord(record map[string]string) string {
	keys := make([]string, 0, len(record))
	for k := range record {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+record[k])
	}
	return strings.Join(parts, ", ")
}
