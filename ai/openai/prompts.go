package openai

import (
	"fmt"
	"strings"
)

const summaryPrompt = "Summarize the following content in 2-4 concise sentences. Preserve key facts and ideas."

const tagsResponseSchema = `{
  "type": "object",
  "properties": {
    "tags": {
      "type": "array",
      "items": {"type": "string", "pattern": "^[a-z0-9]+(-[a-z0-9]+)*$"},
      "minItems": 0,
      "maxItems": 8
    }
  },
  "required": ["tags"],
  "additionalProperties": false
}`

const tagsPromptTemplate = `From the content given by the user, suggest 3-8 short topic tags and return them as JSON.

Output ONLY valid JSON which complies with the schema given below. Do not include any preamble, explanation,
greeting, or acknowledgment. Start your response directly with the opening brace { and end with the closing
brace }. Your output must exactly follow this schema:

%s

Rules:
- Tags are lowercase. Use a hyphen instead of a space inside a tag.
- Prefer general topics over details: "machine-learning", not "gradient-descent-step-size".
- Include only topics the content is actually about. Do not hallucinate.
- If no topic can be identified, return {"tags": []}.

Example:
Input: "Notes from the Kubernetes meetup: pod autoscaling and cost control."
Output:
{"tags": ["kubernetes", "autoscaling", "cloud-cost"]}`

const transcribeFilePrompt = `Transcribe the attached file. For audio or video return the spoken words.
For documents and images containing text return the text. For images without text describe what is shown
in a few sentences. Output only the transcription.`

// buildTagsPrompt creates the system prompt for tag extraction.
func buildTagsPrompt() string {
	return fmt.Sprintf(tagsPromptTemplate, tagsResponseSchema)
}

// buildContentMessage formats the user message for summary and tags.
// Text longer than maxChars is cut and marked as truncated.
func buildContentMessage(title, text string, maxChars int) string {
	var b strings.Builder
	if title != "" {
		b.WriteString("Title: ")
		b.WriteString(title)
		b.WriteString("\n\n")
	}
	b.WriteString("Content:\n")
	b.WriteString(truncate(text, maxChars))
	return b.String()
}

// truncate cuts s to maxChars characters and appends a marker when cut.
func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if maxChars <= 0 || len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars]) + "\n\n[Truncated...]"
}
