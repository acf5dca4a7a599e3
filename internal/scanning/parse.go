package scanning

import "strings"

// transcriptionPrompt is the shared prompt used by all vision model sources
const transcriptionPrompt = `You are transcribing a photographed or scanned receipt. Read every line of text in the image from top to bottom and reproduce it exactly as printed.

Important:
- Keep one printed line per output line
- Keep numbers, currency symbols and decimal points exactly as printed
- Do not summarize, translate, correct or explain anything
- Do not add text that is not in the image
- Do not use markdown code blocks
- If there is no readable text, return an empty response`

// cleanTranscript strips the wrapping vision models sometimes add around a
// transcription
func cleanTranscript(text string) string {
	text = strings.TrimSpace(text)

	// Remove an opening markdown fence, including any language tag
	if strings.HasPrefix(text, "```") {
		if nl := strings.Index(text, "\n"); nl >= 0 {
			text = text[nl+1:]
		} else {
			text = strings.TrimPrefix(text, "```")
		}
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")

	return strings.TrimSpace(text)
}
