package knowledge

import (
	"fmt"
	"strings"

	"healthbot/internal/domain"
	"healthbot/internal/language"
)

// FormatHints adjust the instructions to where the answer will be shown.
type FormatHints struct {
	Channel domain.Channel
	Audio   bool
}

const assistantInstructions = `You are a friendly, knowledgeable health assistant chatting with people on a messaging app.
Answer in a warm, plain and respectful tone that a non-specialist can follow.
Format for WhatsApp: emphasise key terms with single asterisks like *fever*, use short paragraphs or simple "-" lists.
Do not use Markdown headings, tables, links in brackets, code blocks or double asterisks.
Do not add disclaimers unless the user asks about risks or the situation is an emergency.
If the user asks for a medicine dosage or a prescription, do not provide one. Say that you cannot prescribe and that they should consult a doctor.
Use the reference documents below when they answer the question. If they do not, answer from reliable, widely accepted medical knowledge.`

// BuildPrompt composes the generation prompt. Instructions come first, then
// the reference documents, then the question. The output depends only on the
// arguments.
func BuildPrompt(question string, passages []domain.RetrievedPassage, targetLanguage string, hints FormatHints) string {
	var sb strings.Builder
	sb.WriteString(assistantInstructions)
	sb.WriteString("\n")
	switch {
	case hints.Audio:
		sb.WriteString("The answer will be read aloud, so avoid any formatting symbols and keep it to a few sentences.\n")
	case hints.Channel == domain.ChannelSMS:
		sb.WriteString("The answer will be sent as SMS, so avoid formatting symbols.\n")
	}
	fmt.Fprintf(&sb, "Respond in %s.\n\n", language.Name(targetLanguage))

	if len(passages) == 0 {
		sb.WriteString("No reference documents were found for this question.\n\n")
	}
	for i, p := range passages {
		fmt.Fprintf(&sb, "Document %d (source=%s, score=%.4f):\n%s\n\n", i+1, p.Source, p.Score, strings.TrimSpace(p.Text))
	}

	fmt.Fprintf(&sb, "Question: %s\nAnswer concisely and clearly.", strings.TrimSpace(question))
	return sb.String()
}
