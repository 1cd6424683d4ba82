package conversation

import (
	"fmt"
	"strings"
)

const (
	LanguageEnglish = "english"
	LanguageHindi   = "hindi"
)

// DefaultQuestion is asked when a patient has no custom question on file.
const DefaultQuestion = "How are you feeling today?"

// PromptInput carries what the task prompt is built from.
type PromptInput struct {
	HospitalName string
	PatientName  string
	Question     string
	Language     string
}

// BuildPrompt returns the system prompt for a follow-up call.
func BuildPrompt(in PromptInput) string {
	q := strings.TrimSpace(in.Question)
	if q == "" {
		q = DefaultQuestion
	}
	hospital := strings.TrimSpace(in.HospitalName)
	if hospital == "" {
		hospital = "the hospital"
	}

	if NormalizeLanguage(in.Language) == LanguageHindi {
		return fmt.Sprintf(
			"आप %s की सहायक हैं जो %s को फोन कर रही हैं।\n\nआपका काम: %s\n\nनियम:\n- केवल एक सवाल पूछें\n- छोटे वाक्य बोलें\n- धीरे और साफ बोलें\n- पहले नमस्ते कहें, फिर सवाल पूछें",
			hospital, in.PatientName, q,
		)
	}
	if !strings.HasSuffix(q, ".") && !strings.HasSuffix(q, "?") && !strings.HasSuffix(q, "!") {
		q += "."
	}
	return fmt.Sprintf(
		"You are a hospital assistant of %s calling %s. Your task: %s Start by greeting them warmly and asking the question. Keep responses under 2 sentences.",
		hospital, in.PatientName, q,
	)
}

// NormalizeLanguage maps a stored language tag to a supported language, defaulting to English.
func NormalizeLanguage(tag string) string {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case LanguageHindi, "hi":
		return LanguageHindi
	default:
		return LanguageEnglish
	}
}

// TranscriptionLanguage returns the ISO-639-1 code used for speech recognition.
func TranscriptionLanguage(tag string) string {
	if NormalizeLanguage(tag) == LanguageHindi {
		return "hi"
	}
	return "en"
}
