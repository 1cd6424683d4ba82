package conversation

import (
	"strings"
	"testing"
)

func TestBuildPrompt_DefaultQuestion(t *testing.T) {
	p := BuildPrompt(PromptInput{HospitalName: "Presco Hospital", PatientName: "Asha"})
	want := "You are a hospital assistant of Presco Hospital calling Asha. Your task: How are you feeling today? Start by greeting them warmly and asking the question. Keep responses under 2 sentences."
	if p != want {
		t.Fatalf("unexpected prompt:\n got %q\nwant %q", p, want)
	}
}

func TestBuildPrompt_CustomQuestion(t *testing.T) {
	p := BuildPrompt(PromptInput{PatientName: "Ravi", Question: "Ask whether the stitches still hurt"})
	if !strings.Contains(p, "Your task: Ask whether the stitches still hurt. Start") {
		t.Fatalf("expected custom question in prompt, got %q", p)
	}
}

func TestBuildPrompt_Hindi(t *testing.T) {
	p := BuildPrompt(PromptInput{HospitalName: "Presco", PatientName: "Ravi", Language: "Hindi"})
	if !strings.Contains(p, "नमस्ते") || !strings.Contains(p, "Ravi") || !strings.Contains(p, DefaultQuestion) {
		t.Fatalf("expected hindi prompt, got %q", p)
	}
	if TranscriptionLanguage("hindi") != "hi" || TranscriptionLanguage("english") != "en" || TranscriptionLanguage("") != "en" {
		t.Fatalf("unexpected transcription languages")
	}
}
