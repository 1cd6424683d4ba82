package telephony

import (
	"net/http"
	"strings"
)

// PlivoAnswerForm captures the answer-callback fields we log and audit.
// Plivo posts application/x-www-form-urlencoded.
//
// Keep it provider-adapter-only; lifecycle decisions are not made here.
type PlivoAnswerForm struct {
	CallUUID    string
	RequestUUID string
	From        string
	To          string
	Direction   string
	CallStatus  string
	Event       string
}

func ParsePlivoAnswer(r *http.Request) (PlivoAnswerForm, error) {
	if err := r.ParseForm(); err != nil {
		return PlivoAnswerForm{}, err
	}
	return PlivoAnswerForm{
		CallUUID:    strings.TrimSpace(r.PostFormValue("CallUUID")),
		RequestUUID: strings.TrimSpace(r.PostFormValue("RequestUUID")),
		From:        normalizePhone(r.PostFormValue("From")),
		To:          normalizePhone(r.PostFormValue("To")),
		Direction:   r.PostFormValue("Direction"),
		CallStatus:  r.PostFormValue("CallStatus"),
		Event:       r.PostFormValue("Event"),
	}, nil
}

// normalizePhone trims and restores the leading plus Plivo drops from E.164 numbers.
func normalizePhone(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "+") {
		return s
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return s
		}
	}
	return "+" + s
}
