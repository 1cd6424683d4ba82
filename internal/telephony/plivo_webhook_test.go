package telephony

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParsePlivoAnswer(t *testing.T) {
	body := strings.NewReader("CallUUID=c-1&RequestUUID=r-1&From=911234567890&To=%2B919876543210&Direction=outbound&CallStatus=in-progress&Event=StartApp")
	r := httptest.NewRequest(http.MethodPost, "/api/calls/answer/1", body)
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	form, err := ParsePlivoAnswer(r)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if form.CallUUID != "c-1" || form.RequestUUID != "r-1" {
		t.Fatalf("expected call and request uuids, got %+v", form)
	}
	if form.From != "+911234567890" || form.To != "+919876543210" {
		t.Fatalf("unexpected from/to: %q %q", form.From, form.To)
	}
	if form.Direction != "outbound" {
		t.Fatalf("expected direction")
	}
}

func TestNormalizePhone(t *testing.T) {
	cases := map[string]string{
		"":             "",
		" +15551234 ":  "+15551234",
		"15551234":     "+15551234",
		"anonymous":    "anonymous",
		"sip:a@b.test": "sip:a@b.test",
	}
	for in, want := range cases {
		if got := normalizePhone(in); got != want {
			t.Fatalf("normalizePhone(%q) = %q, want %q", in, got, want)
		}
	}
}
