package telephony

import (
	"bytes"
	"encoding/xml"
	"errors"
	"strings"
)

// Plivo XML is the carrier's call-control markup. Only the verbs the answer
// callback needs are modelled.

type plivoResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type plivoHangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

type plivoStream struct {
	XMLName       xml.Name `xml:"Stream"`
	Bidirectional bool     `xml:"bidirectional,attr"`
	KeepCallAlive bool     `xml:"keepCallAlive,attr"`
	ContentType   string   `xml:"contentType,attr"`
	URL           string   `xml:",chardata"`
}

// StreamContentType is 8kHz mu-law, the carrier's native PSTN format.
const StreamContentType = "audio/x-mulaw;rate=8000"

// RenderAnswerXML maps an AnswerInstruction to Plivo XML.
func RenderAnswerXML(in AnswerInstruction) (string, error) {
	var r plivoResponse

	switch in.Action {
	case AnswerActionHangup:
		r.Verbs = append(r.Verbs, plivoHangup{})
	case AnswerActionStream:
		if strings.TrimSpace(in.StreamURL) == "" {
			return "", errors.New("telephony: stream_url required for stream action")
		}
		r.Verbs = append(r.Verbs, plivoStream{
			Bidirectional: true,
			KeepCallAlive: true,
			ContentType:   StreamContentType,
			URL:           in.StreamURL,
		})
	default:
		return "", errors.New("telephony: unknown answer action")
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
