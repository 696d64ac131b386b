package voice

import (
	"encoding/xml"
	"fmt"
	"net/url"
	"strings"
)

// speechVoice is the provider voice used for every spoken phrase
const speechVoice = "alice"

// Twilio callback URL suffixes
const (
	promptSuffix      = "prompt"
	acknowledgeSuffix = "acknowledge"
)

type say struct {
	XMLName xml.Name `xml:"Say"`
	Voice   string   `xml:"voice,attr"`
	Text    string   `xml:",chardata"`
}

type gather struct {
	XMLName   xml.Name `xml:"Gather"`
	NumDigits int      `xml:"numDigits,attr"`
	Timeout   int      `xml:"timeout,attr"`
	Action    string   `xml:"action,attr"`
	Method    string   `xml:"method,attr"`
	Say       say
}

type redirect struct {
	XMLName xml.Name `xml:"Redirect"`
	Method  string   `xml:"method,attr"`
	URL     string   `xml:",chardata"`
}

type hangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

type response struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []interface{}
}

// render marshals a response document with the XML declaration. Character
// data passes through encoding/xml, which escapes the XML-significant
// characters before embedding.
func render(verbs ...interface{}) string {
	doc := response{Verbs: verbs}
	out, err := xml.Marshal(doc)
	if err != nil {
		panic(fmt.Sprintf("twiml marshal: %v", err))
	}
	return xml.Header + string(out)
}

// ScriptBuilder produces the voice-response documents and callback URLs for
// the interactive acknowledgement dialogue.
type ScriptBuilder struct {
	base string
}

// NewScriptBuilder creates a builder rooted at the webhook base URL. A
// trailing slash on the base is dropped.
func NewScriptBuilder(base string) *ScriptBuilder {
	return &ScriptBuilder{base: strings.TrimSuffix(base, "/")}
}

// callbackURL builds {base}/{suffix}?alertId={id}&token={token}
func (b *ScriptBuilder) callbackURL(suffix, alertID, token string) string {
	return fmt.Sprintf("%s/%s?alertId=%s&token=%s",
		b.base, suffix, url.QueryEscape(alertID), url.QueryEscape(token))
}

// PromptURL returns the URL that replays the interactive prompt
func (b *ScriptBuilder) PromptURL(alertID, token string) string {
	return b.callbackURL(promptSuffix, alertID, token)
}

// AcknowledgeURL returns the URL that receives the gathered digit
func (b *ScriptBuilder) AcknowledgeURL(alertID, token string) string {
	return b.callbackURL(acknowledgeSuffix, alertID, token)
}

// Prompt produces the interactive prompt: gather one digit within ten
// seconds and post it to the acknowledge URL; on no input, announce that and
// replay the prompt.
func (b *ScriptBuilder) Prompt(priority, message, alertID, token string) string {
	text := fmt.Sprintf(
		"You have a %s priority alert. %s. Press 1 to acknowledge this alert. Press 2 to repeat this message.",
		strings.ToLower(priority), message)

	return render(
		gather{
			NumDigits: 1,
			Timeout:   10,
			Action:    b.AcknowledgeURL(alertID, token),
			Method:    "POST",
			Say:       say{Voice: speechVoice, Text: text},
		},
		say{Voice: speechVoice, Text: "We did not receive any input."},
		redirect{Method: "POST", URL: b.PromptURL(alertID, token)},
	)
}

// Accepted produces the confirmation spoken after a successful
// acknowledgement
func (b *ScriptBuilder) Accepted(responderName string) string {
	text := "The alert has been acknowledged. Goodbye."
	if responderName != "" {
		text = fmt.Sprintf("Thank you %s. The alert has been acknowledged. Goodbye.", responderName)
	}
	return render(
		say{Voice: speechVoice, Text: text},
		hangup{},
	)
}

// AlreadyHandled produces the document spoken when the alert was
// acknowledged before this caller got through
func (b *ScriptBuilder) AlreadyHandled(responderName string) string {
	text := "This alert has already been acknowledged. Goodbye."
	if responderName != "" {
		text = fmt.Sprintf("This alert has already been acknowledged by %s. Goodbye.", responderName)
	}
	return render(
		say{Voice: speechVoice, Text: text},
		hangup{},
	)
}

// InvalidInput produces the retry document for an unrecognised digit
func (b *ScriptBuilder) InvalidInput(alertID, token string) string {
	return render(
		say{Voice: speechVoice, Text: "Sorry, I did not understand that input."},
		redirect{Method: "POST", URL: b.PromptURL(alertID, token)},
	)
}

// AssignmentMissing produces the dead-end document for an unknown
// assignment token
func (b *ScriptBuilder) AssignmentMissing() string {
	return render(
		say{Voice: speechVoice, Text: "We could not find your page for this alert. Please contact the operations team. Goodbye."},
		hangup{},
	)
}

// AlertMissing produces the dead-end document for an unknown alert
func (b *ScriptBuilder) AlertMissing() string {
	return render(
		say{Voice: speechVoice, Text: "We could not find this alert. Please contact the operations team. Goodbye."},
		hangup{},
	)
}
