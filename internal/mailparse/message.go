// Package mailparse decodes raw message bytes received over SMTP into the
// structured form submitted to the Email API.
package mailparse

// Attachment is a decoded MIME attachment, base64-encoded for the API.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Content     string `json:"content"`
	Size        int    `json:"size"`
}

// Message is the parsed form of one DATA payload.
type Message struct {
	// From keeps the display form as received, e.g. `Name <user@example.com>`.
	From string
	// To, Cc and Bcc hold bare addresses; display names are dropped.
	To  []string
	Cc  []string
	Bcc []string

	Subject  string
	BodyText string
	// BodyHTML is empty when the message carries no HTML part.
	BodyHTML string

	Attachments []Attachment

	ReplyTo   string
	MessageID string
	Date      string

	// CustomHeaders maps every X-* header name to its decoded value.
	CustomHeaders map[string]string
}

// Recipients returns to ∪ cc ∪ bcc preserving list order.
func (m *Message) Recipients() []string {
	out := make([]string, 0, len(m.To)+len(m.Cc)+len(m.Bcc))
	out = append(out, m.To...)
	out = append(out, m.Cc...)
	out = append(out, m.Bcc...)
	return out
}
