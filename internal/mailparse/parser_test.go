package mailparse

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/sendgate/smtpgw/internal/apierror"
)

// crlf joins lines with CRLF and appends a trailing CRLF.
func crlf(lines ...string) []byte {
	return []byte(strings.Join(lines, "\r\n") + "\r\n")
}

func TestParse_SimplePlainText(t *testing.T) {
	raw := crlf(
		"From: sender@example.com",
		"To: rcpt@example.com",
		"Subject: Hello",
		"",
		"body line one",
		"body line two",
	)

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if msg.From != "sender@example.com" {
		t.Errorf("From = %q", msg.From)
	}
	if len(msg.To) != 1 || msg.To[0] != "rcpt@example.com" {
		t.Errorf("To = %v", msg.To)
	}
	if msg.Subject != "Hello" {
		t.Errorf("Subject = %q", msg.Subject)
	}
	if !strings.Contains(msg.BodyText, "body line one") {
		t.Errorf("BodyText = %q", msg.BodyText)
	}
	if msg.BodyHTML != "" {
		t.Errorf("BodyHTML = %q, want empty", msg.BodyHTML)
	}
}

func TestParse_DisplayNames(t *testing.T) {
	raw := crlf(
		`From: Alice Sender <alice@example.com>`,
		`To: Bob One <bob@example.com>, carol@example.com`,
		`Cc: "Dave, Jr." <dave@example.com>`,
		"Subject: names",
		"",
		"hi",
	)

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	// The sender keeps its display form; recipients are bare addresses.
	if !strings.Contains(msg.From, "alice@example.com") || !strings.Contains(msg.From, "Alice Sender") {
		t.Errorf("From = %q, want display form preserved", msg.From)
	}
	if len(msg.To) != 2 || msg.To[0] != "bob@example.com" || msg.To[1] != "carol@example.com" {
		t.Errorf("To = %v", msg.To)
	}
	if len(msg.Cc) != 1 || msg.Cc[0] != "dave@example.com" {
		t.Errorf("Cc = %v", msg.Cc)
	}
}

func TestParse_MissingFrom(t *testing.T) {
	raw := crlf(
		"To: rcpt@example.com",
		"Subject: nope",
		"",
		"body",
	)

	_, err := Parse(raw)
	if err == nil {
		t.Fatal("expected error for missing From")
	}
	if !apierror.IsKind(err, apierror.KindFormat) {
		t.Errorf("error kind = %v, want format", err)
	}
}

func TestParse_NoRecipients(t *testing.T) {
	raw := crlf(
		"From: sender@example.com",
		"Subject: nope",
		"",
		"body",
	)

	_, err := Parse(raw)
	if err == nil {
		t.Fatal("expected error for missing recipients")
	}
	if !apierror.IsKind(err, apierror.KindFormat) {
		t.Errorf("error kind = %v, want format", err)
	}
}

func TestParse_BccOnly(t *testing.T) {
	raw := crlf(
		"From: sender@example.com",
		"Bcc: hidden@example.com",
		"",
		"body",
	)

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(msg.Bcc) != 1 || msg.Bcc[0] != "hidden@example.com" {
		t.Errorf("Bcc = %v", msg.Bcc)
	}
}

func TestParse_EncodedSubjectAndCustomHeaders(t *testing.T) {
	raw := crlf(
		"From: sender@example.com",
		"To: rcpt@example.com",
		"Subject: =?UTF-8?B?SMOpbGxv?=",
		"Reply-To: replies@example.com",
		"Message-ID: <abc123@example.com>",
		"Date: Mon, 24 Aug 2026 10:00:00 +0000",
		"X-Campaign: =?UTF-8?Q?caf=C3=A9?=",
		"X-Priority: 1",
		"Received: from client by server",
		"",
		"body",
	)

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if msg.Subject != "Héllo" {
		t.Errorf("Subject = %q, want Héllo", msg.Subject)
	}
	if msg.ReplyTo != "replies@example.com" {
		t.Errorf("ReplyTo = %q", msg.ReplyTo)
	}
	if msg.MessageID != "<abc123@example.com>" {
		t.Errorf("MessageID = %q", msg.MessageID)
	}
	if msg.Date != "Mon, 24 Aug 2026 10:00:00 +0000" {
		t.Errorf("Date = %q", msg.Date)
	}
	if got := msg.CustomHeaders["X-Campaign"]; got != "café" {
		t.Errorf("X-Campaign = %q, want café", got)
	}
	if got := msg.CustomHeaders["X-Priority"]; got != "1" {
		t.Errorf("X-Priority = %q", got)
	}
	if _, ok := msg.CustomHeaders["Received"]; ok {
		t.Error("non X- header captured in custom headers")
	}
}

func TestParse_MultipartAlternative(t *testing.T) {
	raw := crlf(
		"From: sender@example.com",
		"To: rcpt@example.com",
		"Subject: alt",
		`Content-Type: multipart/alternative; boundary="BOUND"`,
		"",
		"--BOUND",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"Hi",
		"--BOUND",
		"Content-Type: text/html; charset=utf-8",
		"",
		"<p>Hi</p>",
		"--BOUND--",
	)

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if strings.TrimSpace(msg.BodyText) != "Hi" {
		t.Errorf("BodyText = %q", msg.BodyText)
	}
	if strings.TrimSpace(msg.BodyHTML) != "<p>Hi</p>" {
		t.Errorf("BodyHTML = %q", msg.BodyHTML)
	}
}

func TestParse_NestedMultipartWithAttachment(t *testing.T) {
	payload := []byte("attachment data")
	raw := crlf(
		"From: sender@example.com",
		"To: rcpt@example.com",
		"Subject: mixed",
		`Content-Type: multipart/mixed; boundary="OUTER"`,
		"",
		"--OUTER",
		`Content-Type: multipart/alternative; boundary="INNER"`,
		"",
		"--INNER",
		"Content-Type: text/plain",
		"",
		"plain body",
		"--INNER",
		"Content-Type: text/html",
		"",
		"<b>html body</b>",
		"--INNER--",
		"--OUTER",
		"Content-Type: application/octet-stream",
		`Content-Disposition: attachment; filename="data.bin"`,
		"Content-Transfer-Encoding: base64",
		"",
		base64.StdEncoding.EncodeToString(payload),
		"--OUTER--",
	)

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if strings.TrimSpace(msg.BodyText) != "plain body" {
		t.Errorf("BodyText = %q", msg.BodyText)
	}
	if strings.TrimSpace(msg.BodyHTML) != "<b>html body</b>" {
		t.Errorf("BodyHTML = %q", msg.BodyHTML)
	}

	if len(msg.Attachments) != 1 {
		t.Fatalf("attachments = %d, want 1", len(msg.Attachments))
	}
	att := msg.Attachments[0]
	if att.Filename != "data.bin" {
		t.Errorf("Filename = %q", att.Filename)
	}
	if att.ContentType != "application/octet-stream" {
		t.Errorf("ContentType = %q", att.ContentType)
	}
	if att.Content != base64.StdEncoding.EncodeToString(payload) {
		t.Errorf("Content = %q", att.Content)
	}
	if att.Size != len(payload) {
		t.Errorf("Size = %d, want %d", att.Size, len(payload))
	}
}

func TestParse_InlineAttachment(t *testing.T) {
	raw := crlf(
		"From: sender@example.com",
		"To: rcpt@example.com",
		`Content-Type: multipart/mixed; boundary="B"`,
		"",
		"--B",
		"Content-Type: text/plain",
		"",
		"body",
		"--B",
		"Content-Type: image/png",
		`Content-Disposition: inline; filename="logo.png"`,
		"Content-Transfer-Encoding: base64",
		"",
		base64.StdEncoding.EncodeToString([]byte{0x89, 'P', 'N', 'G'}),
		"--B--",
	)

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(msg.Attachments) != 1 {
		t.Fatalf("attachments = %d, want 1", len(msg.Attachments))
	}
	if msg.Attachments[0].Filename != "logo.png" {
		t.Errorf("Filename = %q", msg.Attachments[0].Filename)
	}
	if msg.Attachments[0].Size != 4 {
		t.Errorf("Size = %d, want 4", msg.Attachments[0].Size)
	}
}

func TestParse_AttachmentWithoutFilenameSkipped(t *testing.T) {
	raw := crlf(
		"From: sender@example.com",
		"To: rcpt@example.com",
		`Content-Type: multipart/mixed; boundary="B"`,
		"",
		"--B",
		"Content-Type: text/plain",
		"",
		"body",
		"--B",
		"Content-Type: application/octet-stream",
		"Content-Disposition: attachment",
		"",
		"raw bytes",
		"--B--",
	)

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(msg.Attachments) != 0 {
		t.Errorf("attachments = %d, want 0", len(msg.Attachments))
	}
}

func TestParse_SinglePartHTML(t *testing.T) {
	raw := crlf(
		"From: sender@example.com",
		"To: rcpt@example.com",
		"Content-Type: text/html; charset=utf-8",
		"",
		"<p>only html</p>",
	)

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if msg.BodyText != "" {
		t.Errorf("BodyText = %q, want empty", msg.BodyText)
	}
	if strings.TrimSpace(msg.BodyHTML) != "<p>only html</p>" {
		t.Errorf("BodyHTML = %q", msg.BodyHTML)
	}
}

func TestParse_QuotedPrintableLatin1(t *testing.T) {
	raw := crlf(
		"From: sender@example.com",
		"To: rcpt@example.com",
		"Content-Type: text/plain; charset=iso-8859-1",
		"Content-Transfer-Encoding: quoted-printable",
		"",
		"caf=E9",
	)

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if strings.TrimSpace(msg.BodyText) != "café" {
		t.Errorf("BodyText = %q, want café", msg.BodyText)
	}
}

func TestParse_UnknownCharsetFallsBack(t *testing.T) {
	raw := crlf(
		"From: sender@example.com",
		"To: rcpt@example.com",
		"Content-Type: text/plain; charset=x-no-such-charset",
		"",
		"plain enough",
	)

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse should tolerate unknown charsets: %v", err)
	}
	if !strings.Contains(msg.BodyText, "plain enough") {
		t.Errorf("BodyText = %q", msg.BodyText)
	}
}

func TestRecipients_Order(t *testing.T) {
	m := &Message{
		To:  []string{"a@x.com", "b@x.com"},
		Cc:  []string{"c@x.com"},
		Bcc: []string{"d@x.com"},
	}

	got := m.Recipients()
	want := []string{"a@x.com", "b@x.com", "c@x.com", "d@x.com"}
	if len(got) != len(want) {
		t.Fatalf("recipients = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("recipients[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
