package mailparse

import (
	"bytes"
	"encoding/base64"
	"io"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset" // register charset decoders
	"github.com/emersion/go-message/mail"

	"github.com/sendgate/smtpgw/internal/apierror"
)

// Parse decodes raw message bytes into a Message. All failures, including
// missing required headers, are reported as a single format error; the parser
// never partially succeeds.
func Parse(raw []byte) (*Message, error) {
	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, apierror.Wrap(apierror.KindFormat, err, "invalid email format")
	}

	from := headerText(entity.Header, "From")
	if from == "" {
		return nil, apierror.New(apierror.KindFormat, "missing required header: From")
	}

	mh := mail.Header{Header: entity.Header}

	to, err := addressList(mh, "To")
	if err != nil {
		return nil, err
	}
	cc, err := addressList(mh, "Cc")
	if err != nil {
		return nil, err
	}
	bcc, err := addressList(mh, "Bcc")
	if err != nil {
		return nil, err
	}

	if len(to) == 0 && len(cc) == 0 && len(bcc) == 0 {
		return nil, apierror.New(apierror.KindFormat, "at least one recipient required (To, Cc, or Bcc)")
	}

	msg := &Message{
		From:          from,
		To:            to,
		Cc:            cc,
		Bcc:           bcc,
		Subject:       headerText(entity.Header, "Subject"),
		ReplyTo:       headerText(entity.Header, "Reply-To"),
		MessageID:     entity.Header.Get("Message-Id"),
		Date:          entity.Header.Get("Date"),
		CustomHeaders: customHeaders(entity.Header),
	}

	if err := walk(entity, msg); err != nil {
		return nil, err
	}

	return msg, nil
}

// walk traverses the MIME tree pre-order depth-first, capturing the first
// text/plain part as the text body, the first text/html part as the HTML body,
// and every attachment part along the way.
func walk(entity *message.Entity, msg *Message) error {
	if mr := entity.MultipartReader(); mr != nil {
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				return nil
			}
			if err != nil && !message.IsUnknownCharset(err) {
				return apierror.Wrap(apierror.KindFormat, err, "invalid email format")
			}
			if err := walk(part, msg); err != nil {
				return err
			}
		}
	}

	return leaf(entity, msg)
}

// leaf handles a single non-multipart part (including a single-part root).
func leaf(entity *message.Entity, msg *Message) error {
	contentType, _, err := entity.Header.ContentType()
	if err != nil || contentType == "" {
		contentType = "text/plain"
	}

	payload, err := io.ReadAll(entity.Body)
	if err != nil {
		return apierror.Wrap(apierror.KindFormat, err, "invalid email format")
	}

	switch contentType {
	case "text/plain":
		if msg.BodyText == "" && len(payload) > 0 {
			msg.BodyText = strings.ToValidUTF8(string(payload), "�")
		}
	case "text/html":
		if msg.BodyHTML == "" && len(payload) > 0 {
			msg.BodyHTML = strings.ToValidUTF8(string(payload), "�")
		}
	}

	disposition, _, err := entity.Header.ContentDisposition()
	if err != nil {
		disposition = ""
	}

	filename, err := (&mail.AttachmentHeader{Header: entity.Header}).Filename()
	if err != nil {
		filename = ""
	}

	isAttachment := disposition == "attachment" || disposition == "inline" ||
		(contentType != "text/plain" && contentType != "text/html" && filename != "")

	// Attachments without a filename are skipped.
	if isAttachment && filename != "" && len(payload) > 0 {
		msg.Attachments = append(msg.Attachments, Attachment{
			Filename:    filename,
			ContentType: contentType,
			Content:     base64.StdEncoding.EncodeToString(payload),
			Size:        len(payload),
		})
	}

	return nil
}

// headerText returns the RFC 2047 decoded header value, falling back to the
// raw value when decoding fails. Absent headers yield "".
func headerText(h message.Header, key string) string {
	text, err := h.Text(key)
	if err != nil {
		return h.Get(key)
	}
	return text
}

// addressList parses an address-list header into bare addresses, dropping
// display names. An absent or empty header yields an empty list.
func addressList(h mail.Header, key string) ([]string, error) {
	if strings.TrimSpace(h.Get(key)) == "" {
		return nil, nil
	}

	addrs, err := h.AddressList(key)
	if err != nil {
		return nil, apierror.Wrap(apierror.KindFormat, err, "invalid %s header", key)
	}

	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a.Address != "" {
			out = append(out, a.Address)
		}
	}
	return out, nil
}

// customHeaders collects every header whose name starts with "X-".
// Duplicate names keep the last occurrence.
func customHeaders(h message.Header) map[string]string {
	out := make(map[string]string)

	fields := h.Fields()
	for fields.Next() {
		key := fields.Key()
		if !strings.HasPrefix(key, "X-") {
			continue
		}
		value, err := fields.Text()
		if err != nil {
			value = fields.Value()
		}
		out[key] = value
	}

	return out
}
