package email

import (
	"bytes"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/textproto"
	"sort"
	"strings"
	"time"
)

// BuildMIME renders msg as an RFC 5322 message with a multipart/alternative
// body (text/plain first, text/html second). Header values are Q-encoded
// when they contain non-ASCII characters and folded between encoded-words.
func BuildMIME(msg *Message, messageID string, date time.Time) ([]byte, error) {
	var buf bytes.Buffer

	writeHeader(&buf, "From", msg.From)
	writeHeader(&buf, "To", msg.To)
	if len(msg.Cc) > 0 {
		writeHeader(&buf, "Cc", strings.Join(msg.Cc, ", "))
	}
	if msg.ReplyTo != "" {
		writeHeader(&buf, "Reply-To", msg.ReplyTo)
	}
	writeHeader(&buf, "Subject", encodeHeader(msg.Subject))
	writeHeader(&buf, "Date", date.Format(time.RFC1123Z))
	if messageID != "" {
		writeHeader(&buf, "Message-ID", messageID)
	}

	keys := make([]string, 0, len(msg.Headers))
	for k := range msg.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeHeader(&buf, textproto.CanonicalMIMEHeaderKey(k), encodeHeader(msg.Headers[k]))
	}

	writeHeader(&buf, "MIME-Version", "1.0")

	writer := multipart.NewWriter(&buf)
	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", writer.Boundary())

	if err := writePart(writer, "text/plain; charset=UTF-8", msg.Text); err != nil {
		return nil, fmt.Errorf("failed to write text part: %w", err)
	}
	if msg.HTML != "" {
		if err := writePart(writer, "text/html; charset=UTF-8", msg.HTML); err != nil {
			return nil, fmt.Errorf("failed to write html part: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}
	return buf.Bytes(), nil
}

// encodeHeader Q-encodes value and puts each encoded-word on its own line,
// keeping long non-ASCII values under the line length limit.
func encodeHeader(value string) string {
	return strings.ReplaceAll(mime.QEncoding.Encode("UTF-8", value), "?= =?", "?=\r\n =?")
}

func writeHeader(buf *bytes.Buffer, key, value string) {
	fmt.Fprintf(buf, "%s: %s\r\n", key, value)
}

func writePart(w *multipart.Writer, contentType, body string) error {
	header := make(textproto.MIMEHeader)
	header.Set("Content-Type", contentType)
	header.Set("Content-Transfer-Encoding", "quoted-printable")

	part, err := w.CreatePart(header)
	if err != nil {
		return err
	}

	qp := quotedprintable.NewWriter(part)
	if _, err := qp.Write([]byte(body)); err != nil {
		return err
	}
	return qp.Close()
}
