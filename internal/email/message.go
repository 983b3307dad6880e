// Package email defines the outbound message model shared by the composer,
// the delivery orchestrator and every provider.
package email

// Message is a fully composed email handed to a provider. Providers treat it
// as read-only.
type Message struct {
	From    string
	To      string
	ReplyTo string
	Cc      []string
	Subject string
	Text    string
	HTML    string
	// Headers are extra provider-neutral headers (e.g. X-Contact-Reference).
	Headers map[string]string
}

// Recipients returns the envelope recipients: To followed by every Cc.
func (m *Message) Recipients() []string {
	rcpt := make([]string, 0, 1+len(m.Cc))
	rcpt = append(rcpt, m.To)
	rcpt = append(rcpt, m.Cc...)
	return rcpt
}

// Receipt is what a provider reports back after accepting a message.
type Receipt struct {
	// MessageID is the provider-assigned id, empty when the backend does not
	// return one.
	MessageID string
}
