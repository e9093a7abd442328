package mailbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/mail"

	"github.com/nhle/portal-tracker/internal/mailparse"
)

// IMAPConfig holds the connection settings for an IMAP mailbox.
type IMAPConfig struct {
	Host     string
	Port     string
	Email    string
	Password string
	TLS      bool
}

// IMAPMailbox implements Mailbox over a live go-imap v2 connection.
type IMAPMailbox struct {
	client *imapclient.Client
	email  string
}

// Dial connects to the IMAP server and authenticates. A rejected
// credential is reported as an AuthError; transport failures as a
// FetchError. The caller is responsible for Close on the returned
// mailbox.
func Dial(_ context.Context, cfg IMAPConfig) (*IMAPMailbox, error) {
	addr := cfg.Host + ":" + cfg.Port

	var client *imapclient.Client
	var err error

	if cfg.TLS {
		client, err = imapclient.DialTLS(addr, nil)
	} else {
		client, err = imapclient.DialStartTLS(addr, nil)
	}
	if err != nil {
		return nil, &FetchError{
			Op:  "dial",
			Err: fmt.Errorf("connecting to IMAP %s: %w", addr, err),
		}
	}

	if err := client.Login(cfg.Email, cfg.Password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, &AuthError{
			Account: cfg.Email,
			Message: fmt.Sprintf("authentication failed: %v", err),
		}
	}

	return &IMAPMailbox{client: client, email: cfg.Email}, nil
}

// ListFolders returns the full names of all folders in the account.
func (m *IMAPMailbox) ListFolders(_ context.Context) ([]string, error) {
	boxes, err := m.client.List("", "*", nil).Collect()
	if err != nil {
		return nil, &FetchError{Op: "list folders", Err: err}
	}

	names := make([]string, 0, len(boxes))
	for _, box := range boxes {
		names = append(names, box.Mailbox)
	}
	return names, nil
}

// SelectFolder opens the named folder.
func (m *IMAPMailbox) SelectFolder(
	_ context.Context, name string, readOnly bool,
) error {
	opts := &imap.SelectOptions{ReadOnly: readOnly}
	if _, err := m.client.Select(name, opts).Wait(); err != nil {
		return &FetchError{
			Op:  "select",
			Err: fmt.Errorf("selecting %s: %w", name, err),
		}
	}
	return nil
}

// Search runs the query against the selected folder.
func (m *IMAPMailbox) Search(
	_ context.Context, q mailparse.Query,
) ([]uint32, error) {
	searchData, err := m.client.UIDSearch(q.Criteria(), nil).Wait()
	if err != nil {
		return nil, &FetchError{Op: "search", Err: err}
	}

	var uids []uint32
	for _, uid := range searchData.AllUIDs() {
		uids = append(uids, uint32(uid))
	}
	return uids, nil
}

// Fetch bulk-retrieves envelope data and the message body for the given
// UIDs in a single fetch command, so classification and extraction
// never need per-message round trips.
func (m *IMAPMailbox) Fetch(
	_ context.Context, uids []uint32,
) ([]Message, error) {
	if len(uids) == 0 {
		return nil, nil
	}

	imapUIDs := make([]imap.UID, 0, len(uids))
	for _, uid := range uids {
		imapUIDs = append(imapUIDs, imap.UID(uid))
	}
	uidSet := imap.UIDSetNum(imapUIDs...)

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchOpts := &imap.FetchOptions{
		Envelope:    true,
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}

	fetchCmd := m.client.Fetch(uidSet, fetchOpts)

	var messages []Message
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}

		buf, err := msg.Collect()
		if err != nil {
			continue
		}

		messages = append(messages, messageFromBuffer(buf, bodySection))
	}

	if err := fetchCmd.Close(); err != nil {
		return nil, &FetchError{Op: "fetch", Err: err}
	}

	return messages, nil
}

// Close logs out and releases the connection.
func (m *IMAPMailbox) Close() error {
	return m.client.Logout().Wait()
}

// messageFromBuffer extracts a Message from a collected fetch response.
func messageFromBuffer(
	buf *imapclient.FetchMessageBuffer,
	bodySection *imap.FetchItemBodySection,
) Message {
	msg := Message{UID: uint32(buf.UID)}

	if buf.Envelope != nil {
		msg.Subject = buf.Envelope.Subject
		msg.Received = buf.Envelope.Date
		if len(buf.Envelope.From) > 0 {
			msg.From = buf.Envelope.From[0].Addr()
		}
	}

	if raw := buf.FindBodySection(bodySection); raw != nil {
		msg.TextBody = decodeTextBody(raw)
	}

	return msg
}

// decodeTextBody walks the MIME structure with go-message and returns
// the text/plain part, falling back to the raw bytes when the message
// is not valid MIME.
func decodeTextBody(raw []byte) string {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return string(raw)
	}
	defer mr.Close()

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		header, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}

		contentType, _, _ := header.ContentType()
		if !strings.HasPrefix(contentType, "text/plain") {
			continue
		}

		body, readErr := io.ReadAll(part.Body)
		if readErr != nil {
			continue
		}
		return string(body)
	}

	return ""
}
