package mailparse

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/nhle/portal-tracker/internal/model"
)

// ExtractionError reports that a message matched the search and was
// classified, but the portal name could not be located. The message is
// skipped; the batch continues.
type ExtractionError struct {
	Subject string
	Reason  string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extracting portal name from %q: %s", e.Subject, e.Reason)
}

// IsExtractionError reports whether err (or any error in its chain) is
// an ExtractionError.
func IsExtractionError(err error) bool {
	var extractErr *ExtractionError
	return errors.As(err, &extractErr)
}

// Older templates name the portal in a labeled body field instead.
var bodyNamePattern = regexp.MustCompile(`(?im)^\s*portal(?:\s+name)?\s*:\s*(.+?)\s*$`)

// Extract parses one classified message into a MailEvent. The portal
// name is taken from the subject's templated tail, falling back to the
// labeled body field. The event timestamp is the mailbox-provided
// received date; dates are never parsed from free text because the
// template's locale is not fixed.
func Extract(
	subject, body string,
	received time.Time,
	c Classification,
) (model.MailEvent, error) {
	if c == ClassIgnore {
		return model.MailEvent{}, &ExtractionError{
			Subject: subject,
			Reason:  "message is not a portal notification",
		}
	}

	name := portalName(subject, body)
	if name == "" {
		return model.MailEvent{}, &ExtractionError{
			Subject: subject,
			Reason:  "portal name not found in subject or body",
		}
	}

	return model.MailEvent{
		PortalID:   model.CanonicalID(name),
		PortalName: name,
		Kind:       c.EventKind(),
		Timestamp:  received,
	}, nil
}

// portalName locates the display name in the subject first, then the
// body. Returns "" when neither template pattern matches.
func portalName(subject, body string) string {
	if name := subjectName(subject); name != "" {
		return name
	}
	if m := bodyNamePattern.FindStringSubmatch(body); m != nil {
		return cleanName(m[1])
	}
	return ""
}

// subjectName pulls the portal name from a templated subject, e.g.
// "Ingress Portal Submitted: Old Mill". The text before the colon must
// be a known template head; a reply or forward prefix pushes the head
// past the first colon, so such subjects fall through to the body
// pattern instead of taking the template text as the name.
func subjectName(subject string) string {
	head, tail, ok := strings.Cut(subject, ":")
	if !ok {
		return ""
	}
	head = strings.ToLower(head)
	for _, phrase := range subjectPhrases {
		if strings.Contains(head, phrase) {
			return cleanName(tail)
		}
	}
	return ""
}

// cleanName strips template suffixes the review templates append after
// the portal name.
func cleanName(raw string) string {
	name := strings.TrimSpace(raw)
	if idx := strings.Index(name, " - "); idx > 0 {
		name = name[:idx]
	}
	return strings.TrimSpace(name)
}
