package users

import (
	"context"
	"fmt"
	"strings"
)

// Notifier delivers the welcome notice carrying the temporary credential.
// A nil error means delivered.
type Notifier interface {
	SendProvisioningNotice(ctx context.Context, identity Identity, temporaryCredential string) error
}

// Mailer sends a plain-text message.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// MailNotifier renders the welcome notice as an email.
type MailNotifier struct {
	mailer   Mailer
	loginURL string
}

// NewMailNotifier builds a MailNotifier.
func NewMailNotifier(mailer Mailer, loginURL string) *MailNotifier {
	return &MailNotifier{mailer: mailer, loginURL: loginURL}
}

// SendProvisioningNotice implements Notifier.
func (n *MailNotifier) SendProvisioningNotice(ctx context.Context, identity Identity, temporaryCredential string) error {
	if n == nil || n.mailer == nil {
		return fmt.Errorf("users: mailer not configured")
	}
	name := identity.DisplayName
	if name == "" {
		name = identity.Identifier
	}
	var body strings.Builder
	fmt.Fprintf(&body, "Hello %s,\n\n", name)
	body.WriteString("An account has been created for you.\n\n")
	fmt.Fprintf(&body, "Login: %s\n", identity.Identifier)
	fmt.Fprintf(&body, "Temporary password: %s\n\n", temporaryCredential)
	body.WriteString("You will be asked to choose a new password when you first sign in.\n")
	if n.loginURL != "" {
		fmt.Fprintf(&body, "\nSign in at %s\n", n.loginURL)
	}
	return n.mailer.Send(ctx, identity.Email, "Your Odyssey HR account", body.String())
}
