// Package notifications informs account holders of lifecycle outcomes.
// Delivery is fire-and-forget from the registration workflow's point of
// view: a failed send never aborts or retries the operation that
// triggered it.
package notifications

import (
	"context"
	"fmt"

	"github.com/clinica-online/accounts/internal/domain"
)

// MessageSender delivers a single message to one recipient.
type MessageSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Notifier composes and dispatches account lifecycle messages. It
// implements accounts.Notifier.
type Notifier struct {
	sender MessageSender
	// verifyBaseURL is the public prefix of the email-verification
	// endpoint, e.g. https://clinica.example.com/api/v1/auth/verify-email.
	verifyBaseURL string
}

// NewNotifier creates a notifier over the given sender.
func NewNotifier(sender MessageSender, verifyBaseURL string) *Notifier {
	return &Notifier{sender: sender, verifyBaseURL: verifyBaseURL}
}

// AccountRegistered sends the welcome message with the email
// verification link. An empty token means token issuance failed; the
// welcome still goes out and verification can be re-requested.
func (n *Notifier) AccountRegistered(ctx context.Context, account *domain.Account, verificationToken string) error {
	subject := "Bienvenido a Clínica Online"

	body := fmt.Sprintf("Hola %s,\n\nTu cuenta fue creada.\n", account.Name)
	if verificationToken != "" {
		body += fmt.Sprintf("\nVerificá tu email abriendo este enlace:\n%s?token=%s\n", n.verifyBaseURL, verificationToken)
	}
	if account.Role == domain.RoleSpecialist {
		body += "\nTu cuenta de especialista queda pendiente de aprobación por un administrador.\n"
	}

	return n.sender.Send(ctx, account.Email, subject, body)
}

// VerificationRequested sends a fresh verification link on an explicit
// resend request.
func (n *Notifier) VerificationRequested(ctx context.Context, account *domain.Account, verificationToken string) error {
	subject := "Verificá tu email"

	body := fmt.Sprintf("Hola %s,\n\nPediste un nuevo enlace de verificación:\n%s?token=%s\n",
		account.Name, n.verifyBaseURL, verificationToken)

	return n.sender.Send(ctx, account.Email, subject, body)
}

// ApprovalChanged notifies a specialist that an administrator granted or
// revoked approval.
func (n *Notifier) ApprovalChanged(ctx context.Context, account *domain.Account) error {
	subject := "Estado de aprobación actualizado"

	var body string
	if account.Approved {
		body = fmt.Sprintf("Hola %s,\n\nTu cuenta de especialista fue aprobada. Ya podés iniciar sesión.\n", account.Name)
	} else {
		body = fmt.Sprintf("Hola %s,\n\nTu aprobación de especialista fue revocada por un administrador.\n", account.Name)
	}

	return n.sender.Send(ctx, account.Email, subject, body)
}
