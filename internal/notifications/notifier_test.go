package notifications

import (
	"context"
	"errors"
	"testing"

	"github.com/clinica-online/accounts/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockSender implements MessageSender for testing.
type mockSender struct {
	to      []string
	subject []string
	body    []string
	err     error
}

func (m *mockSender) Send(_ context.Context, to, subject, body string) error {
	m.to = append(m.to, to)
	m.subject = append(m.subject, subject)
	m.body = append(m.body, body)
	return m.err
}

func TestAccountRegistered_PatientWithToken(t *testing.T) {
	sender := &mockSender{}
	notifier := NewNotifier(sender, "https://clinica.test/api/v1/auth/verify-email")

	err := notifier.AccountRegistered(context.Background(), &domain.Account{
		Role:  domain.RolePatient,
		Name:  "Ana",
		Email: "ana@example.com",
	}, "tok-123")

	require.NoError(t, err)
	require.Len(t, sender.to, 1)
	assert.Equal(t, "ana@example.com", sender.to[0])
	assert.Contains(t, sender.body[0], "https://clinica.test/api/v1/auth/verify-email?token=tok-123")
	assert.NotContains(t, sender.body[0], "pendiente de aprobación")
}

func TestAccountRegistered_SpecialistMentionsApproval(t *testing.T) {
	sender := &mockSender{}
	notifier := NewNotifier(sender, "https://clinica.test/verify")

	err := notifier.AccountRegistered(context.Background(), &domain.Account{
		Role:  domain.RoleSpecialist,
		Name:  "Bruno",
		Email: "bruno@example.com",
	}, "tok-456")

	require.NoError(t, err)
	assert.Contains(t, sender.body[0], "pendiente de aprobación")
}

func TestAccountRegistered_EmptyTokenOmitsLink(t *testing.T) {
	sender := &mockSender{}
	notifier := NewNotifier(sender, "https://clinica.test/verify")

	err := notifier.AccountRegistered(context.Background(), &domain.Account{
		Role:  domain.RolePatient,
		Name:  "Ana",
		Email: "ana@example.com",
	}, "")

	require.NoError(t, err)
	assert.NotContains(t, sender.body[0], "token=")
}

func TestVerificationRequested(t *testing.T) {
	sender := &mockSender{}
	notifier := NewNotifier(sender, "https://clinica.test/api/v1/auth/verify-email")

	err := notifier.VerificationRequested(context.Background(), &domain.Account{
		Role:  domain.RolePatient,
		Name:  "Ana",
		Email: "ana@example.com",
	}, "tok-789")

	require.NoError(t, err)
	require.Len(t, sender.to, 1)
	assert.Equal(t, "ana@example.com", sender.to[0])
	assert.Contains(t, sender.body[0], "https://clinica.test/api/v1/auth/verify-email?token=tok-789")
}

func TestApprovalChanged(t *testing.T) {
	sender := &mockSender{}
	notifier := NewNotifier(sender, "https://clinica.test/verify")

	account := &domain.Account{Role: domain.RoleSpecialist, Name: "Bruno", Email: "bruno@example.com", Approved: true}
	require.NoError(t, notifier.ApprovalChanged(context.Background(), account))
	assert.Contains(t, sender.body[0], "aprobada")

	account.Approved = false
	require.NoError(t, notifier.ApprovalChanged(context.Background(), account))
	assert.Contains(t, sender.body[1], "revocada")
}

func TestNotifier_PropagatesSendError(t *testing.T) {
	sender := &mockSender{err: errors.New("smtp down")}
	notifier := NewNotifier(sender, "https://clinica.test/verify")

	err := notifier.AccountRegistered(context.Background(), &domain.Account{Email: "ana@example.com"}, "tok")
	assert.Error(t, err)
}
