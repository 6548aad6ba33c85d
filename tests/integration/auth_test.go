//go:build integration

package integration

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/clinica-online/accounts/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func registerPatient(t *testing.T, client *testutil.Client, n int64) int64 {
	t.Helper()
	resp, err := client.POST("/api/v1/auth/register/patient", patientPayload(n))
	require.NoError(t, err)
	return createdID(t, resp)
}

func TestLogin_RequiresVerifiedEmail(t *testing.T) {
	client := newTestClient(t)
	n := nextSeq()
	id := registerPatient(t, client, n)

	resp, err := client.POST("/api/v1/auth/login", map[string]string{
		"email":      fmt.Sprintf("patient%d@clinica.test", n),
		"credential": fmt.Sprintf("Pac%05d", n),
	})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	verifyEmail(t, client, id)

	resp, err = client.POST("/api/v1/auth/login", map[string]string{
		"email":      fmt.Sprintf("patient%d@clinica.test", n),
		"credential": fmt.Sprintf("Pac%05d", n),
	})
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLogin_WrongCredential(t *testing.T) {
	client := newTestClient(t)

	resp, err := client.POST("/api/v1/auth/login", map[string]string{
		"email":      rootAdminEmail,
		"credential": "Wrong9999",
	})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLogin_UnknownEmail(t *testing.T) {
	client := newTestClient(t)

	resp, err := client.POST("/api/v1/auth/login", map[string]string{
		"email":      "ghost@clinica.test",
		"credential": "Ghost123",
	})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSession_MeAndLogout(t *testing.T) {
	client := newTestClient(t)
	n := nextSeq()
	id := registerPatient(t, client, n)
	verifyEmail(t, client, id)

	client.LoginAs(t, fmt.Sprintf("patient%d@clinica.test", n), fmt.Sprintf("Pac%05d", n))

	resp, err := client.GET("/api/v1/me")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var me struct {
		Data struct {
			ID    int64  `json:"id"`
			Email string `json:"email"`
			Role  string `json:"role"`
		} `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &me)
	assert.Equal(t, id, me.Data.ID)
	assert.Equal(t, "patient", me.Data.Role)

	// The account payload never carries credential material.
	resp, err = client.GET("/api/v1/me")
	require.NoError(t, err)
	body := testutil.ReadBody(t, resp)
	assert.NotContains(t, body, "credential")
	assert.NotContains(t, body, "hash")

	resp, err = client.POST("/api/v1/auth/logout", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = client.GET("/api/v1/me")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestMe_WithoutSession(t *testing.T) {
	client := newTestClient(t)

	resp, err := client.GET("/api/v1/me")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAdminRoutes_ForbiddenForPatients(t *testing.T) {
	client := newTestClient(t)
	n := nextSeq()
	id := registerPatient(t, client, n)
	verifyEmail(t, client, id)
	client.LoginAs(t, fmt.Sprintf("patient%d@clinica.test", n), fmt.Sprintf("Pac%05d", n))

	resp, err := client.GET("/api/v1/admin/accounts?role=patient")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, err = client.POST("/api/v1/admin/accounts/administrators", map[string]interface{}{
		"name":          "Intruso",
		"surname":       "Malo",
		"email":         "intruso@clinica.test",
		"credential":    "Intru123",
		"national_id":   60000001,
		"age":           30,
		"profile_image": photoPayload("x.jpg"),
	})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestAdminRoutes_AllowedForAdministrators(t *testing.T) {
	client := newTestClient(t)
	client.LoginAs(t, rootAdminEmail, rootAdminCredential)

	resp, err := client.GET("/api/v1/admin/accounts?role=administrator")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list struct {
		Data []struct {
			Email string `json:"email"`
			Role  string `json:"role"`
		} `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &list)
	require.NotEmpty(t, list.Data)
	for _, account := range list.Data {
		assert.Equal(t, "administrator", account.Role)
	}
}

func TestAdminCreatesAdministrator(t *testing.T) {
	client := newTestClient(t)
	client.LoginAs(t, rootAdminEmail, rootAdminCredential)

	n := nextSeq()
	resp, err := client.POST("/api/v1/admin/accounts/administrators", map[string]interface{}{
		"name":          "Nuevo",
		"surname":       "Admin",
		"email":         fmt.Sprintf("admin%d@clinica.test", n),
		"credential":    fmt.Sprintf("Adm%05d", n),
		"national_id":   70000000 + n,
		"age":           41,
		"profile_image": photoPayload("admin.jpg"),
	})
	require.NoError(t, err)
	id := createdID(t, resp)

	// New administrators still verify their email before logging in.
	verifyEmail(t, client, id)

	fresh := newTestClient(t)
	fresh.LoginAs(t, fmt.Sprintf("admin%d@clinica.test", n), fmt.Sprintf("Adm%05d", n))

	resp, err = fresh.GET("/api/v1/admin/accounts?role=patient")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestResendVerification(t *testing.T) {
	client := newTestClient(t)
	n := nextSeq()
	id := registerPatient(t, client, n)
	email := fmt.Sprintf("patient%d@clinica.test", n)

	resp, err := client.POST("/api/v1/auth/resend-verification", map[string]string{"email": email})
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// The freshest token is the resent one; it verifies the account.
	token := verificationTokenFor(t, id)
	resp, err = client.GET("/api/v1/auth/verify-email?token=" + token)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	client.LoginAs(t, email, fmt.Sprintf("Pac%05d", n))

	// Once verified, another resend is rejected.
	resp, err = client.POST("/api/v1/auth/resend-verification", map[string]string{"email": email})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestVerifyEmail_TokenSingleUse(t *testing.T) {
	client := newTestClient(t)
	n := nextSeq()
	id := registerPatient(t, client, n)

	token := verificationTokenFor(t, id)

	resp, err := client.GET("/api/v1/auth/verify-email?token=" + token)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = client.GET("/api/v1/auth/verify-email?token=" + token)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
