package accounts

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/clinica-online/accounts/internal/domain"
	"github.com/clinica-online/accounts/internal/pkg/httputil"
	"github.com/clinica-online/accounts/internal/pkg/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// CookieSettings controls the session cookie.
type CookieSettings struct {
	Secure        bool
	Domain        string
	TokenDuration time.Duration
}

// Handler exposes the accounts module over HTTP.
type Handler struct {
	service        *Service
	auth           *AuthService
	validator      *validator.Validate
	cookieSettings CookieSettings
}

// NewHandler creates the accounts handler.
func NewHandler(service *Service, auth *AuthService, cookieSettings CookieSettings) *Handler {
	return &Handler{
		service:        service,
		auth:           auth,
		validator:      validator.New(),
		cookieSettings: cookieSettings,
	}
}

// RegisterRoutes registers the public routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register/patient", h.RegisterPatient)
		r.Post("/register/specialist", h.RegisterSpecialist)
		r.Post("/login", h.Login)
		r.Post("/logout", h.Logout)
		r.Get("/verify-email", h.VerifyEmail)
		r.Post("/resend-verification", h.ResendVerification)
	})
}

// RegisterProtectedRoutes registers routes behind authentication.
func (h *Handler) RegisterProtectedRoutes(r chi.Router) {
	r.Get("/me", h.Me)
}

// RegisterAdminRoutes registers administrator-only capabilities. The
// caller wraps them with the authorization guard.
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.Post("/accounts/patients", h.AdminCreatePatient)
		r.Post("/accounts/specialists", h.AdminCreateSpecialist)
		r.Post("/accounts/administrators", h.AdminCreateAdministrator)
		r.Put("/specialists/{id}/approval", h.SetApproval)
		r.Get("/accounts", h.ListAccounts)
	})
}

// AssetPayload carries a file inline as base64.
type AssetPayload struct {
	Name    string `json:"name" validate:"required"`
	Content string `json:"content" validate:"required,base64"`
}

func (p *AssetPayload) decode() (*Asset, error) {
	if p == nil {
		return nil, nil
	}
	content, err := base64.StdEncoding.DecodeString(p.Content)
	if err != nil {
		return nil, err
	}
	return &Asset{Name: p.Name, Content: content}, nil
}

// RegisterPatientRequest is the patient self-registration body.
type RegisterPatientRequest struct {
	Name       string        `json:"name" validate:"required"`
	Surname    string        `json:"surname" validate:"required"`
	Email      string        `json:"email" validate:"required,email"`
	Credential string        `json:"credential" validate:"required"`
	NationalID int64         `json:"national_id" validate:"required"`
	HealthPlan string        `json:"health_plan" validate:"required"`
	Photo1     *AssetPayload `json:"photo1" validate:"required"`
	Photo2     *AssetPayload `json:"photo2" validate:"required"`
}

// RegisterSpecialistRequest is the specialist registration body, shared
// by the self-service and admin-initiated paths.
type RegisterSpecialistRequest struct {
	Name         string        `json:"name" validate:"required"`
	Surname      string        `json:"surname" validate:"required"`
	Email        string        `json:"email" validate:"required,email"`
	Credential   string        `json:"credential" validate:"required"`
	NationalID   int64         `json:"national_id" validate:"required"`
	Specialty    string        `json:"specialty" validate:"required"`
	Age          int           `json:"age" validate:"required"`
	ProfileImage *AssetPayload `json:"profile_image" validate:"required"`
}

// CreateAdministratorRequest is the admin-creation body. Specialty is
// not accepted: it is forced server-side.
type CreateAdministratorRequest struct {
	Name         string        `json:"name" validate:"required"`
	Surname      string        `json:"surname" validate:"required"`
	Email        string        `json:"email" validate:"required,email"`
	Credential   string        `json:"credential" validate:"required"`
	NationalID   int64         `json:"national_id" validate:"required"`
	Age          int           `json:"age" validate:"required"`
	ProfileImage *AssetPayload `json:"profile_image" validate:"required"`
}

// AccountResponse is the public view of an account. Credential material
// never leaves the service.
type AccountResponse struct {
	ID            int64  `json:"id"`
	Role          string `json:"role"`
	Name          string `json:"name"`
	Surname       string `json:"surname"`
	Email         string `json:"email"`
	NationalID    int64  `json:"national_id"`
	EmailVerified bool   `json:"email_verified"`
	Approved      *bool  `json:"approved,omitempty"`
	HealthPlan    string `json:"health_plan,omitempty"`
	PhotoURL1     string `json:"photo_url1,omitempty"`
	PhotoURL2     string `json:"photo_url2,omitempty"`
	Specialty     string `json:"specialty,omitempty"`
	Age           int    `json:"age,omitempty"`
	ProfileImage  string `json:"profile_image_url,omitempty"`
}

func toAccountResponse(a *domain.Account) AccountResponse {
	resp := AccountResponse{
		ID:            a.ID,
		Role:          string(a.Role),
		Name:          a.Name,
		Surname:       a.Surname,
		Email:         a.Email,
		NationalID:    a.NationalID,
		EmailVerified: a.EmailVerified,
		HealthPlan:    a.HealthPlan,
		PhotoURL1:     a.PhotoURL1,
		PhotoURL2:     a.PhotoURL2,
		Specialty:     a.Specialty,
		Age:           a.Age,
		ProfileImage:  a.ProfileImageURL,
	}
	if a.Role == domain.RoleSpecialist {
		approved := a.Approved
		resp.Approved = &approved
	}
	return resp
}

// RegisterPatient handles POST /auth/register/patient.
func (h *Handler) RegisterPatient(w http.ResponseWriter, r *http.Request) {
	var req RegisterPatientRequest
	if !h.decode(w, r, &req) {
		return
	}

	photo1, err := req.Photo1.decode()
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "photo1: invalid base64 content")
		return
	}
	photo2, err := req.Photo2.decode()
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "photo2: invalid base64 content")
		return
	}

	id, err := h.service.RegisterPatient(r.Context(), RegisterPatientInput{
		Name:       req.Name,
		Surname:    req.Surname,
		Email:      req.Email,
		Credential: req.Credential,
		NationalID: req.NationalID,
		HealthPlan: req.HealthPlan,
		Photo1:     photo1,
		Photo2:     photo2,
	})
	h.respondRegistration(w, r, domain.RolePatient, id, err)
}

// RegisterSpecialist handles POST /auth/register/specialist.
func (h *Handler) RegisterSpecialist(w http.ResponseWriter, r *http.Request) {
	h.registerSpecialist(w, r)
}

// AdminCreatePatient handles POST /admin/accounts/patients.
func (h *Handler) AdminCreatePatient(w http.ResponseWriter, r *http.Request) {
	h.RegisterPatient(w, r)
}

// AdminCreateSpecialist handles POST /admin/accounts/specialists. Like
// the self-service path it refuses the reserved specialty; only the
// administrator-creation route may produce administrators.
func (h *Handler) AdminCreateSpecialist(w http.ResponseWriter, r *http.Request) {
	h.registerSpecialist(w, r)
}

func (h *Handler) registerSpecialist(w http.ResponseWriter, r *http.Request) {
	var req RegisterSpecialistRequest
	if !h.decode(w, r, &req) {
		return
	}

	image, err := req.ProfileImage.decode()
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "profile_image: invalid base64 content")
		return
	}

	id, err := h.service.RegisterSpecialist(r.Context(), RegisterSpecialistInput{
		Name:         req.Name,
		Surname:      req.Surname,
		Email:        req.Email,
		Credential:   req.Credential,
		NationalID:   req.NationalID,
		Specialty:    req.Specialty,
		Age:          req.Age,
		ProfileImage: image,
	})
	h.respondRegistration(w, r, domain.RoleSpecialist, id, err)
}

// AdminCreateAdministrator handles POST /admin/accounts/administrators.
func (h *Handler) AdminCreateAdministrator(w http.ResponseWriter, r *http.Request) {
	var req CreateAdministratorRequest
	if !h.decode(w, r, &req) {
		return
	}

	image, err := req.ProfileImage.decode()
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "profile_image: invalid base64 content")
		return
	}

	id, err := h.service.CreateAdministrator(r.Context(), CreateAdminInput{
		Name:         req.Name,
		Surname:      req.Surname,
		Email:        req.Email,
		Credential:   req.Credential,
		NationalID:   req.NationalID,
		Age:          req.Age,
		ProfileImage: image,
	})
	h.respondRegistration(w, r, domain.RoleAdmin, id, err)
}

// LoginRequest is the login body.
type LoginRequest struct {
	Email      string `json:"email" validate:"required,email"`
	Credential string `json:"credential" validate:"required"`
}

// Login handles POST /auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}

	account, token, err := h.auth.Login(r.Context(), req.Email, req.Credential)
	if err != nil {
		metrics.LoginsTotal.WithLabelValues(loginOutcome(err)).Inc()
		h.handleServiceError(r, w, err)
		return
	}
	metrics.LoginsTotal.WithLabelValues("success").Inc()

	h.setSessionCookie(w, token)
	httputil.Success(w, http.StatusOK, toAccountResponse(account))
}

// Logout handles POST /auth/logout. The session is the cookie; clearing
// it clears the current identity.
func (h *Handler) Logout(w http.ResponseWriter, _ *http.Request) {
	h.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// VerifyEmail handles GET /auth/verify-email?token=...
func (h *Handler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		httputil.Error(w, http.StatusBadRequest, "missing token")
		return
	}

	if err := h.service.VerifyEmail(r.Context(), token); err != nil {
		h.handleServiceError(r, w, err)
		return
	}
	httputil.Success(w, http.StatusOK, map[string]string{"status": "verified"})
}

// ResendVerificationRequest is the resend body.
type ResendVerificationRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResendVerification handles POST /auth/resend-verification.
func (h *Handler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req ResendVerificationRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.service.ResendVerification(r.Context(), req.Email); err != nil {
		h.handleServiceError(r, w, err)
		return
	}
	httputil.Success(w, http.StatusOK, map[string]string{"status": "sent"})
}

// Me handles GET /me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	identity := httputil.IdentityFromContext(r.Context())
	if identity == nil {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	account, err := h.service.GetByID(r.Context(), identity.AccountID)
	if err != nil {
		h.handleServiceError(r, w, err)
		return
	}
	httputil.Success(w, http.StatusOK, toAccountResponse(account))
}

// ApprovalRequest is the approval toggle body.
type ApprovalRequest struct {
	Approved *bool `json:"approved" validate:"required"`
}

// SetApproval handles PUT /admin/specialists/{id}/approval.
func (h *Handler) SetApproval(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid account id")
		return
	}

	var req ApprovalRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.service.SetApproval(r.Context(), id, *req.Approved); err != nil {
		h.handleServiceError(r, w, err)
		return
	}
	httputil.Success(w, http.StatusOK, map[string]interface{}{"id": id, "approved": *req.Approved})
}

// ListAccounts handles GET /admin/accounts?role=...
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	role := domain.Role(r.URL.Query().Get("role"))

	list, err := h.service.List(r.Context(), role)
	if err != nil {
		h.handleServiceError(r, w, err)
		return
	}

	resp := make([]AccountResponse, 0, len(list))
	for _, account := range list {
		resp = append(resp, toAccountResponse(account))
	}
	httputil.Success(w, http.StatusOK, resp)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		httputil.ValidationError(w, err)
		return false
	}
	return true
}

func (h *Handler) respondRegistration(w http.ResponseWriter, r *http.Request, role domain.Role, id int64, err error) {
	if err != nil {
		metrics.RegistrationsTotal.WithLabelValues(string(role), "failure").Inc()
		h.handleServiceError(r, w, err)
		return
	}
	metrics.RegistrationsTotal.WithLabelValues(string(role), "success").Inc()
	httputil.Success(w, http.StatusCreated, map[string]int64{"id": id})
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     httputil.SessionCookie,
		Value:    token,
		Path:     "/",
		Domain:   h.cookieSettings.Domain,
		MaxAge:   int(h.cookieSettings.TokenDuration.Seconds()),
		HttpOnly: true,
		Secure:   h.cookieSettings.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     httputil.SessionCookie,
		Value:    "",
		Path:     "/",
		Domain:   h.cookieSettings.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookieSettings.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) handleServiceError(r *http.Request, w http.ResponseWriter, err error) {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		httputil.Error(w, http.StatusBadRequest, validationErr.Error())
		return
	}

	var duplicateErr *DuplicateFieldError
	if errors.As(err, &duplicateErr) {
		httputil.Error(w, http.StatusConflict, duplicateErr.Error())
		return
	}

	var uploadErr *AssetUploadError
	if errors.As(err, &uploadErr) {
		httputil.Error(w, http.StatusBadGateway, uploadErr.Error())
		return
	}

	httputil.HandleError(r.Context(), w, err, []httputil.ErrorMapping{
		{Error: ErrReservedSpecialty, Status: http.StatusBadRequest},
		{Error: ErrInvalidCredentials, Status: http.StatusUnauthorized},
		{Error: ErrAccountNotVerified, Status: http.StatusForbidden},
		{Error: ErrAccountNotApproved, Status: http.StatusForbidden},
		{Error: ErrTooManyLoginAttempts, Status: http.StatusTooManyRequests},
		{Error: ErrAccountNotFound, Status: http.StatusNotFound},
		{Error: ErrTokenNotFound, Status: http.StatusNotFound},
		{Error: ErrStoreUnavailable, Status: http.StatusServiceUnavailable},
	})
}

func loginOutcome(err error) string {
	switch {
	case errors.Is(err, ErrAccountNotVerified):
		return "not_verified"
	case errors.Is(err, ErrAccountNotApproved):
		return "not_approved"
	case errors.Is(err, ErrTooManyLoginAttempts):
		return "throttled"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	}
	return "error"
}
