package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idvault/internal/address"
	"idvault/internal/audit"
	"idvault/internal/credential"
	"idvault/internal/decision"
	"idvault/internal/evaluator/rulebased"
	"idvault/internal/grant"
	"idvault/internal/identity"
	"idvault/internal/platform/logger"
	"idvault/internal/platform/metrics"
	"idvault/internal/session"
	"idvault/internal/verification"
)

// cascadeRevoker breaks the credential<->grant constructor cycle: the
// credential service is built against it first, the grant manager fills it
// in afterwards.
type cascadeRevoker struct {
	grants *grant.Manager
}

func (c *cascadeRevoker) RevokeByCredential(ctx context.Context, credentialAddress string) (int, error) {
	return c.grants.RevokeByCredential(ctx, credentialAddress)
}

type routerFixture struct {
	server *httptest.Server
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	log := logger.New(io.Discard)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	auditor := audit.NewPublisher(audit.NewMemorySink(), log, m)
	deriver := address.New("idvault-test", 0)

	identities := identity.NewService(identity.NewInMemoryStore(), deriver, log, auditor)
	cascade := &cascadeRevoker{}
	credentials := credential.NewService(credential.NewInMemoryStore(), identities, cascade, deriver, log, m, auditor)
	grants := grant.NewManager(grant.NewInMemoryStore(), credentials, deriver, log, m, auditor, 720*time.Hour)
	cascade.grants = grants

	sessions := session.NewManager(session.NewInMemoryStore(),
		session.NewTokenSigner("test-key", "idvault-test"), log, m, auditor,
		time.Hour, 24*time.Hour, 0)

	pipeline := verification.NewPipeline(verification.Evaluators{
		DocumentAnalysis: rulebased.DocumentAnalyzer{},
		FraudCheck:       rulebased.FraudChecker{},
		ComplianceCheck:  rulebased.ComplianceChecker{},
	}, decision.NewPolicy(decision.Thresholds{Risk: 0.7, Confidence: 0.6}),
		verification.NewInMemoryStore(), log, m, auditor, time.Second)

	server := httptest.NewServer(NewRouter(Config{
		Logger:        log,
		Metrics:       m,
		Gatherer:      reg,
		Sessions:      sessions,
		Identities:    identities,
		Verifications: pipeline,
		Credentials:   credentials,
		Grants:        grants,
	}))
	t.Cleanup(server.Close)
	return &routerFixture{server: server}
}

// do issues a request and decodes the JSON response into out when non-nil.
func (f *routerFixture) do(t *testing.T, method, path, token string, body, out any) int {
	t.Helper()
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		payload = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, f.server.URL+path, payload)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if out != nil && len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, out), "body: %s", raw)
	}
	return resp.StatusCode
}

func (f *routerFixture) login(t *testing.T, walletID string) tokenPairResponse {
	t.Helper()
	var pair tokenPairResponse
	status := f.do(t, http.MethodPost, "/v1/auth/login", "",
		map[string]string{"wallet_id": walletID}, &pair)
	require.Equal(t, http.StatusOK, status)
	return pair
}

// register logs a wallet in and registers its identity, returning the
// access token.
func (f *routerFixture) register(t *testing.T, walletID string) string {
	t.Helper()
	pair := f.login(t, walletID)
	status := f.do(t, http.MethodPost, "/v1/identities", pair.AccessToken,
		map[string]any{"commitment": bytes.Repeat([]byte{7}, identity.CommitmentSize)}, nil)
	require.Equal(t, http.StatusCreated, status)
	return pair.AccessToken
}

func TestHealthzAndMetrics(t *testing.T) {
	f := newRouterFixture(t)

	var health map[string]string
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/healthz", "", nil, &health))
	assert.Equal(t, "ok", health["status"])

	resp, err := http.Get(f.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthRequired(t *testing.T) {
	f := newRouterFixture(t)

	var body errorBody
	status := f.do(t, http.MethodGet, "/v1/credentials", "", nil, &body)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "unauthorized", body.Error)

	status = f.do(t, http.MethodGet, "/v1/credentials", "not-a-jwt", nil, &body)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestRefreshRotationAndReuse(t *testing.T) {
	f := newRouterFixture(t)
	pair := f.login(t, "wallet-1")

	var rotated tokenPairResponse
	status := f.do(t, http.MethodPost, "/v1/auth/refresh", "",
		map[string]string{"refresh_token": pair.RefreshToken}, &rotated)
	require.Equal(t, http.StatusOK, status)
	assert.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)

	// Replaying the consumed token is reuse: 401 with the dedicated code,
	// and the whole lineage dies with it.
	var body errorBody
	status = f.do(t, http.MethodPost, "/v1/auth/refresh", "",
		map[string]string{"refresh_token": pair.RefreshToken}, &body)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "token_reuse_detected", body.Error)

	status = f.do(t, http.MethodGet, "/v1/identities/me", rotated.AccessToken, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, status, "burned lineage rejects the rotated token too")
}

func TestLogout(t *testing.T) {
	f := newRouterFixture(t)
	pair := f.login(t, "wallet-1")

	require.Equal(t, http.StatusNoContent,
		f.do(t, http.MethodPost, "/v1/auth/logout", pair.AccessToken, nil, nil))
	assert.Equal(t, http.StatusUnauthorized,
		f.do(t, http.MethodGet, "/v1/identities/me", pair.AccessToken, nil, nil))
}

func TestIdentityLifecycle(t *testing.T) {
	f := newRouterFixture(t)
	pair := f.login(t, "wallet-1")
	commitment := bytes.Repeat([]byte{7}, identity.CommitmentSize)

	var created identityResponse
	status := f.do(t, http.MethodPost, "/v1/identities", pair.AccessToken,
		map[string]any{"commitment": commitment}, &created)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "wallet-1", created.WalletID)
	assert.NotEmpty(t, created.Address)
	assert.Zero(t, created.VerificationBits)

	status = f.do(t, http.MethodPost, "/v1/identities", pair.AccessToken,
		map[string]any{"commitment": commitment}, nil)
	assert.Equal(t, http.StatusConflict, status)

	var rotatedID identityResponse
	status = f.do(t, http.MethodPost, "/v1/identities/me/rotate", pair.AccessToken,
		map[string]any{"commitment": bytes.Repeat([]byte{9}, identity.CommitmentSize)}, &rotatedID)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, uint64(1), rotatedID.RecoveryCounter)

	// Recovery inside the quiet period is refused.
	var body errorBody
	status = f.do(t, http.MethodPost, "/v1/identities/me/recover", pair.AccessToken,
		map[string]any{"commitment": bytes.Repeat([]byte{3}, identity.CommitmentSize)}, &body)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestVerificationFlow(t *testing.T) {
	f := newRouterFixture(t)
	token := f.register(t, "wallet-1")

	var record verification.Record
	status := f.do(t, http.MethodPost, "/v1/verifications", token, map[string]any{
		"credential_type": "national_id",
		"document":        []byte("name dob id_number photo"),
	}, &record)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, verification.StatusVerified, record.OverallStatus)
	assert.Equal(t, 100, record.Progress)

	var fetched verification.Record
	status = f.do(t, http.MethodGet, "/v1/verifications/"+record.ID.String(), token, nil, &fetched)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, record.ID, fetched.ID)

	// Foreign records read as missing.
	otherToken := f.register(t, "wallet-2")
	status = f.do(t, http.MethodGet, "/v1/verifications/"+record.ID.String(), otherToken, nil, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status = f.do(t, http.MethodGet, "/v1/verifications/not-a-uuid", token, nil, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	var body errorBody
	status = f.do(t, http.MethodPost, "/v1/verifications", token, map[string]any{
		"credential_type": "passport",
		"document":        []byte("name dob id"),
	}, &body)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "unknown_credential_type", body.Error)
}

func TestCredentialAndGrantFlow(t *testing.T) {
	f := newRouterFixture(t)
	ownerToken := f.register(t, "owner-1")
	issuerToken := f.register(t, "issuer-gov")
	granteeToken := f.register(t, "grantee-1")

	var cred credential.Credential
	status := f.do(t, http.MethodPost, "/v1/credentials", issuerToken, map[string]any{
		"owner_wallet_id": "owner-1",
		"credential_type": "national_id",
		"claims":          map[string]any{"name": "Asha", "dob": "1990-01-02"},
	}, &cred)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "issuer-gov", cred.IssuerID)
	assert.NotEmpty(t, cred.ClaimsHash, "hash travels, raw claims do not")

	var owner identityResponse
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/v1/identities/me", ownerToken, nil, &owner))
	assert.NotZero(t, owner.VerificationBits, "issue sets the verification bit")

	// Only the grantor (credential owner) can create grants on it.
	status = f.do(t, http.MethodPost, "/v1/grants", granteeToken, map[string]any{
		"credential_address": cred.Address,
		"grantee_wallet_id":  "grantee-1",
		"field_mask":         uint64(1),
		"ttl_seconds":        3600,
	}, nil)
	assert.Equal(t, http.StatusForbidden, status)

	var g grant.Grant
	status = f.do(t, http.MethodPost, "/v1/grants", ownerToken, map[string]any{
		"credential_address": cred.Address,
		"grantee_wallet_id":  "grantee-1",
		"field_mask":         uint64(1), // bit 0 = name
		"ttl_seconds":        3600,
		"purpose":            "bank-kyc",
	}, &g)
	require.Equal(t, http.StatusCreated, status)

	var disc disclosableResponse
	path := "/v1/grants/" + g.Address + "/disclosable?field="
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, path+"name", granteeToken, nil, &disc))
	assert.True(t, disc.Disclosable)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, path+"gender", granteeToken, nil, &disc))
	assert.False(t, disc.Disclosable, "declared but ungranted field stays hidden")

	// Grants are invisible to third parties.
	status = f.do(t, http.MethodGet, "/v1/grants/"+g.Address, issuerToken, nil, nil)
	assert.Equal(t, http.StatusNotFound, status)

	// Only the grantor revokes; the grantee asking is forbidden.
	status = f.do(t, http.MethodPost, "/v1/grants/"+g.Address+"/revoke", granteeToken, nil, nil)
	assert.Equal(t, http.StatusForbidden, status)
	require.Equal(t, http.StatusNoContent,
		f.do(t, http.MethodPost, "/v1/grants/"+g.Address+"/revoke", ownerToken, nil, nil))
	require.Equal(t, http.StatusNoContent,
		f.do(t, http.MethodPost, "/v1/grants/"+g.Address+"/revoke", ownerToken, nil, nil),
		"revoke is idempotent")

	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, path+"name", granteeToken, nil, &disc))
	assert.False(t, disc.Disclosable)
}

func TestCredentialResponseCarriesNoRawClaims(t *testing.T) {
	f := newRouterFixture(t)
	f.register(t, "owner-1")
	issuerToken := f.register(t, "issuer-gov")

	req, err := http.NewRequest(http.MethodPost, f.server.URL+"/v1/credentials",
		bytes.NewReader([]byte(`{
			"owner_wallet_id": "owner-1",
			"credential_type": "national_id",
			"claims": {"name": "Asha", "id_number": "9914-2216-0809"}
		}`)))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+issuerToken)
	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NotContains(t, string(raw), "Asha")
	assert.NotContains(t, string(raw), "9914-2216-0809")
}

func TestCredentialRevokeCascadesOverHTTP(t *testing.T) {
	f := newRouterFixture(t)
	ownerToken := f.register(t, "owner-1")
	issuerToken := f.register(t, "issuer-gov")
	f.register(t, "grantee-1")

	var cred credential.Credential
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/v1/credentials", issuerToken, map[string]any{
		"owner_wallet_id": "owner-1",
		"credential_type": "tax_id",
		"claims":          map[string]any{"name": "Asha", "id_number": "X-1"},
	}, &cred))

	var g grant.Grant
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/v1/grants", ownerToken, map[string]any{
		"credential_address": cred.Address,
		"grantee_wallet_id":  "grantee-1",
		"field_mask":         uint64(1),
		"ttl_seconds":        3600,
	}, &g))

	// The issuer revokes; grants on the credential die with it.
	var revoked credential.Credential
	status := f.do(t, http.MethodPost, "/v1/credentials/"+cred.Address+"/revoke", issuerToken,
		map[string]string{"reason": "document forged"}, &revoked)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, revoked.Revoked)

	var gotGrant grant.Grant
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/v1/grants/"+g.Address, ownerToken, nil, &gotGrant))
	assert.True(t, gotGrant.Revoked)

	var owner identityResponse
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/v1/identities/me", ownerToken, nil, &owner))
	assert.Zero(t, owner.VerificationBits&2, "tax_id bit cleared on revoke")
}

func TestGrantValidationErrors(t *testing.T) {
	f := newRouterFixture(t)
	ownerToken := f.register(t, "owner-1")
	issuerToken := f.register(t, "issuer-gov")

	var cred credential.Credential
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/v1/credentials", issuerToken, map[string]any{
		"owner_wallet_id": "owner-1",
		"credential_type": "national_id",
		"claims":          map[string]any{"name": "Asha"},
	}, &cred))

	var body errorBody
	status := f.do(t, http.MethodPost, "/v1/grants", ownerToken, map[string]any{
		"credential_address": cred.Address,
		"grantee_wallet_id":  "grantee-1",
		"field_mask":         uint64(1) << 63,
		"ttl_seconds":        3600,
	}, &body)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "invalid_field_mask", body.Error)

	status = f.do(t, http.MethodPost, "/v1/grants", ownerToken, map[string]any{
		"credential_address": cred.Address,
		"grantee_wallet_id":  "grantee-1",
		"field_mask":         uint64(1),
		"ttl_seconds":        0,
	}, &body)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "ttl_out_of_range", body.Error)
}
