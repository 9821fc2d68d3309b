//go:build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	jwttoken "vitalis/internal/jwt_token"
	id "vitalis/pkg/domain"
)

// TestContext carries one scenario's HTTP state against a running server.
type TestContext struct {
	baseURL string
	client  *http.Client
	jwt     *jwttoken.JWTService

	accessToken string
	userID      string

	lastStatus  int
	lastHeader  http.Header
	lastBody    []byte
	savedValues map[string]string
}

// NewTestContext reads VITALIS_E2E_URL and JWT_SIGNING_KEY. The signing key
// must match the server's so scenarios can mint their own tokens.
func NewTestContext() *TestContext {
	baseURL := os.Getenv("VITALIS_E2E_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	key := os.Getenv("JWT_SIGNING_KEY")
	if key == "" {
		key = "dev-secret-key-change-in-production"
	}
	return &TestContext{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
		jwt:     jwttoken.NewJWTService(key, jwttoken.Issuer, jwttoken.Audience),
	}
}

func (tc *TestContext) reset() {
	tc.accessToken = ""
	tc.userID = ""
	tc.lastStatus = 0
	tc.lastHeader = nil
	tc.lastBody = nil
	tc.savedValues = make(map[string]string)
}

// AuthenticateAs mints a token for a fresh user with the given role.
func (tc *TestContext) AuthenticateAs(role string) error {
	parsed, err := id.ParseRole(role)
	if err != nil {
		return err
	}
	userID := id.UserID(uuid.New())
	token, err := tc.jwt.GenerateAccessToken(userID, parsed, time.Hour)
	if err != nil {
		return err
	}
	tc.accessToken = token
	tc.userID = userID.String()
	return nil
}

func (tc *TestContext) ClearAuthentication() {
	tc.accessToken = ""
	tc.userID = ""
}

func (tc *TestContext) UserID() string { return tc.userID }

func (tc *TestContext) Request(method, path string, body any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, tc.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tc.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+tc.accessToken)
	}

	resp, err := tc.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	tc.lastBody, err = io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	tc.lastStatus = resp.StatusCode
	tc.lastHeader = resp.Header
	return nil
}

func (tc *TestContext) GET(path string) error { return tc.Request(http.MethodGet, path, nil) }

func (tc *TestContext) POST(path string, body any) error {
	return tc.Request(http.MethodPost, path, body)
}

func (tc *TestContext) LastStatus() int { return tc.lastStatus }
func (tc *TestContext) LastBody() []byte { return tc.lastBody }
func (tc *TestContext) LastHeader(k string) string { return tc.lastHeader.Get(k) }

// ResponseField returns a top-level field of the last JSON response.
func (tc *TestContext) ResponseField(field string) (any, error) {
	var body map[string]any
	if err := json.Unmarshal(tc.lastBody, &body); err != nil {
		return nil, fmt.Errorf("response is not a JSON object: %w", err)
	}
	v, ok := body[field]
	if !ok {
		return nil, fmt.Errorf("field %q not in response %s", field, tc.lastBody)
	}
	return v, nil
}

func (tc *TestContext) Save(name, value string) { tc.savedValues[name] = value }

func (tc *TestContext) Saved(name string) (string, error) {
	v, ok := tc.savedValues[name]
	if !ok {
		return "", fmt.Errorf("nothing saved as %q", name)
	}
	return v, nil
}
