package test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"testing"
	"time"

	"settle/apps/settle/internal/api"
	"settle/apps/settle/internal/model"
)

// These tests drive a running instance. They need:
//
//	SETTLE_BASE_URL     e.g. http://localhost:8080
//	SETTLE_JWT_SECRET   the server's JWT_SECRET
//	SETTLE_SERVICE_ID   a catalog listing priced with no required extras
//	SETTLE_CREATIVE_ID  the owner of that listing
type environment struct {
	baseURL    string
	secret     string
	serviceID  string
	creativeID string
}

func loadEnvironment(t *testing.T) environment {
	t.Helper()
	env := environment{
		baseURL:    os.Getenv("SETTLE_BASE_URL"),
		secret:     os.Getenv("SETTLE_JWT_SECRET"),
		serviceID:  os.Getenv("SETTLE_SERVICE_ID"),
		creativeID: os.Getenv("SETTLE_CREATIVE_ID"),
	}
	if env.baseURL == "" || env.secret == "" || env.serviceID == "" || env.creativeID == "" {
		t.Skip("SETTLE_BASE_URL, SETTLE_JWT_SECRET, SETTLE_SERVICE_ID and SETTLE_CREATIVE_ID must be set")
	}
	return env
}

func (e environment) token(t *testing.T, userID string, role model.Role) string {
	t.Helper()
	token, err := api.IssueToken(e.secret, userID, role, 10*time.Minute)
	if err != nil {
		t.Fatalf("Failed to issue token: %v", err)
	}
	return token
}

// call sends body as JSON and decodes the reply into dst when the status
// matches want.
func (e environment) call(t *testing.T, method, path, token string, body interface{}, want int, dst interface{}) {
	t.Helper()

	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		reqBody, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request: %v", err)
		}
		reader = bytes.NewReader(reqBody)
	}

	req, err := http.NewRequest(method, e.baseURL+path, reader)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Failed to make %s request: %v", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		var errorResp api.ErrorResponse
		json.NewDecoder(resp.Body).Decode(&errorResp)
		t.Fatalf("%s %s: expected status %d, got %d. Error: %s - %s",
			method, path, want, resp.StatusCode, errorResp.Error, errorResp.Message)
	}
	if dst != nil {
		if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
	}
}

func uniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
