package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"
)

func startTestServer(t *testing.T) (*Server, *fakeRaftNode) {
	t.Helper()

	st := newFakeStore()
	node := &fakeRaftNode{store: st}
	server := NewServer(node, "18081")
	server.store = st

	if err := server.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	t.Cleanup(func() {
		if err := server.Stop(); err != nil {
			t.Logf("failed to stop server: %v", err)
		}
	})

	// give the listener goroutine a moment to come up
	time.Sleep(50 * time.Millisecond)

	return server, node
}

func TestRemoteAPI(t *testing.T) {
	server, _ := startTestServer(t)

	testKey := "remote_test_key"
	testValue := "remote_test_value"

	t.Run("PUT operation", func(t *testing.T) {
		formData := fmt.Sprintf("key=%s&value=%s", testKey, testValue)

		req, err := http.NewRequest(http.MethodPut, server.URL+"/api/string", bytes.NewBufferString(formData))
		if err != nil {
			t.Fatalf("failed to build PUT request: %v", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("PUT request failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			t.Fatalf("PUT failed with status %d: %s", resp.StatusCode, string(body))
		}

		var result Response
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if result.Status != StatusSuccess {
			t.Fatalf("expected success status, got: %s", result.Status)
		}
	})

	t.Run("GET operation", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/api/string?key=" + testKey)
		if err != nil {
			t.Fatalf("GET request failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			t.Fatalf("GET failed with status %d: %s", resp.StatusCode, string(body))
		}

		var result Response
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if result.Value != testValue {
			t.Fatalf("expected value '%s', got: '%s'", testValue, result.Value)
		}
	})

	t.Run("DELETE operation", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodDelete, server.URL+"/api?key="+testKey, nil)
		if err != nil {
			t.Fatalf("failed to build DELETE request: %v", err)
		}

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("DELETE request failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			t.Fatalf("DELETE failed with status %d: %s", resp.StatusCode, string(body))
		}

		var result Response
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if result.Status != StatusSuccess {
			t.Fatalf("expected success status, got: %s", result.Status)
		}
	})

	t.Run("GET after DELETE", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/api/string?key=" + testKey)
		if err != nil {
			t.Fatalf("GET request failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusNotFound {
			body, _ := io.ReadAll(resp.Body)
			t.Fatalf("expected 404 after delete, got status %d: %s", resp.StatusCode, string(body))
		}
	})

	t.Run("Health check", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/health")
		if err != nil {
			t.Fatalf("health check failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("health check failed with status %d", resp.StatusCode)
		}

		var result Response
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			t.Fatalf("failed to decode health response: %v", err)
		}
		if result.Status != StatusOK {
			t.Fatalf("expected status %s, got: %s", StatusOK, result.Status)
		}
	})
}

func TestRemoteAPIErrorHandling(t *testing.T) {
	server, _ := startTestServer(t)

	t.Run("PUT without key", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodPut, server.URL+"/api/string", bytes.NewBufferString("value=test"))
		if err != nil {
			t.Fatalf("failed to build PUT request: %v", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("PUT request failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected 400 for missing key, got: %d", resp.StatusCode)
		}
	})

	t.Run("GET without key", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/api/string")
		if err != nil {
			t.Fatalf("GET request failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected 400 for missing key, got: %d", resp.StatusCode)
		}
	})

	t.Run("GET non-existent key", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/api/string?key=nonexistent")
		if err != nil {
			t.Fatalf("GET request failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("expected 404 for non-existent key, got: %d", resp.StatusCode)
		}
	})
}
