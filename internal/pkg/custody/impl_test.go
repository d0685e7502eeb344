package custody_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vreid/kuji/internal/pkg/custody"
)

func TestMemoryOwnership(t *testing.T) {
	t.Parallel()

	registry := custody.NewMemory()

	ref := custody.Ref{Collection: "cats", Token: "42"}
	registry.Mint(ref, "alice")

	owner, err := registry.OwnerOf(ref)
	require.NoError(t, err)
	assert.Equal(t, "alice", owner)

	_, err = registry.OwnerOf(custody.Ref{Collection: "cats", Token: "43"})
	assert.ErrorIs(t, err, custody.ErrUnknownAsset)
}

func TestMemoryTransfer(t *testing.T) {
	t.Parallel()

	registry := custody.NewMemory()

	ref := custody.Ref{Collection: "cats", Token: "42"}
	registry.Mint(ref, "alice")

	err := registry.Transfer(ref, "bob", "carol")
	assert.ErrorIs(t, err, custody.ErrTransferUnapproved)

	err = registry.Transfer(ref, "alice", "bob")
	require.NoError(t, err)

	owner, err := registry.OwnerOf(ref)
	require.NoError(t, err)
	assert.Equal(t, "bob", owner)
}

func TestMemoryInjectedFailure(t *testing.T) {
	t.Parallel()

	registry := custody.NewMemory()

	ref := custody.Ref{Collection: "cats", Token: "42"}
	registry.Mint(ref, "alice")

	registry.TransferErr = errors.New("registry offline")

	err := registry.Transfer(ref, "alice", "bob")
	require.Error(t, err)

	owner, err := registry.OwnerOf(ref)
	require.NoError(t, err)
	assert.Equal(t, "alice", owner)
}

func TestHTTPCustodyOwnerOf(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/assets/cats/42/owner", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"owner": "alice"}`))
	}))
	defer server.Close()

	client := &custody.HTTPCustody{
		BaseURL: server.URL,
		Client:  server.Client(),
	}

	owner, err := client.OwnerOf(custody.Ref{Collection: "cats", Token: "42"})
	require.NoError(t, err)
	assert.Equal(t, "alice", owner)
}

func TestHTTPCustodyUnknownAsset(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := &custody.HTTPCustody{
		BaseURL: server.URL,
		Client:  server.Client(),
	}

	_, err := client.OwnerOf(custody.Ref{Collection: "cats", Token: "404"})
	assert.ErrorIs(t, err, custody.ErrUnknownAsset)
}

func TestHTTPCustodyTransfer(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/transfers", r.URL.Path)

		var body map[string]string

		err := json.NewDecoder(r.Body).Decode(&body)
		assert.NoError(t, err)
		assert.Equal(t, "alice", body["from"])
		assert.Equal(t, "kuji-vault", body["to"])

		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := &custody.HTTPCustody{
		BaseURL: server.URL,
		Client:  server.Client(),
	}

	err := client.Transfer(custody.Ref{Collection: "cats", Token: "42"}, "alice", "kuji-vault")
	require.NoError(t, err)
}

func TestHTTPCustodyTransferRefused(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := &custody.HTTPCustody{
		BaseURL: server.URL,
		Client:  server.Client(),
	}

	err := client.Transfer(custody.Ref{Collection: "cats", Token: "42"}, "mallory", "kuji-vault")
	assert.ErrorIs(t, err, custody.ErrTransferUnapproved)
}
