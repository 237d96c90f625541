package pushover_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"home-security/internal/infra/pushover"
)

func TestClient_Notify(t *testing.T) {
	var got struct {
		token, user, message, title string
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		require.NoError(t, r.ParseForm())
		got.token = r.PostForm.Get("token")
		got.user = r.PostForm.Get("user")
		got.message = r.PostForm.Get("message")
		got.title = r.PostForm.Get("title")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := pushover.NewClientWithURL("tok", "usr", server.URL)
	require.NoError(t, client.Notify(context.Background(), "Motion detected"))

	assert.Equal(t, "tok", got.token)
	assert.Equal(t, "usr", got.user)
	assert.Equal(t, "Motion detected", got.message)
	assert.Equal(t, "Home Security", got.title)
}

func TestClient_NotifyErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	err := pushover.NewClientWithURL("tok", "usr", server.URL).Notify(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestClient_DisabledWithoutCredentials(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
	}))
	defer server.Close()

	client := pushover.NewClientWithURL("", "", server.URL)
	assert.False(t, client.Enabled())
	require.NoError(t, client.Notify(context.Background(), "x"))
	assert.False(t, called)
}
