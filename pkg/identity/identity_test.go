package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/marmos91/synkerd/pkg/metadata"
	metamem "github.com/marmos91/synkerd/pkg/metadata/memory"
)

// newMyCloudStub serves the appliance's login endpoint, accepting exactly
// one username/password pair.
func newMyCloudStub(t *testing.T, username, password string) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/2.1/rest/login", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var creds struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))

		w.Header().Set("Content-Type", "application/json")
		if creds.Username != username || creds.Password != password {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "bad credentials"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"success":       true,
			"session_token": "stub-session",
			"user": map[string]any{
				"username":  creds.Username,
				"email":     creds.Username + "@mycloud.local",
				"groups":    []string{"users"},
				"is_admin":  false,
				"is_active": true,
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestMyCloudVerifyCredentials(t *testing.T) {
	srv := newMyCloudStub(t, "alice", "s3cret")
	provider := NewMyCloudProvider(MyCloudConfig{Endpoint: srv.URL, VerifySSL: true})

	identity, err := provider.VerifyCredentials(context.Background(), "alice", "s3cret")
	require.NoError(t, err)
	require.Equal(t, "alice", identity.Username)
	require.Equal(t, "alice@mycloud.local", identity.Email)
	require.Equal(t, []string{"users"}, identity.Permissions)

	_, err = provider.VerifyCredentials(context.Background(), "alice", "wrong")
	require.True(t, metadata.IsCode(err, metadata.ErrInvalidCredentials))
}

func TestMyCloudDisabledAccount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"user": map[string]any{
				"username":  "bob",
				"is_active": false,
			},
		})
	}))
	defer srv.Close()

	provider := NewMyCloudProvider(MyCloudConfig{Endpoint: srv.URL, VerifySSL: true})
	_, err := provider.VerifyCredentials(context.Background(), "bob", "whatever")
	require.True(t, metadata.IsCode(err, metadata.ErrInvalidCredentials))
}

func TestMyCloudServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	provider := NewMyCloudProvider(MyCloudConfig{Endpoint: srv.URL, VerifySSL: true})
	_, err := provider.VerifyCredentials(context.Background(), "alice", "s3cret")
	require.Error(t, err)
	require.False(t, metadata.IsCode(err, metadata.ErrInvalidCredentials))
}

func TestStaticProvider(t *testing.T) {
	hash, err := HashPassword("hunter2")
	require.NoError(t, err)

	provider := NewStaticProvider([]StaticUser{
		{Username: "alice", PasswordHash: hash, Email: "alice@example.com", Admin: true},
	})

	identity, err := provider.VerifyCredentials(context.Background(), "alice", "hunter2")
	require.NoError(t, err)
	require.Equal(t, "alice", identity.Username)
	require.True(t, identity.Admin)

	_, err = provider.VerifyCredentials(context.Background(), "alice", "wrong")
	require.True(t, metadata.IsCode(err, metadata.ErrInvalidCredentials))

	_, err = provider.VerifyCredentials(context.Background(), "nobody", "hunter2")
	require.True(t, metadata.IsCode(err, metadata.ErrInvalidCredentials))
}

func TestLoginMirrorsUserAndRegistersSession(t *testing.T) {
	srv := newMyCloudStub(t, "alice", "s3cret")
	provider := NewMyCloudProvider(MyCloudConfig{Endpoint: srv.URL, VerifySSL: true})

	meta := metamem.NewStore()
	defer meta.Close()
	auth := NewAuthenticator(provider, meta)

	user, session, err := auth.Login(context.Background(), LoginParams{
		Username:   "alice",
		Password:   "s3cret",
		DeviceID:   "laptop",
		DeviceName: "Alice's laptop",
	})
	require.NoError(t, err)
	require.Equal(t, metadata.DeterministicUserID("alice"), user.ID)
	require.Equal(t, "laptop", session.DeviceID)
	require.Zero(t, session.Cursor)

	// The mirror has a root directory from the first login.
	rootID, err := meta.GetUserRoot(context.Background(), user.ID)
	require.NoError(t, err)
	require.NotEqual(t, rootID, user.ID)

	// A re-login keeps the session cursor.
	head := seedChange(t, meta, user)
	require.NoError(t, meta.AdvanceCursor(context.Background(), user.ID, "laptop", head))

	_, session, err = auth.Login(context.Background(), LoginParams{
		Username: "alice",
		Password: "s3cret",
		DeviceID: "laptop",
	})
	require.NoError(t, err)
	require.Equal(t, head, session.Cursor)
}

func TestLoginRequiresDeviceID(t *testing.T) {
	provider := NewStaticProvider(nil)
	meta := metamem.NewStore()
	defer meta.Close()

	auth := NewAuthenticator(provider, meta)
	_, _, err := auth.Login(context.Background(), LoginParams{Username: "alice", Password: "x"})
	require.True(t, metadata.IsCode(err, metadata.ErrInvalidArgument))
}

func TestLoginBadCredentialsDoNotMirror(t *testing.T) {
	srv := newMyCloudStub(t, "alice", "s3cret")
	provider := NewMyCloudProvider(MyCloudConfig{Endpoint: srv.URL, VerifySSL: true})

	meta := metamem.NewStore()
	defer meta.Close()
	auth := NewAuthenticator(provider, meta)

	_, _, err := auth.Login(context.Background(), LoginParams{
		Username: "alice",
		Password: "wrong",
		DeviceID: "laptop",
	})
	require.True(t, metadata.IsCode(err, metadata.ErrInvalidCredentials))

	_, err = meta.GetUserByUsername(context.Background(), "alice")
	require.True(t, metadata.IsCode(err, metadata.ErrNotFound))
}

// seedChange appends one change entry and returns the new head cursor.
func seedChange(t *testing.T, meta metadata.MetadataStore, user *metadata.User) metadata.Cursor {
	t.Helper()

	rootID, err := meta.GetUserRoot(context.Background(), user.ID)
	require.NoError(t, err)
	_, err = meta.CreateNode(context.Background(), &metadata.FileNode{
		OwnerID:  user.ID,
		ParentID: &rootID,
		Name:     "seed",
		Dir:      true,
	}, "")
	require.NoError(t, err)

	head, err := meta.LatestCursor(context.Background(), user.ID)
	require.NoError(t, err)
	return head
}
