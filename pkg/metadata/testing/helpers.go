package testing

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/marmos91/synkerd/pkg/metadata"
	"github.com/stretchr/testify/require"
)

// createTestUser mirrors a user into the store and returns (userID, rootID).
func createTestUser(t *testing.T, store metadata.MetadataStore, username string) (uuid.UUID, uuid.UUID) {
	t.Helper()

	user := &metadata.User{
		ID:       metadata.DeterministicUserID(username),
		Username: username,
		Email:    username + "@example.com",
		Active:   true,
	}
	require.NoError(t, store.PutUser(context.Background(), user))

	root, err := store.GetUserRoot(context.Background(), user.ID)
	require.NoError(t, err)

	return user.ID, root
}

// createTestDir creates a directory node and returns its id.
func createTestDir(t *testing.T, store metadata.MetadataStore, ownerID, parentID uuid.UUID, name string) uuid.UUID {
	t.Helper()

	id, err := store.CreateNode(context.Background(), &metadata.FileNode{
		OwnerID:  ownerID,
		ParentID: &parentID,
		Name:     name,
		Dir:      true,
	}, "")
	require.NoError(t, err)

	return id
}

// createTestFile creates a file node with placeholder content metadata and
// returns its id.
func createTestFile(t *testing.T, store metadata.MetadataStore, ownerID, parentID uuid.UUID, name string) uuid.UUID {
	t.Helper()

	id, err := store.CreateNode(context.Background(), &metadata.FileNode{
		OwnerID:    ownerID,
		ParentID:   &parentID,
		Name:       name,
		Size:       4,
		Checksum:   "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08",
		MimeType:   "text/plain",
		ContentRef: uuid.NewString(),
	}, "")
	require.NoError(t, err)

	return id
}

// registerTestSession registers a device session and returns it.
func registerTestSession(t *testing.T, store metadata.MetadataStore, userID uuid.UUID, deviceID string) *metadata.SyncSession {
	t.Helper()

	session, err := store.RegisterSession(context.Background(), &metadata.SyncSession{
		UserID:     userID,
		DeviceID:   deviceID,
		DeviceName: "device " + deviceID,
	})
	require.NoError(t, err)

	return session
}

func uint32Ptr(v uint32) *uint32 {
	return &v
}

// AssertErrorCode checks that err is a StoreError with the expected code.
func AssertErrorCode(t *testing.T, expected metadata.ErrorCode, err error, msgAndArgs ...any) bool {
	t.Helper()

	if err == nil {
		t.Errorf("expected an error but got nil")
		return false
	}
	if !metadata.IsCode(err, expected) {
		t.Errorf("expected error code %d, got %v", expected, err)
		return false
	}
	return true
}
