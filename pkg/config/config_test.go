package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/marmos91/synkerd/pkg/identity"
)

// writeConfigFile marshals the document to YAML in a temp dir and returns
// its path.
func writeConfigFile(t *testing.T, doc map[string]any) string {
	t.Helper()

	data, err := yaml.Marshal(doc)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestLoadDefaultsWithoutConfigFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	require.Equal(t, "INFO", cfg.Logging.Level)
	require.Equal(t, "stdout", cfg.Logging.Output)
	require.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	require.Equal(t, "badger", cfg.Metadata.Type)
	require.Equal(t, "/var/lib/synkerd/metadata", cfg.Metadata.Badger["path"])
	require.Equal(t, "filesystem", cfg.Content.Type)
	require.Equal(t, "static", cfg.Identity.Type)
	require.Equal(t, 24*time.Hour, cfg.Upload.SessionTTL)
	require.True(t, cfg.GC.Enabled)
	require.Equal(t, time.Hour, cfg.GC.Interval)
	require.Equal(t, 30*24*time.Hour, cfg.GC.LogRetention)
	require.Equal(t, 64, cfg.Notify.SubscriberBuffer)
}

func TestLoadFromYAMLFile(t *testing.T) {
	path := writeConfigFile(t, map[string]any{
		"logging": map[string]any{"level": "debug", "output": "stderr"},
		"metadata": map[string]any{
			"type":   "badger",
			"badger": map[string]any{"path": "/data/meta"},
		},
		"content": map[string]any{
			"type": "s3",
			"s3": map[string]any{
				"bucket":   "synkerd-blobs",
				"region":   "eu-west-1",
				"endpoint": "http://minio:9000",
			},
		},
		"identity": map[string]any{
			"type":    "mycloud",
			"mycloud": map[string]any{"endpoint": "https://mycloud.local"},
		},
		"upload": map[string]any{"session_ttl": "2h"},
		"gc":     map[string]any{"enabled": true, "interval": "15m"},
	})

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "DEBUG", cfg.Logging.Level)
	require.Equal(t, "stderr", cfg.Logging.Output)
	require.Equal(t, "/data/meta", cfg.Metadata.Badger["path"])
	require.Equal(t, "s3", cfg.Content.Type)
	require.Equal(t, "synkerd-blobs", cfg.Content.S3["bucket"])
	require.Equal(t, "mycloud", cfg.Identity.Type)
	require.Equal(t, 2*time.Hour, cfg.Upload.SessionTTL)
	require.Equal(t, 15*time.Minute, cfg.GC.Interval)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeConfigFile(t, map[string]any{
		"logging": map[string]any{"level": "info", "output": "stdout"},
	})

	t.Setenv("SYNKERD_LOGGING_LEVEL", "error")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "ERROR", cfg.Logging.Level)
}

func TestValidationRejectsBadTypes(t *testing.T) {
	path := writeConfigFile(t, map[string]any{
		"metadata": map[string]any{"type": "postgres"},
	})

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "Metadata.Type")
}

func TestValidationRejectsS3WithoutBucket(t *testing.T) {
	path := writeConfigFile(t, map[string]any{
		"content": map[string]any{
			"type": "s3",
			"s3":   map[string]any{"region": "eu-west-1"},
		},
	})

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "bucket is required")
}

func TestValidationRejectsMyCloudWithoutEndpoint(t *testing.T) {
	path := writeConfigFile(t, map[string]any{
		"identity": map[string]any{"type": "mycloud"},
	})

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "endpoint is required")
}

func TestCreateMemoryStores(t *testing.T) {
	meta, err := CreateMetadataStore(context.Background(), &MetadataConfig{Type: "memory"})
	require.NoError(t, err)
	require.NoError(t, meta.Healthcheck(context.Background()))
	require.NoError(t, meta.Close())

	blobs, err := CreateContentStore(context.Background(), &ContentConfig{Type: "memory"})
	require.NoError(t, err)
	require.NotNil(t, blobs)
}

func TestCreateBadgerStore(t *testing.T) {
	dir := t.TempDir()
	meta, err := CreateMetadataStore(context.Background(), &MetadataConfig{
		Type:   "badger",
		Badger: map[string]any{"path": dir},
	})
	require.NoError(t, err)
	require.NoError(t, meta.Healthcheck(context.Background()))
	require.NoError(t, meta.Close())
}

func TestCreateFilesystemStore(t *testing.T) {
	dir := t.TempDir()
	blobs, err := CreateContentStore(context.Background(), &ContentConfig{
		Type:       "filesystem",
		Filesystem: map[string]any{"path": dir},
	})
	require.NoError(t, err)
	require.NotNil(t, blobs)

	_, err = CreateContentStore(context.Background(), &ContentConfig{Type: "filesystem"})
	require.Error(t, err)
}

func TestCreateStaticIdentityProvider(t *testing.T) {
	hash, err := identity.HashPassword("hunter2")
	require.NoError(t, err)

	provider, err := CreateIdentityProvider(&IdentityConfig{
		Type: "static",
		Static: map[string]any{
			"users": []map[string]any{
				{"username": "alice", "password_hash": hash, "admin": true},
			},
		},
	})
	require.NoError(t, err)

	id, err := provider.VerifyCredentials(context.Background(), "alice", "hunter2")
	require.NoError(t, err)
	require.True(t, id.Admin)

	// Accounts without a hash are a config mistake, not a silent skip.
	_, err = CreateIdentityProvider(&IdentityConfig{
		Type:   "static",
		Static: map[string]any{"users": []map[string]any{{"username": "bob"}}},
	})
	require.Error(t, err)
}

func TestCreateMyCloudIdentityProvider(t *testing.T) {
	provider, err := CreateIdentityProvider(&IdentityConfig{
		Type:    "mycloud",
		MyCloud: map[string]any{"endpoint": "https://mycloud.local", "verify_ssl": false},
	})
	require.NoError(t, err)
	require.NotNil(t, provider)

	_, err = CreateIdentityProvider(&IdentityConfig{Type: "mycloud"})
	require.Error(t, err)
}
