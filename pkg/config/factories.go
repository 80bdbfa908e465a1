package config

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/mitchellh/mapstructure"

	"github.com/marmos91/synkerd/internal/logger"
	"github.com/marmos91/synkerd/pkg/content"
	contentFs "github.com/marmos91/synkerd/pkg/content/fs"
	contentMem "github.com/marmos91/synkerd/pkg/content/memory"
	contentS3 "github.com/marmos91/synkerd/pkg/content/s3"
	"github.com/marmos91/synkerd/pkg/identity"
	"github.com/marmos91/synkerd/pkg/metadata"
	metaBadger "github.com/marmos91/synkerd/pkg/metadata/badger"
	metaMem "github.com/marmos91/synkerd/pkg/metadata/memory"
)

// CreateMetadataStore creates the metadata store selected by cfg.Type and
// decodes the matching backend section.
func CreateMetadataStore(ctx context.Context, cfg *MetadataConfig) (metadata.MetadataStore, error) {
	switch cfg.Type {
	case "memory":
		return metaMem.NewStore(), nil
	case "badger":
		return createBadgerMetadataStore(ctx, cfg.Badger)
	default:
		return nil, fmt.Errorf("unknown metadata store type: %q", cfg.Type)
	}
}

func createBadgerMetadataStore(ctx context.Context, options map[string]any) (metadata.MetadataStore, error) {
	type badgerStoreConfig struct {
		Path             string `mapstructure:"path"`
		BlockCacheSizeMB int64  `mapstructure:"block_cache_size_mb"`
		IndexCacheSizeMB int64  `mapstructure:"index_cache_size_mb"`
	}

	var storeCfg badgerStoreConfig
	if err := mapstructure.Decode(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode badger metadata store config: %w", err)
	}
	if storeCfg.Path == "" {
		return nil, fmt.Errorf("badger metadata store: path is required")
	}

	store, err := metaBadger.NewStore(ctx, metaBadger.Config{
		DBPath:           storeCfg.Path,
		BlockCacheSizeMB: storeCfg.BlockCacheSizeMB,
		IndexCacheSizeMB: storeCfg.IndexCacheSizeMB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create badger metadata store: %w", err)
	}

	logger.Info("badger metadata store initialized: path=%s", storeCfg.Path)
	return store, nil
}

// CreateContentStore creates the content store selected by cfg.Type and
// decodes the matching backend section.
func CreateContentStore(ctx context.Context, cfg *ContentConfig) (content.WritableContentStore, error) {
	switch cfg.Type {
	case "memory":
		return contentMem.NewStore(), nil
	case "filesystem":
		return createFilesystemContentStore(ctx, cfg.Filesystem)
	case "s3":
		return createS3ContentStore(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown content store type: %q", cfg.Type)
	}
}

func createFilesystemContentStore(ctx context.Context, options map[string]any) (content.WritableContentStore, error) {
	type filesystemStoreConfig struct {
		Path string `mapstructure:"path"`
	}

	var storeCfg filesystemStoreConfig
	if err := mapstructure.Decode(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode filesystem content store config: %w", err)
	}
	if storeCfg.Path == "" {
		return nil, fmt.Errorf("filesystem content store: path is required")
	}

	store, err := contentFs.NewStore(ctx, storeCfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem content store: %w", err)
	}
	return store, nil
}

func createS3ContentStore(ctx context.Context, options map[string]any) (content.WritableContentStore, error) {
	type s3StoreConfig struct {
		Region          string `mapstructure:"region"`
		Bucket          string `mapstructure:"bucket"`
		KeyPrefix       string `mapstructure:"key_prefix"`
		Endpoint        string `mapstructure:"endpoint"`
		AccessKeyID     string `mapstructure:"access_key_id"`
		SecretAccessKey string `mapstructure:"secret_access_key"`
		MaxRetries      int    `mapstructure:"max_retries"`
	}

	var storeCfg s3StoreConfig
	if err := mapstructure.Decode(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode S3 content store config: %w", err)
	}
	if storeCfg.Bucket == "" {
		return nil, fmt.Errorf("S3 content store: bucket is required")
	}
	if storeCfg.Region == "" {
		return nil, fmt.Errorf("S3 content store: region is required")
	}

	var configOptions []func(*awsConfig.LoadOptions) error
	configOptions = append(configOptions, awsConfig.WithRegion(storeCfg.Region))

	// Custom endpoints serve MinIO and other S3-compatible stores.
	if storeCfg.Endpoint != "" {
		//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
		customResolver := aws.EndpointResolverWithOptionsFunc(
			func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				//nolint:staticcheck
				return aws.Endpoint{
					URL:               storeCfg.Endpoint,
					HostnameImmutable: true,
					Source:            aws.EndpointSourceCustom,
				}, nil
			},
		)
		//nolint:staticcheck
		configOptions = append(configOptions, awsConfig.WithEndpointResolverWithOptions(customResolver))
	}

	if storeCfg.AccessKeyID != "" && storeCfg.SecretAccessKey != "" {
		credProvider := credentials.NewStaticCredentialsProvider(
			storeCfg.AccessKeyID,
			storeCfg.SecretAccessKey,
			"",
		)
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(credProvider))
	}

	maxRetries := storeCfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 10
	}
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
		})
	}))

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// Path-style addressing for MinIO compatibility.
		if storeCfg.Endpoint != "" {
			o.UsePathStyle = true
		}
	})

	store, err := contentS3.NewStore(ctx, contentS3.Config{
		Client:    client,
		Bucket:    storeCfg.Bucket,
		KeyPrefix: storeCfg.KeyPrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 content store: %w", err)
	}

	logger.Info("S3 content store initialized: bucket=%s region=%s prefix=%s",
		storeCfg.Bucket, storeCfg.Region, storeCfg.KeyPrefix)
	return store, nil
}

// CreateIdentityProvider creates the identity provider selected by cfg.Type
// and decodes the matching section.
func CreateIdentityProvider(cfg *IdentityConfig) (identity.Provider, error) {
	switch cfg.Type {
	case "mycloud":
		return createMyCloudProvider(cfg.MyCloud)
	case "static":
		return createStaticProvider(cfg.Static)
	default:
		return nil, fmt.Errorf("unknown identity provider type: %q", cfg.Type)
	}
}

func createMyCloudProvider(options map[string]any) (identity.Provider, error) {
	type myCloudProviderConfig struct {
		Endpoint  string        `mapstructure:"endpoint"`
		VerifySSL bool          `mapstructure:"verify_ssl"`
		Timeout   time.Duration `mapstructure:"timeout"`
	}

	var providerCfg myCloudProviderConfig
	if err := mapstructure.Decode(options, &providerCfg); err != nil {
		return nil, fmt.Errorf("failed to decode mycloud identity config: %w", err)
	}
	if providerCfg.Endpoint == "" {
		return nil, fmt.Errorf("mycloud identity provider: endpoint is required")
	}

	return identity.NewMyCloudProvider(identity.MyCloudConfig{
		Endpoint:  providerCfg.Endpoint,
		VerifySSL: providerCfg.VerifySSL,
		Timeout:   providerCfg.Timeout,
	}), nil
}

func createStaticProvider(options map[string]any) (identity.Provider, error) {
	type staticUserConfig struct {
		Username     string `mapstructure:"username"`
		PasswordHash string `mapstructure:"password_hash"`
		Email        string `mapstructure:"email"`
		Admin        bool   `mapstructure:"admin"`
	}
	type staticProviderConfig struct {
		Users []staticUserConfig `mapstructure:"users"`
	}

	var providerCfg staticProviderConfig
	if err := mapstructure.Decode(options, &providerCfg); err != nil {
		return nil, fmt.Errorf("failed to decode static identity config: %w", err)
	}

	users := make([]identity.StaticUser, 0, len(providerCfg.Users))
	for i, u := range providerCfg.Users {
		if u.Username == "" || u.PasswordHash == "" {
			return nil, fmt.Errorf("static identity provider: users[%d] needs username and password_hash", i)
		}
		users = append(users, identity.StaticUser{
			Username:     u.Username,
			PasswordHash: u.PasswordHash,
			Email:        u.Email,
			Admin:        u.Admin,
		})
	}
	return identity.NewStaticProvider(users), nil
}
