package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

const defaultVersion = "latest"

var secretManagerClientFactory = func(ctx context.Context, opts ...option.ClientOption) (*secretmanager.Client, error) {
	return secretmanager.NewClient(ctx, opts...)
}

type secretManagerClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Fetcher resolves secret references via Google Secret Manager. Resolved
// values are cached for the lifetime of the process; secrets rotate by
// restarting, not by live reload.
type Fetcher struct {
	client     secretManagerClient
	ownsClient bool

	logger         *zap.Logger
	defaultProject string

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	value     string
	fetchedAt time.Time
}

type fetcherConfig struct {
	logger         *zap.Logger
	defaultProject string
	client         secretManagerClient
	clientOpts     []option.ClientOption
}

// Option customises Fetcher construction.
type Option func(*fetcherConfig)

// WithLogger sets the logger used for diagnostic output.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *fetcherConfig) { cfg.logger = logger }
}

// WithDefaultProject sets the project used for bare secret names.
func WithDefaultProject(projectID string) Option {
	return func(cfg *fetcherConfig) { cfg.defaultProject = strings.TrimSpace(projectID) }
}

// WithSecretManagerClient injects a preconfigured client (primarily for tests).
func WithSecretManagerClient(client secretManagerClient) Option {
	return func(cfg *fetcherConfig) { cfg.client = client }
}

// WithClientOptions forwards Cloud client options when constructing the client.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(cfg *fetcherConfig) { cfg.clientOpts = append(cfg.clientOpts, opts...) }
}

// NewFetcher builds a Fetcher with in-process caching.
func NewFetcher(ctx context.Context, opts ...Option) (*Fetcher, error) {
	cfg := fetcherConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	logger := cfg.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	client := cfg.client
	ownsClient := false
	if client == nil {
		created, err := secretManagerClientFactory(ctx, cfg.clientOpts...)
		if err != nil {
			return nil, fmt.Errorf("secrets: create secret manager client: %w", err)
		}
		client = created
		ownsClient = true
	}

	return &Fetcher{
		client:         client,
		ownsClient:     ownsClient,
		logger:         logger,
		defaultProject: cfg.defaultProject,
		cache:          make(map[string]cacheEntry),
	}, nil
}

// ResolveSecret fetches the referenced secret version. It implements
// config.SecretResolver. Accepted forms:
//
//	projects/<project>/secrets/<name>/versions/<version>
//	<name>                (default project, latest version)
//	<name>@<version>      (default project, pinned version)
func (f *Fetcher) ResolveSecret(ctx context.Context, ref string) (string, error) {
	if f == nil {
		return "", errors.New("secrets: fetcher is nil")
	}

	name, err := f.canonicalName(ref)
	if err != nil {
		return "", err
	}

	f.mu.RLock()
	entry, hit := f.cache[name]
	f.mu.RUnlock()
	if hit {
		return entry.value, nil
	}

	resp, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return "", fmt.Errorf("secrets: access %s: %w", name, err)
	}
	if resp.GetPayload() == nil {
		return "", fmt.Errorf("secrets: empty payload for %s", name)
	}
	value := string(resp.GetPayload().GetData())

	f.mu.Lock()
	f.cache[name] = cacheEntry{value: value, fetchedAt: time.Now()}
	f.mu.Unlock()

	f.logger.Debug("secret resolved", zap.String("secret", name))
	return value, nil
}

func (f *Fetcher) canonicalName(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", errors.New("secrets: empty secret reference")
	}
	if strings.HasPrefix(ref, "projects/") {
		if !strings.Contains(ref, "/secrets/") {
			return "", fmt.Errorf("secrets: malformed reference %q", ref)
		}
		if !strings.Contains(ref, "/versions/") {
			ref = ref + "/versions/" + defaultVersion
		}
		return ref, nil
	}

	if f.defaultProject == "" {
		return "", fmt.Errorf("secrets: short reference %q requires a default project", ref)
	}

	name := ref
	version := defaultVersion
	if at := strings.LastIndex(ref, "@"); at > 0 {
		name = ref[:at]
		version = ref[at+1:]
	}
	if strings.TrimSpace(name) == "" || strings.TrimSpace(version) == "" {
		return "", fmt.Errorf("secrets: malformed reference %q", ref)
	}
	return fmt.Sprintf("projects/%s/secrets/%s/versions/%s", f.defaultProject, name, version), nil
}

// Close releases the underlying client when the fetcher owns it.
func (f *Fetcher) Close() error {
	if f == nil || !f.ownsClient || f.client == nil {
		return nil
	}
	return f.client.Close()
}
