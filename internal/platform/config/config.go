package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile      = ".env"
	defaultPort         = "8080"
	defaultReadTimeout  = 15 * time.Second
	defaultWriteTimeout = 30 * time.Second
	defaultIdleTimeout  = 120 * time.Second

	defaultSignatureHeader    = "X-Gateway-Signature"
	defaultCancellationCutoff = 24 * time.Hour
	defaultCurrency           = "USD"
	defaultReferencePrefix    = "SPH"
	defaultNotificationTopic  = "booking-notifications"

	secretRefPrefix = "secret://"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server    ServerConfig
	Firestore FirestoreConfig
	Gateway   GatewayConfig
	Booking   BookingConfig
	Auth      AuthConfig
	PubSub    PubSubConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// GatewayConfig holds payment-gateway webhook expectations.
type GatewayConfig struct {
	SigningSecret   string
	SignatureHeader string
}

// BookingConfig carries business-rule knobs for the booking engine.
type BookingConfig struct {
	CancellationCutoff time.Duration
	Currency           string
	ReferencePrefix    string
}

// AuthConfig holds bearer-token verification settings.
type AuthConfig struct {
	JWTSecret string
}

// PubSubConfig names the notification topic.
type PubSubConfig struct {
	ProjectID         string
	NotificationTopic string
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager
// URIs). Values of the form secret://... are passed through the resolver.
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing
// or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
	secret       SecretResolver
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) { o.envFile = path }
}

// WithEnvMap injects an explicit key/value map taking precedence over system
// environment variables. Primarily for tests.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
		o.useSystemEnv = false
	}
}

// WithSecretResolver installs the resolver used for secret:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) { o.secret = resolver }
}

// Load reads configuration with precedence dotenv < OS env < explicit map,
// resolves secret references, and validates required fields.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	values, err := environmentValues(options)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) string {
		return strings.TrimSpace(values[key])
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         valueOrDefault(lookup("PORT"), defaultPort),
			ReadTimeout:  durationOrDefault(lookup("SERVER_READ_TIMEOUT"), defaultReadTimeout),
			WriteTimeout: durationOrDefault(lookup("SERVER_WRITE_TIMEOUT"), defaultWriteTimeout),
			IdleTimeout:  durationOrDefault(lookup("SERVER_IDLE_TIMEOUT"), defaultIdleTimeout),
		},
		Firestore: FirestoreConfig{
			ProjectID:    lookup("FIRESTORE_PROJECT_ID"),
			EmulatorHost: lookup("FIRESTORE_EMULATOR_HOST"),
		},
		Gateway: GatewayConfig{
			SigningSecret:   lookup("GATEWAY_SIGNING_SECRET"),
			SignatureHeader: valueOrDefault(lookup("GATEWAY_SIGNATURE_HEADER"), defaultSignatureHeader),
		},
		Booking: BookingConfig{
			CancellationCutoff: durationOrDefault(lookup("BOOKING_CANCELLATION_CUTOFF"), defaultCancellationCutoff),
			Currency:           strings.ToUpper(valueOrDefault(lookup("BOOKING_CURRENCY"), defaultCurrency)),
			ReferencePrefix:    valueOrDefault(lookup("PAYMENT_REFERENCE_PREFIX"), defaultReferencePrefix),
		},
		Auth: AuthConfig{
			JWTSecret: lookup("AUTH_JWT_SECRET"),
		},
		PubSub: PubSubConfig{
			ProjectID:         valueOrDefault(lookup("PUBSUB_PROJECT_ID"), lookup("FIRESTORE_PROJECT_ID")),
			NotificationTopic: valueOrDefault(lookup("PUBSUB_NOTIFICATION_TOPIC"), defaultNotificationTopic),
		},
	}

	if err := resolveSecrets(ctx, &cfg, options.secret); err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var missing []string
	if strings.TrimSpace(c.Firestore.ProjectID) == "" {
		missing = append(missing, "FIRESTORE_PROJECT_ID")
	}
	if strings.TrimSpace(c.Gateway.SigningSecret) == "" {
		missing = append(missing, "GATEWAY_SIGNING_SECRET")
	}
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		missing = append(missing, "AUTH_JWT_SECRET")
	}
	if c.Booking.CancellationCutoff <= 0 {
		missing = append(missing, "BOOKING_CANCELLATION_CUTOFF")
	}
	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func resolveSecrets(ctx context.Context, cfg *Config, resolver SecretResolver) error {
	targets := []*string{
		&cfg.Gateway.SigningSecret,
		&cfg.Auth.JWTSecret,
	}
	for _, target := range targets {
		value := strings.TrimSpace(*target)
		if !strings.HasPrefix(value, secretRefPrefix) {
			continue
		}
		if resolver == nil {
			return errors.New("config: secret resolver not configured for secret reference")
		}
		resolved, err := resolver.ResolveSecret(ctx, strings.TrimPrefix(value, secretRefPrefix))
		if err != nil {
			return fmt.Errorf("config: resolve secret %q: %w", redactRef(value), err)
		}
		*target = resolved
	}
	return nil
}

func environmentValues(options loaderOptions) (map[string]string, error) {
	values := make(map[string]string)

	dotEnv, err := loadDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}
	for k, v := range dotEnv {
		values[k] = v
	}

	if options.useSystemEnv {
		for _, entry := range os.Environ() {
			parts := strings.SplitN(entry, "=", 2)
			if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" {
				continue
			}
			values[strings.TrimSpace(parts[0])] = parts[1]
		}
	}

	for k, v := range options.envMap {
		values[k] = v
	}
	return values, nil
}

func loadDotEnv(path string) (map[string]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: open env file %s: %w", path, err)
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		value = strings.Trim(value, `"'`)
		if key != "" {
			values[key] = value
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: read env file %s: %w", path, err)
	}
	return values, nil
}

func valueOrDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func durationOrDefault(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	if hours, err := strconv.Atoi(value); err == nil && hours > 0 {
		return time.Duration(hours) * time.Hour
	}
	return fallback
}

func redactRef(ref string) string {
	if len(ref) <= 12 {
		return "secret://..."
	}
	return ref[:12] + "..."
}
