// Package storage builds the StorageAdapter for a configured backend.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/mmcdole/shelf/internal/config"
	"github.com/mmcdole/shelf/internal/domain"
	"github.com/mmcdole/shelf/internal/storage/local"
	"github.com/mmcdole/shelf/internal/storage/remote"
	"github.com/mmcdole/shelf/internal/storage/remote/drive"
)

// Dependencies are the collaborators adapters are built with
type Dependencies struct {
	Config *config.Config
	Prefs  domain.Preferences
	Codec  domain.Codec
	Cache  domain.ItemCache       // nil disables remote caching
	Picker domain.DirectoryPicker // local folder selection
	Tokens domain.TokenSource     // remote sign-in; defaults to the configured token
	API    remote.API             // defaults to a Drive client built from Config
}

// Factory creates adapters for the supported backends
type Factory struct {
	deps   Dependencies
	logger *slog.Logger
}

// NewFactory creates a storage factory
func NewFactory(deps Dependencies, logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Config == nil {
		deps.Config = config.DefaultConfig()
	}
	return &Factory{deps: deps, logger: logger}
}

// Supported lists the usable backends. Local is always available;
// remote needs an OAuth client, a stored token, or an injected API.
func (f *Factory) Supported() []domain.StorageType {
	types := []domain.StorageType{domain.StorageTypeLocal}
	if f.deps.API != nil || f.deps.Config.IsRemoteConfigured() || f.storedToken() != "" {
		types = append(types, domain.StorageTypeRemote)
	}
	return types
}

// New creates the adapter for preferred, falling back to the first supported backend
func (f *Factory) New(preferred domain.StorageType) (domain.StorageAdapter, error) {
	supported := f.Supported()
	if !slices.Contains(supported, preferred) {
		if preferred != "" {
			f.logger.Info("storage backend unavailable, falling back", "preferred", preferred, "using", supported[0])
		}
		preferred = supported[0]
	}

	switch preferred {
	case domain.StorageTypeLocal:
		return local.NewAdapter(f.deps.Picker, f.deps.Prefs, f.deps.Codec, f.logger), nil

	case domain.StorageTypeRemote:
		cfg := f.deps.Config
		api := f.deps.API
		if api == nil {
			api = drive.NewClient(cfg.Remote.BaseURL, cfg.Remote.UploadURL, "", f.logger)
		}
		tokens := f.deps.Tokens
		if tokens == nil {
			tokens = StaticToken(f.storedToken())
		}
		return remote.NewAdapter(api, tokens, f.deps.Prefs, f.deps.Cache, f.deps.Codec, remote.Options{
			FolderName:          cfg.Storage.FolderName,
			DownloadConcurrency: cfg.Remote.DownloadConcurrency,
		}, f.logger), nil

	default:
		return nil, fmt.Errorf("unknown storage type: %s", preferred)
	}
}

func (f *Factory) storedToken() string {
	if f.deps.Prefs != nil {
		if token := f.deps.Prefs.GetString(domain.PrefRemoteToken); token != "" {
			return token
		}
	}
	return f.deps.Config.Remote.Token
}

// StaticToken is a TokenSource for an externally obtained bearer token
type StaticToken string

func (t StaticToken) Token(ctx context.Context) (string, error) {
	if t == "" {
		return "", fmt.Errorf("no remote token configured: %w", domain.ErrAuthFailed)
	}
	return string(t), nil
}
