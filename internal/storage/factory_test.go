package storage

import (
	"errors"
	"slices"
	"testing"

	"github.com/mmcdole/shelf/internal/codec"
	"github.com/mmcdole/shelf/internal/config"
	"github.com/mmcdole/shelf/internal/domain"
	"github.com/mmcdole/shelf/internal/storage/remote/remotetest"
)

type mapPrefs map[string]string

func (m mapPrefs) GetString(key string) string { return m[key] }
func (m mapPrefs) Set(key, value string) error { m[key] = value; return nil }

func TestFactory_LocalOnlyByDefault(t *testing.T) {
	f := NewFactory(Dependencies{Codec: codec.Markdown{}, Prefs: mapPrefs{}}, nil)

	if got := f.Supported(); !slices.Equal(got, []domain.StorageType{domain.StorageTypeLocal}) {
		t.Errorf("expected local only, got %v", got)
	}

	a, err := f.New(domain.StorageTypeRemote)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if a.GetStorageType() != domain.StorageTypeLocal {
		t.Errorf("expected fallback to local, got %s", a.GetStorageType())
	}
}

func TestFactory_RemoteWhenConfigured(t *testing.T) {
	tests := []struct {
		name string
		deps Dependencies
	}{
		{"client id", func() Dependencies {
			cfg := config.DefaultConfig()
			cfg.Remote.ClientID = "cid"
			return Dependencies{Config: cfg}
		}()},
		{"stored token", Dependencies{Prefs: mapPrefs{domain.PrefRemoteToken: "tok"}}},
		{"injected api", Dependencies{API: remotetest.New()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.deps.Codec = codec.Markdown{}
			f := NewFactory(tt.deps, nil)
			if !slices.Contains(f.Supported(), domain.StorageTypeRemote) {
				t.Fatalf("expected remote support, got %v", f.Supported())
			}
			a, err := f.New(domain.StorageTypeRemote)
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			if a.GetStorageType() != domain.StorageTypeRemote {
				t.Errorf("expected remote adapter, got %s", a.GetStorageType())
			}
		})
	}
}

func TestFactory_RemoteUsesStoredToken(t *testing.T) {
	srv := remotetest.New()
	prefs := mapPrefs{domain.PrefRemoteToken: "tok"}
	f := NewFactory(Dependencies{Codec: codec.Markdown{}, Prefs: prefs, API: srv}, nil)

	a, err := f.New(domain.StorageTypeRemote)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := a.SelectStorage(t.Context()); err != nil {
		t.Fatalf("SelectStorage failed: %v", err)
	}
	if srv.Token() != "tok" || !a.IsConnected() {
		t.Error("expected adapter to connect with the stored token")
	}
}

func TestStaticToken(t *testing.T) {
	if _, err := StaticToken("").Token(t.Context()); !errors.Is(err, domain.ErrAuthFailed) {
		t.Errorf("expected ErrAuthFailed, got %v", err)
	}
	if tok, _ := StaticToken("abc").Token(t.Context()); tok != "abc" {
		t.Errorf("unexpected token %q", tok)
	}
}
