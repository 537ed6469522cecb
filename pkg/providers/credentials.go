package providers

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/traeumen927/chatGPT-sub000/pkg/config"
)

const (
	authModeAPIKey     = "api_key"
	authModeAPIKeyFile = "api_key_file"
)

// Credential is the OpenAI key material selected from config. Source holds
// the literal key in api_key mode and the key file path in api_key_file mode.
type Credential struct {
	Mode   string
	Source string
}

// Key returns the bearer key. Key files are re-read on every call so a
// rotated key is picked up without a restart.
func (c Credential) Key() (string, error) {
	switch c.Mode {
	case authModeAPIKey:
		key := strings.TrimSpace(c.Source)
		if key == "" {
			return "", fmt.Errorf("providers.openai.api_key is empty")
		}
		if isPlaceholderKey(key) {
			return "", fmt.Errorf("providers.openai.api_key looks like a placeholder (%s)", key)
		}
		return key, nil
	case authModeAPIKeyFile:
		path := expandHome(c.Source)
		if path == "" {
			return "", fmt.Errorf("providers.openai.api_key_file is empty")
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read key file %s: %w", path, err)
		}
		key := strings.TrimSpace(string(data))
		if key == "" {
			return "", fmt.Errorf("key file %s is empty", path)
		}
		return key, nil
	default:
		return "", fmt.Errorf("unsupported OpenAI auth mode %q", c.Mode)
	}
}

// ResolveCredential picks the single configured OpenAI credential. Having
// none is a MissingKey error; having both is a configuration error.
func ResolveCredential(cfg *config.Config) (Credential, error) {
	if cfg == nil {
		return Credential{}, fmt.Errorf("config is required")
	}
	oc := cfg.Providers.OpenAI
	key := strings.TrimSpace(oc.APIKey)
	file := strings.TrimSpace(oc.APIKeyFile)

	switch {
	case key != "" && file != "":
		return Credential{}, fmt.Errorf("multiple OpenAI credential sources configured (providers.openai.api_key, providers.openai.api_key_file); set exactly one")
	case key != "":
		return Credential{Mode: authModeAPIKey, Source: key}, nil
	case file != "":
		return Credential{Mode: authModeAPIKeyFile, Source: file}, nil
	default:
		return Credential{}, &ModelError{
			Kind: MissingKey,
			Err:  fmt.Errorf("OpenAI credentials are required (set providers.openai.api_key or providers.openai.api_key_file)"),
		}
	}
}

// ValidateConfig checks that exactly one OpenAI credential is configured and
// that a key file, when used, exists.
func ValidateConfig(cfg *config.Config) error {
	cred, err := ResolveCredential(cfg)
	if err != nil {
		return err
	}
	if cred.Mode != authModeAPIKeyFile {
		return nil
	}
	path := expandHome(cred.Source)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("OpenAI API key file not accessible at %s: %w", path, err)
	}
	return nil
}

// CredentialStatus reports whether credentials are configured and which mode
// they use.
func CredentialStatus(cfg *config.Config) (bool, string) {
	cred, err := ResolveCredential(cfg)
	if err != nil {
		return false, ""
	}
	return true, cred.Mode
}

// keyTransport sets the bearer key on every outgoing request, replacing
// whatever Authorization header the client set.
type keyTransport struct {
	base http.RoundTripper
	cred Credential
}

func (t *keyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	key, err := t.cred.Key()
	if err != nil {
		if req.Body != nil {
			_ = req.Body.Close()
		}
		return nil, &ModelError{Kind: MissingKey, Err: err}
	}
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+key)
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(clone)
}

func isPlaceholderKey(key string) bool {
	return (strings.HasPrefix(key, "<") && strings.HasSuffix(key, ">")) ||
		(strings.HasPrefix(key, "${") && strings.HasSuffix(key, "}"))
}

func expandHome(path string) string {
	path = strings.TrimSpace(path)
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
