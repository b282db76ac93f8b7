package secrets

import (
	"fmt"
	"os"
	"strings"
)

// Source describes where a secret value may come from. Lookup order is File,
// then Value, then the Env variable.
type Source struct {
	// Name is used in error messages to give more context about the secret.
	Name  string
	Value string
	File  string
	Env   string
}

// Load returns the resolved, trimmed secret. An error is returned when no
// source yields a usable value.
func Load(src Source) (string, error) {
	name := strings.TrimSpace(src.Name)
	if name == "" {
		name = "secret"
	}

	if file := strings.TrimSpace(src.File); file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("reading %s from file %q: %w", name, file, err)
		}
		secret := strings.TrimSpace(string(data))
		if secret == "" {
			return "", fmt.Errorf("%s file %q is empty", name, file)
		}
		return secret, nil
	}

	if secret := strings.TrimSpace(src.Value); secret != "" {
		return secret, nil
	}

	if env := strings.TrimSpace(src.Env); env != "" {
		if secret := strings.TrimSpace(os.Getenv(env)); secret != "" {
			return secret, nil
		}
		return "", fmt.Errorf("%s is not configured (%s is empty)", name, env)
	}

	return "", fmt.Errorf("%s is not configured", name)
}

// Credential is what the authentication collaborator hands to the realtime and
// REST clients. The token is opaque to them.
type Credential struct {
	UserID string
	Token  string
}

func (c Credential) Valid() bool {
	return strings.TrimSpace(c.UserID) != "" && strings.TrimSpace(c.Token) != ""
}

// LoadCredential resolves the session token for userID.
func LoadCredential(userID string, token Source) (Credential, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Credential{}, fmt.Errorf("user id is not configured")
	}

	if token.Name == "" {
		token.Name = "session token"
	}

	value, err := Load(token)
	if err != nil {
		return Credential{}, err
	}

	return Credential{UserID: userID, Token: value}, nil
}
