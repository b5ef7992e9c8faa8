// Package credentials decides whether an identity may commit.
package credentials

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// Validator gates commits. It reports only whether the secret is valid for
// the identity.
type Validator interface {
	Validate(identity, secret string) bool
}

// AllowAll accepts every identity that is not empty. It is meant for local
// file stores and tests.
type AllowAll struct{}

// Validate implements Validator.
func (AllowAll) Validate(identity, _ string) bool {
	return identity != ""
}

type user struct {
	Name         string `yaml:"name"`
	PasswordHash string `yaml:"password_hash"`
}

type credentialsFile struct {
	Users []user `yaml:"users"`
}

// FileValidator checks secrets against bcrypt hashes kept in a YAML file:
//
//	users:
//	  - name: curator
//	    password_hash: $2a$10$...
type FileValidator struct {
	path string

	mu     sync.RWMutex
	hashes map[string][]byte
}

// LoadFile reads the credentials file at path.
func LoadFile(path string) (*FileValidator, error) {
	v := &FileValidator{path: path}
	if err := v.Reload(); err != nil {
		return nil, err
	}
	return v, nil
}

// Reload re-reads the credentials file.
func (v *FileValidator) Reload() error {
	data, err := os.ReadFile(v.path)
	if err != nil {
		return fmt.Errorf("failed to read credentials file: %w", err)
	}
	var f credentialsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to parse credentials file %s: %w", v.path, err)
	}
	hashes := make(map[string][]byte, len(f.Users))
	for _, u := range f.Users {
		if u.Name == "" || u.PasswordHash == "" {
			return fmt.Errorf("credentials file %s: user entry without name or password_hash", v.path)
		}
		if _, dup := hashes[u.Name]; dup {
			return fmt.Errorf("credentials file %s: duplicate user %s", v.path, u.Name)
		}
		hashes[u.Name] = []byte(u.PasswordHash)
	}

	v.mu.Lock()
	v.hashes = hashes
	v.mu.Unlock()
	return nil
}

// Validate implements Validator.
func (v *FileValidator) Validate(identity, secret string) bool {
	v.mu.RLock()
	hash, ok := v.hashes[identity]
	v.mu.RUnlock()
	if !ok || secret == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(secret)) == nil
}

// HashSecret returns the bcrypt hash to store for secret.
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash secret: %w", err)
	}
	return string(hash), nil
}
