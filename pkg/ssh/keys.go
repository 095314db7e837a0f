// Package ssh manages the key pair used to log into a container.
package ssh

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gossh "golang.org/x/crypto/ssh"
)

// KeyPair locates a generated key pair on disk.
type KeyPair struct {
	PrivateKeyPath string
	PublicKeyPath  string
	AuthorizedKey  string
}

// GenerateKeyPair writes a new ed25519 key pair to privatePath and
// privatePath+".pub", replacing any existing pair.
func GenerateKeyPair(privatePath, comment string) (*KeyPair, error) {
	if err := os.MkdirAll(filepath.Dir(privatePath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}

	block, err := gossh.MarshalPrivateKey(priv, comment)
	if err != nil {
		return nil, fmt.Errorf("failed to encode private key: %w", err)
	}
	sshPub, err := gossh.NewPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("failed to encode public key: %w", err)
	}
	authorized := strings.TrimSpace(string(gossh.MarshalAuthorizedKey(sshPub)))
	if comment != "" {
		authorized += " " + comment
	}

	publicPath := privatePath + ".pub"
	for _, p := range []string{privatePath, publicPath} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to replace %s: %w", p, err)
		}
	}
	if err := os.WriteFile(privatePath, pem.EncodeToMemory(block), 0600); err != nil {
		return nil, fmt.Errorf("failed to write private key: %w", err)
	}
	if err := os.WriteFile(publicPath, []byte(authorized+"\n"), 0644); err != nil {
		return nil, fmt.Errorf("failed to write public key: %w", err)
	}

	return &KeyPair{
		PrivateKeyPath: privatePath,
		PublicKeyPath:  publicPath,
		AuthorizedKey:  authorized,
	}, nil
}

// ReadPublicKey reads an SSH public key from a file
func ReadPublicKey(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read SSH public key: %w", err)
	}

	key := strings.TrimSpace(string(data))
	if key == "" {
		return "", fmt.Errorf("SSH public key file is empty")
	}

	return key, nil
}

// ValidatePublicKey checks that key parses as an authorized_keys line.
func ValidatePublicKey(key string) error {
	if key == "" {
		return fmt.Errorf("SSH public key cannot be empty")
	}
	if _, _, _, _, err := gossh.ParseAuthorizedKey([]byte(key)); err != nil {
		return fmt.Errorf("invalid SSH public key format: %w", err)
	}
	return nil
}
