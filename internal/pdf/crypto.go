package pdf

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Credentials carries the passwords used to open an encrypted PDF.
type Credentials struct {
	UserPassword  string `json:"user_password,omitempty"`
	OwnerPassword string `json:"owner_password,omitempty"`
}

// Empty reports whether no password is set.
func (c *Credentials) Empty() bool {
	return c == nil || (c.UserPassword == "" && c.OwnerPassword == "")
}

func (c *Credentials) configuration() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	if c != nil {
		conf.UserPW = c.UserPassword
		conf.OwnerPW = c.OwnerPassword
	}
	return conf
}

// IsEncrypted reports whether a PDF cannot be read without a password.
func IsEncrypted(filename string) (bool, error) {
	_, err := api.PageCountFile(filename)
	if err == nil {
		return false, nil
	}
	if IsPasswordError(err) {
		return true, nil
	}
	return false, fmt.Errorf("failed to check PDF encryption status: %w", err)
}

// Decrypt writes a decrypted copy of filename to a temporary file and returns
// its path. Unencrypted input is returned unchanged. Callers release the copy
// with CleanupTempFile.
func Decrypt(filename string, creds *Credentials) (string, error) {
	encrypted, err := IsEncrypted(filename)
	if err != nil {
		return "", err
	}
	if !encrypted {
		return filename, nil
	}
	if creds.Empty() {
		return "", errors.New("PDF is password protected: no password provided")
	}

	tmp, err := os.CreateTemp("", "decrypted-*.pdf")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary file: %w", err)
	}
	_ = tmp.Close()

	if err := api.DecryptFile(filename, tmp.Name(), creds.configuration()); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to decrypt PDF: %w", err)
	}
	return tmp.Name(), nil
}

// CleanupTempFile removes a file produced by Decrypt. Any other path is left alone.
func CleanupTempFile(filename string) error {
	if filename == "" {
		return nil
	}
	base := filename[strings.LastIndexAny(filename, `/\`)+1:]
	if strings.HasPrefix(base, "decrypted-") && strings.HasSuffix(base, ".pdf") {
		return os.Remove(filename)
	}
	return nil
}

// IsPasswordError checks if an error is related to password/encryption issues.
func IsPasswordError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	for _, keyword := range []string{
		"password",
		"encrypted",
		"decrypt",
		"authentication",
		"unauthorized",
		"invalid credentials",
	} {
		if strings.Contains(errStr, keyword) {
			return true
		}
	}
	return false
}
