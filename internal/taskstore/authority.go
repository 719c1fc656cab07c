package taskstore

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/roach88/taskstore/internal/config"
)

// SigningRequest names the files a certificate is generated from.
type SigningRequest struct {
	PrivateKeyPath string
	CAKeyPath      string
	CACertPath     string
	Template       string
}

// CertificateAuthority issues sync server accounts and client
// certificates.
type CertificateAuthority interface {
	// AddUser creates a server-side account and returns its user key.
	AddUser(ctx context.Context, org, username string) (string, error)

	// GeneratePrivateKey returns a new PEM private key.
	GeneratePrivateKey(ctx context.Context) ([]byte, error)

	// SignCertificate returns a PEM certificate for the request's key.
	SignCertificate(ctx context.Context, req SigningRequest) ([]byte, error)
}

// TaskdAuthority implements CertificateAuthority with the taskd and
// certtool binaries.
type TaskdAuthority struct {
	settings config.Taskd
}

// NewTaskdAuthority returns an authority driven by settings.
func NewTaskdAuthority(settings config.Taskd) *TaskdAuthority {
	return &TaskdAuthority{settings: settings}
}

// AddUser runs `taskd add --data <data> user <org> <username>`.
func (a *TaskdAuthority) AddUser(ctx context.Context, org, username string) (string, error) {
	stdout, err := run(ctx, a.settings.Binary,
		"add", "--data", a.settings.Data, "user", org, username)
	if err != nil {
		return "", fmt.Errorf("add taskd user: %w", err)
	}
	return ParseUserKey(string(stdout))
}

// GeneratePrivateKey runs `certtool --generate-privkey`.
func (a *TaskdAuthority) GeneratePrivateKey(ctx context.Context) ([]byte, error) {
	key, err := run(ctx, a.settings.Certtool, "--generate-privkey")
	if err != nil {
		return nil, fmt.Errorf("generate private key: %w", err)
	}
	return key, nil
}

// SignCertificate runs `certtool --generate-certificate` against the
// server's CA.
func (a *TaskdAuthority) SignCertificate(ctx context.Context, req SigningRequest) ([]byte, error) {
	cert, err := run(ctx, a.settings.Certtool,
		"--generate-certificate",
		"--load-privkey", req.PrivateKeyPath,
		"--load-ca-privkey", req.CAKeyPath,
		"--load-ca-certificate", req.CACertPath,
		"--template", req.Template,
	)
	if err != nil {
		return nil, fmt.Errorf("sign certificate: %w", err)
	}
	return cert, nil
}

// ParseUserKey extracts the key from the first line of `taskd add user`
// output, which has the form "<label>: <key>".
func ParseUserKey(output string) (string, error) {
	first, _, _ := strings.Cut(output, "\n")
	_, key, ok := strings.Cut(first, ":")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", fmt.Errorf("parse user key from %q", first)
	}
	return key, nil
}

func run(ctx context.Context, binary string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s: %w: %s", binary, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}
