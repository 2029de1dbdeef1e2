// Package local implements the wallet capability over a locally held key:
// no out-of-band prompting, signing and broadcasting happen in-process.
package local

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	clierr "github.com/dfigueira/walletctl/internal/errors"
	"github.com/dfigueira/walletctl/internal/wallet"
)

const (
	ProviderID wallet.ProviderID = "local"

	EnvPrivateKey       = "WALLETCTL_PRIVATE_KEY"
	EnvPrivateKeyFile   = "WALLETCTL_PRIVATE_KEY_FILE"
	EnvKeystorePath     = "WALLETCTL_KEYSTORE_PATH"
	EnvKeystorePassword = "WALLETCTL_KEYSTORE_PASSWORD"

	defaultKeyRelativePath = "walletctl/key.hex"
)

// Submitter signs with the provided key and broadcasts. *chain.Client
// satisfies this.
type Submitter interface {
	SubmitTransaction(ctx context.Context, key *ecdsa.PrivateKey, from common.Address, payload wallet.Payload) (string, error)
}

type Provider struct {
	submitter Submitter
	key       *ecdsa.PrivateKey
	address   common.Address
}

func New(submitter Submitter) *Provider {
	return &Provider{submitter: submitter}
}

func (p *Provider) ID() wallet.ProviderID { return ProviderID }

// Probe reports whether key material is discoverable. It never loads or
// decrypts anything.
func (p *Provider) Probe() bool {
	if strings.TrimSpace(os.Getenv(EnvPrivateKey)) != "" {
		return true
	}
	if strings.TrimSpace(os.Getenv(EnvPrivateKeyFile)) != "" {
		return true
	}
	if strings.TrimSpace(os.Getenv(EnvKeystorePath)) != "" {
		return true
	}
	return discoverDefaultKeyFile() != ""
}

func (p *Provider) Connect(ctx context.Context) (string, error) {
	if err := p.loadKey(); err != nil {
		return "", wallet.NewConnectError(ProviderID, wallet.ConnectUnavailable, err)
	}
	return p.address.Hex(), nil
}

func (p *Provider) SignAndSubmit(ctx context.Context, payload wallet.Payload) (string, error) {
	if p.key == nil {
		if err := p.loadKey(); err != nil {
			return "", wallet.NewSubmitError(ProviderID, wallet.SubmitUnknown, "signing key is not loaded", err)
		}
	}
	hash, err := p.submitter.SubmitTransaction(ctx, p.key, p.address, payload)
	if err != nil {
		return "", mapSubmitError(err)
	}
	return hash, nil
}

// Disconnect drops the loaded key from memory.
func (p *Provider) Disconnect(ctx context.Context) error {
	p.key = nil
	p.address = common.Address{}
	return nil
}

func (p *Provider) loadKey() error {
	key, err := loadPrivateKey()
	if err != nil {
		return err
	}
	pub, ok := key.Public().(*ecdsa.PublicKey)
	if !ok {
		return errors.New("invalid ECDSA public key")
	}
	p.key = key
	p.address = crypto.PubkeyToAddress(*pub)
	return nil
}

// Precedence: env hex, then key file, then keystore.
func loadPrivateKey() (*ecdsa.PrivateKey, error) {
	if raw := strings.TrimSpace(os.Getenv(EnvPrivateKey)); raw != "" {
		return parseHexKey(raw)
	}

	keyFile := strings.TrimSpace(os.Getenv(EnvPrivateKeyFile))
	if keyFile == "" {
		keyFile = discoverDefaultKeyFile()
	}
	if keyFile != "" {
		buf, err := os.ReadFile(keyFile)
		if err != nil {
			return nil, fmt.Errorf("read private key file: %w", err)
		}
		return parseHexKey(string(buf))
	}

	if keystorePath := strings.TrimSpace(os.Getenv(EnvKeystorePath)); keystorePath != "" {
		password := strings.TrimSpace(os.Getenv(EnvKeystorePassword))
		if password == "" {
			return nil, fmt.Errorf("keystore password is required (set %s)", EnvKeystorePassword)
		}
		buf, err := os.ReadFile(keystorePath)
		if err != nil {
			return nil, fmt.Errorf("read keystore file: %w", err)
		}
		key, err := keystore.DecryptKey(buf, password)
		if err != nil {
			return nil, fmt.Errorf("decrypt keystore: %w", err)
		}
		return key.PrivateKey, nil
	}

	return nil, fmt.Errorf("missing signing key: set %s or %s or %s", EnvPrivateKey, EnvPrivateKeyFile, EnvKeystorePath)
}

func parseHexKey(raw string) (*ecdsa.PrivateKey, error) {
	clean := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if clean == "" {
		return nil, fmt.Errorf("empty private key")
	}
	key, err := crypto.HexToECDSA(clean)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}

func discoverDefaultKeyFile() string {
	base := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME"))
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil || strings.TrimSpace(home) == "" {
			return ""
		}
		base = filepath.Join(home, ".config")
	}
	path := filepath.Join(base, defaultKeyRelativePath)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return ""
	}
	return path
}

func mapSubmitError(err error) error {
	if typed, ok := clierr.As(err); ok {
		switch typed.Code {
		case clierr.CodeTimeout:
			return wallet.NewSubmitError(ProviderID, wallet.SubmitTimeout, "", err)
		case clierr.CodeNetwork:
			return wallet.NewSubmitError(ProviderID, wallet.SubmitNetworkError, "", err)
		}
	}
	return wallet.NewSubmitError(ProviderID, wallet.SubmitUnknown, err.Error(), err)
}
