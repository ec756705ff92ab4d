package cmd

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"

	"github.com/absenteeism-ml/absdeploy/internal/observability"
	"github.com/absenteeism-ml/absdeploy/pkg/cloud"
)

var keypairSkipImport bool

var keypairCmd = &cobra.Command{
	Use:   "keypair",
	Short: "Generate the SSH key pair and register it with EC2",
	Long: `Generate an ed25519 SSH key pair at SSH_KEY_PATH and import the public key
into EC2 under KEY_PAIR_NAME.

Existing key files are left untouched. A key pair already registered under the
same name counts as success.`,
	RunE: runKeypair,
}

func init() {
	rootCmd.AddCommand(keypairCmd)
	keypairCmd.Flags().BoolVar(&keypairSkipImport, "skip-import", false,
		"Generate the key files only, without importing into EC2")
}

func runKeypair(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := observability.CLILogger

	keyPath := cfg.Remote.SSHKeyPath
	if keyPath == "" {
		return exitError(foundry.ExitInvalidArgument, "SSH key path not configured",
			fmt.Errorf("set SSH_KEY_PATH"))
	}
	pubPath := keyPath + ".pub"

	publicKey, err := ensureKeyFiles(keyPath, pubPath, logger)
	if err != nil {
		return exitError(foundry.ExitFileWriteError, "Key generation failed", err)
	}

	if keypairSkipImport {
		logger.Info("Skipping EC2 import", zap.String("public_key", pubPath))
		return nil
	}

	client, err := cloud.New(cmd.Context(), cloud.Config{
		Region:          cfg.AWS.Region,
		AccessKeyID:     cfg.AWS.AccessKeyID,
		SecretAccessKey: cfg.AWS.SecretAccessKey,
	})
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "AWS configuration failed", err)
	}

	if err := client.ImportKeyPair(cmd.Context(), cfg.AWS.KeyPairName, publicKey); err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Key pair import failed", err)
	}
	logger.Info("Key pair registered",
		zap.String("name", cfg.AWS.KeyPairName),
		zap.String("private_key", keyPath))
	return nil
}

// ensureKeyFiles generates the key pair unless the private key already exists,
// and returns the authorized-keys form of the public key either way.
func ensureKeyFiles(keyPath, pubPath string, logger *zap.Logger) ([]byte, error) {
	if _, err := os.Stat(keyPath); err == nil {
		logger.Info("Reusing existing key", zap.String("private_key", keyPath))
		return os.ReadFile(pubPath)
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 key: %w", err)
	}

	block, err := ssh.MarshalPrivateKey(priv, "")
	if err != nil {
		return nil, fmt.Errorf("marshal private key: %w", err)
	}
	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("derive public key: %w", err)
	}
	authorized := ssh.MarshalAuthorizedKey(sshPub)

	if err := os.MkdirAll(filepath.Dir(keyPath), 0o700); err != nil {
		return nil, fmt.Errorf("create key directory: %w", err)
	}
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(block), 0o600); err != nil {
		return nil, fmt.Errorf("write private key: %w", err)
	}
	if err := os.WriteFile(pubPath, authorized, 0o644); err != nil {
		return nil, fmt.Errorf("write public key: %w", err)
	}

	logger.Info("Generated new ed25519 key pair",
		zap.String("private_key", keyPath),
		zap.String("public_key", pubPath))
	return authorized, nil
}
