package main

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/vortexsol/sniperbot/internal/kv"
	"github.com/vortexsol/sniperbot/internal/vault"
)

func newVaultCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vault",
		Short: "Offline credential vault utilities",
	}
	cmd.AddCommand(newVaultEncryptCmd())
	cmd.AddCommand(newVaultDecryptCheckCmd())
	return cmd
}

// offlineVault builds a Vault with no live collaborators, for the subset of
// operations (Encrypt/Decrypt) that touch neither the K/V store nor the
// wallet lookup. Argon2id costs match the config package's defaults so a
// blob produced here decrypts identically under the running daemon.
func offlineVault() *vault.Vault {
	return vault.New(kv.NewMemoryStore(), nil, vault.Config{
		ArgonMemoryKiB:   65536,
		ArgonIterations:  3,
		ArgonParallelism: 4,
	})
}

func newVaultEncryptCmd() *cobra.Command {
	var privateKeyB58, password string
	cmd := &cobra.Command{
		Use:   "encrypt",
		Short: "Encrypt a base58 private key under a password, printing the blob",
		RunE: func(cmd *cobra.Command, args []string) error {
			key := solana.MustPrivateKeyFromBase58(privateKeyB58)
			blob, err := offlineVault().Encrypt([]byte(key), password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), blob)
			return nil
		},
	}
	cmd.Flags().StringVar(&privateKeyB58, "private-key", "", "base58-encoded private key")
	cmd.Flags().StringVar(&password, "password", "", "encryption password")
	cmd.MarkFlagRequired("private-key") //nolint:errcheck
	cmd.MarkFlagRequired("password")    //nolint:errcheck
	return cmd
}

func newVaultDecryptCheckCmd() *cobra.Command {
	var blob, password string
	cmd := &cobra.Command{
		Use:   "decrypt-check",
		Short: "Verify a password against an encrypted blob without printing the key",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := offlineVault().Decrypt(blob, password)
			if err != nil {
				return err
			}
			pk := solana.PrivateKey(key)
			fmt.Fprintf(cmd.OutOrStdout(), "ok: public key %s\n", pk.PublicKey())
			return nil
		},
	}
	cmd.Flags().StringVar(&blob, "blob", "", "colon-joined encrypted blob")
	cmd.Flags().StringVar(&password, "password", "", "candidate password")
	cmd.MarkFlagRequired("blob")      //nolint:errcheck
	cmd.MarkFlagRequired("password") //nolint:errcheck
	return cmd
}
