package cli

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/martijn/pgvault/internal/crypto"
)

var decryptOutput string

var decryptCmd = &cobra.Command{
	Use:   "decrypt <file>",
	Short: "Decrypt an encrypted backup artifact",
	Long: `Decrypt an encrypted backup artifact into a plain dump file.

The passphrase is taken from the configuration when set; otherwise it is
prompted for. The artifact carries its own salt and nonce, so nothing else
is needed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		inPath := args[0]

		passphrase := cfg.EncryptionPassphrase
		if passphrase == "" {
			fmt.Print("Passphrase: ")
			raw, err := term.ReadPassword(int(syscall.Stdin))
			fmt.Println()
			if err != nil {
				return fmt.Errorf("failed to read passphrase: %w", err)
			}
			passphrase = string(raw)
		}

		in, err := os.Open(inPath)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", inPath, err)
		}
		defer in.Close()

		outPath := decryptOutput
		if outPath == "" {
			outPath = defaultDecryptOutput(inPath)
		}

		out, err := os.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", outPath, err)
		}

		err = crypto.Decrypt(out, in, passphrase)
		if cerr := out.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to finish %s: %w", outPath, cerr)
		}
		if err != nil {
			os.Remove(outPath)
			if errors.Is(err, crypto.ErrAuthentication) {
				return fmt.Errorf("decryption failed: wrong passphrase or corrupted artifact")
			}
			return fmt.Errorf("decryption failed: %w", err)
		}

		fmt.Printf("Decrypted to %s\n", outPath)
		return nil
	},
}

func defaultDecryptOutput(inPath string) string {
	if crypto.IsEncryptedName(inPath) {
		return inPath[:len(inPath)-len(crypto.EncryptedSuffix)]
	}
	return inPath + ".decrypted"
}

func init() {
	rootCmd.AddCommand(decryptCmd)
	decryptCmd.Flags().StringVarP(&decryptOutput, "output", "o", "", "Output file (default: input without the .enc suffix)")
}
