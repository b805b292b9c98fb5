package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/jingrm/jing-token-client/internal/ethwallet"
	"github.com/jingrm/jing-token-client/internal/helpers"
)

// NewWalletCommand creates the wallet command group
func NewWalletCommand() *cobra.Command {
	walletCmd := &cobra.Command{
		Use:   "wallet",
		Short: "Manage the local encrypted keyring",
	}
	walletCmd.AddCommand(newWalletInitCommand())
	walletCmd.AddCommand(newWalletAddressCommand())
	walletCmd.AddCommand(newWalletAddCommand())
	return walletCmd
}

func newWalletInitCommand() *cobra.Command {
	var importKey bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the wallet file with a new or imported account",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openWalletStore()
			if err != nil {
				return err
			}
			if store.Exists() {
				return errors.Newf("wallet already exists at %s", store.Path)
			}

			pw, err := newPassword()
			if err != nil {
				return err
			}
			defer helpers.ZeroBytes(pw)

			var kr *ethwallet.Keyring
			if importKey {
				key, err := readSecretLine("Private key (hex): ")
				if err != nil {
					return err
				}
				kr, _, err = store.Import(pw, key)
				if err != nil {
					return err
				}
			} else {
				kr, err = store.Ensure(pw)
				if err != nil {
					return err
				}
			}

			fmt.Printf("Wallet written to %s\n", store.Path)
			printAddresses(kr)
			return nil
		},
	}
	cmd.Flags().BoolVar(&importKey, "import", false, "Import an existing private key instead of generating one")
	return cmd
}

func newWalletAddressCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "address",
		Short: "List the wallet's account addresses",
		RunE: func(cmd *cobra.Command, args []string) error {
			kr, err := loadKeyring()
			if err != nil {
				return err
			}
			printAddresses(kr)
			return nil
		},
	}
}

func newWalletAddCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "add",
		Short: "Generate an additional account in the wallet",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openWalletStore()
			if err != nil {
				return err
			}
			pw, err := readPassword("Wallet password: ")
			if err != nil {
				return err
			}
			defer helpers.ZeroBytes(pw)

			_, acct, err := store.AddAccount(pw)
			if err != nil {
				return err
			}
			fmt.Println(acct.AddressHex)
			return nil
		},
	}
}

func loadKeyring() (*ethwallet.Keyring, error) {
	store, err := openWalletStore()
	if err != nil {
		return nil, err
	}
	if !store.Exists() {
		return nil, errors.WithHint(
			errors.Newf("no wallet at %s", store.Path),
			"Run `jing-token-client wallet init` first.")
	}
	pw, err := readPassword("Wallet password: ")
	if err != nil {
		return nil, err
	}
	defer helpers.ZeroBytes(pw)
	return store.Load(pw)
}

func newPassword() ([]byte, error) {
	if pw := os.Getenv(passwordEnv); pw != "" {
		b := []byte(pw)
		if err := helpers.ValidatePassword(b); err != nil {
			return nil, err
		}
		return b, nil
	}
	return helpers.PromptNewPassword()
}

func readSecretLine(prompt string) (string, error) {
	_, _ = fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	_, _ = fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", errors.Wrap(err, "read secret")
	}
	defer helpers.ZeroBytes(b)
	return strings.TrimSpace(string(b)), nil
}

func printAddresses(kr *ethwallet.Keyring) {
	for i, a := range kr.Addresses() {
		marker := " "
		if i == 0 {
			marker = "*"
		}
		fmt.Printf("%s %s\n", marker, a.Hex())
	}
}
