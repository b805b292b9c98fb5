// Package helpers holds terminal prompts shared by the CLI commands.
package helpers

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"golang.org/x/term"
)

const minPasswordLen = 8

func PromptInfuraAPIKey(in io.Reader, out io.Writer) (string, error) {
	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprintln(out, "=== Ethereum RPC Provider Setup ===")
	_, _ = fmt.Fprintln(out, "jing-token-client uses Infura for default Ethereum RPC access.")
	_, _ = fmt.Fprintln(out, "Create a free Infura account and API key at https://www.infura.io/register")
	_, _ = fmt.Fprintln(out)

	reader := bufio.NewReader(in)
	for attempts := 0; attempts < 3; attempts++ {
		key, err := readLine(reader, out, "Enter your Infura API Key", "")
		if err != nil {
			return "", err
		}
		if err := ValidateInfuraKey(key); err != nil {
			_, _ = fmt.Fprintln(out, "invalid key:", err)
			continue
		}
		return key, nil
	}
	return "", errors.New("no valid Infura API key entered")
}

// ValidateInfuraKey checks the 32 hex character key format.
func ValidateInfuraKey(key string) error {
	key = strings.TrimSpace(key)
	switch {
	case key == "":
		return errors.New("key cannot be empty")
	case len(key) != 32:
		return errors.New("expected 32 hexadecimal characters")
	case !isHexString(key):
		return errors.New("only hexadecimal characters (0-9, a-f) are allowed")
	}
	return nil
}

func isHexString(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

func PromptLineWithDefault(in io.Reader, out io.Writer, label, def string) string {
	line, err := readLine(bufio.NewReader(in), out, label, def)
	if err != nil {
		return def
	}
	return line
}

func readLine(reader *bufio.Reader, out io.Writer, label, def string) (string, error) {
	if def != "" {
		_, _ = fmt.Fprintf(out, "%s [%s]: ", label, def)
	} else {
		_, _ = fmt.Fprintf(out, "%s: ", label)
	}

	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return def, errors.Wrap(err, "read input")
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return def, nil
	}
	return line, nil
}

// PromptPassword reads a password from the terminal without echo.
func PromptPassword(prompt string) ([]byte, error) {
	_, _ = fmt.Fprint(os.Stderr, prompt)

	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	_, _ = fmt.Fprintln(os.Stderr)

	if err != nil {
		ZeroBytes(pw)
		return nil, errors.Wrap(err, "password input failed")
	}
	if err := ValidatePassword(pw); err != nil {
		ZeroBytes(pw)
		return nil, err
	}
	return pw, nil
}

// PromptNewPassword asks twice and requires both entries to match.
func PromptNewPassword() ([]byte, error) {
	pw, err := PromptPassword("New wallet password: ")
	if err != nil {
		return nil, err
	}
	confirm, err := PromptPassword("Repeat password: ")
	if err != nil {
		ZeroBytes(pw)
		return nil, err
	}
	defer ZeroBytes(confirm)

	if !bytes.Equal(pw, confirm) {
		ZeroBytes(pw)
		return nil, errors.New("passwords do not match")
	}
	return pw, nil
}

func ValidatePassword(pw []byte) error {
	if len(pw) < minPasswordLen {
		return errors.Newf("password must be at least %d characters long", minPasswordLen)
	}
	for _, b := range pw {
		if !IsAllowedPasswordChar(b) {
			return errors.New("password contains invalid characters (use letters, numbers, and special characters only)")
		}
	}
	return nil
}

// IsAllowedPasswordChar accepts printable ASCII without spaces.
func IsAllowedPasswordChar(b byte) bool {
	return b > ' ' && b <= '~'
}

func ZeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
