package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"davmigrate/pkg/auth"
	"davmigrate/pkg/config"
	"davmigrate/pkg/storage"
	"davmigrate/pkg/ui"
)

var skipCheck bool

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage WebDAV credentials",
	Long: `Manage stored WebDAV credentials.

Credentials are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables (read only)

Select stored credentials with --account or storage.webdav.account.`,
}

var loginCmd = &cobra.Command{
	Use:   "login <account>",
	Short: "Store WebDAV credentials",
	Long: `Store WebDAV credentials under an account name.

For Nextcloud, create an app password under Settings > Security and use it
instead of your login password.`,
	Args: cobra.ExactArgs(1),
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout <account>",
	Short: "Remove stored credentials",
	Args:  cobra.ExactArgs(1),
	RunE:  runLogout,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored accounts",
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(listCmd)

	loginCmd.Flags().BoolVar(&skipCheck, "no-check", false, "store without connecting to the server")
}

func runLogin(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	reader := bufio.NewReader(os.Stdin)
	account := &auth.Account{Name: args[0]}

	fmt.Print("WebDAV URL: ")
	account.URL, err = readLine(reader)
	if err != nil {
		return err
	}
	fmt.Print("Username: ")
	account.Username, err = readLine(reader)
	if err != nil {
		return err
	}
	fmt.Print("Password: ")
	account.Password, err = readPassword(reader)
	if err != nil {
		return err
	}

	if !skipCheck {
		ui.PrintInfo("Checking", account.URL)
		if err := testCredentials(account); err != nil {
			return fmt.Errorf("credentials rejected: %w", err)
		}
	}

	if err := manager.Store(account); err != nil {
		return err
	}

	ui.PrintSuccess("Credentials stored for " + account.Name)
	fmt.Printf("\nUse them with:\n  davmigrate upload --account %s\n", account.Name)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}
	if err := manager.Delete(args[0]); err != nil {
		return err
	}
	ui.PrintSuccess("Credentials removed for " + args[0])
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	accounts, err := manager.List()
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		ui.PrintWarning("No stored accounts")
		return nil
	}

	for _, a := range accounts {
		s := auth.SanitizeAccount(a)
		fmt.Printf("%s %s@%s • %s • %s\n",
			ui.Cyan(s.Name),
			s.Username,
			s.URL,
			s.Password,
			ui.Dim(s.LastModified.Format(time.RFC3339)),
		)
	}
	return nil
}

func readLine(reader *bufio.Reader) (string, error) {
	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		return "", err
	}
	return strings.TrimSpace(input), nil
}

// readPassword reads a password from stdin without echoing
func readPassword(reader *bufio.Reader) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		password, err := term.ReadPassword(fd)
		fmt.Println()
		if err == nil {
			return string(password), nil
		}
	}
	return readLine(reader)
}

// testCredentials connects to the WebDAV server with the account
func testCredentials(account *auth.Account) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	up := storage.NewWebDAVUploader(config.WebDAVConfig{
		URL:      account.URL,
		Username: account.Username,
		Password: account.Password,
	}, 30*time.Second, storage.Options{})
	return up.Connect(ctx)
}
