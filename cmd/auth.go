package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/driftware/workspace-mcp/internal/auth"
)

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage Google credentials",
		Long: `Manage the Google credentials used by the MCP server.

Tokens are stored in the OS keyring when available, with an encrypted
file fallback under the user config directory.`,
	}

	cmd.AddCommand(newAuthLoginCmd())
	cmd.AddCommand(newAuthStatusCmd())
	cmd.AddCommand(newAuthLogoutCmd())

	return cmd
}

// cliLogger returns a terse logger for interactive commands.
func cliLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func newAuthLoginCmd() *cobra.Command {
	var (
		account      string
		readOnly     bool
		noBrowser    bool
		callbackPort int
		scopesList   string
		creds        CredentialConfig
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate a Google account interactively",
		Long: `Run the OAuth2 authorization-code flow for an account.

Opens the system browser to Google's consent screen and listens on a
localhost port for the redirect. The resulting tokens are persisted so
subsequent server runs need no interaction until the refresh token is
revoked.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			creds.Scopes = parseCommaSeparatedList(scopesList)
			creds.applyEnv()

			if creds.ClientID == "" || creds.ClientSecret == "" {
				return fmt.Errorf("set --google-client-id and --google-client-secret (or GOOGLE_CLIENT_ID/GOOGLE_CLIENT_SECRET)")
			}

			logger := cliLogger()
			store, err := creds.tokenStore(logger, nil)
			if err != nil {
				return fmt.Errorf("failed to open token store: %w", err)
			}

			provider, err := auth.NewOAuth2Provider(auth.OAuth2Config{
				ClientID:      creds.ClientID,
				ClientSecret:  creds.ClientSecret,
				Scopes:        creds.scopesFor(readOnly),
				Account:       account,
				CallbackPort:  callbackPort,
				LaunchBrowser: !noBrowser,
			}, store, auth.WithOAuth2Logger(logger))
			if err != nil {
				return err
			}

			tok, err := provider.Authenticate(cmd.Context())
			if err != nil {
				return fmt.Errorf("authentication failed: %w", err)
			}

			fmt.Printf("Authenticated account %q\n", provider.Account())
			if !tok.Expiry.IsZero() {
				fmt.Printf("Access token expires %s\n", tok.Expiry.Format(time.RFC3339))
			}
			if tok.RefreshToken == "" {
				fmt.Println("Warning: no refresh token was granted; re-authentication will be required after expiry")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&account, "account", "default", "Account name to store the credentials under")
	cmd.Flags().BoolVar(&readOnly, "read-only", false, "Request read-only OAuth scopes")
	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "Print the authorization URL instead of opening a browser")
	cmd.Flags().IntVar(&callbackPort, "callback-port", 0, "Pin the localhost callback port (0 picks an ephemeral port)")
	cmd.Flags().StringVar(&creds.ClientID, "google-client-id", "", "Google OAuth Client ID. Can also use GOOGLE_CLIENT_ID env var.")
	cmd.Flags().StringVar(&creds.ClientSecret, "google-client-secret", "", "Google OAuth Client Secret. Can also use GOOGLE_CLIENT_SECRET env var.")
	cmd.Flags().StringVar(&creds.TokenStoreMode, "token-store", "auto", "Token store backend: auto, keyring or file. Can also use TOKEN_STORE_MODE env var.")
	cmd.Flags().StringVar(&creds.TokenFile, "token-file", "", "Override the encrypted token file location. Can also use TOKEN_FILE env var.")
	cmd.Flags().StringVar(&scopesList, "scopes", "", "Comma-separated OAuth scope override. Can also use GOOGLE_SCOPES env var.")

	return cmd
}

func newAuthStatusCmd() *cobra.Command {
	var (
		account string
		creds   CredentialConfig
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show stored credential state",
		RunE: func(cmd *cobra.Command, args []string) error {
			creds.applyEnv()

			logger := cliLogger()
			store, err := creds.tokenStore(logger, nil)
			if err != nil {
				return fmt.Errorf("failed to open token store: %w", err)
			}

			ctx := cmd.Context()

			accounts := []string{account}
			if account == "" {
				accounts, err = store.Accounts(ctx)
				if err != nil {
					return fmt.Errorf("failed to list accounts: %w", err)
				}
				if len(accounts) == 0 {
					fmt.Println("No accounts authenticated. Run 'workspace-mcp auth login'.")
					return nil
				}
			}

			now := time.Now()
			for _, acct := range accounts {
				stored, err := store.Load(ctx, acct)
				if err != nil {
					fmt.Printf("%s: error: %v\n", acct, err)
					continue
				}
				if stored == nil {
					fmt.Printf("%s: no credentials\n", acct)
					continue
				}

				tok := stored.Token()
				state := "valid"
				if tok.Expiry.Before(now) {
					state = "expired"
					if tok.RefreshToken != "" {
						state = "expired (refreshable)"
					}
				}
				fmt.Printf("%s: %s\n", acct, state)
				if !tok.Expiry.IsZero() {
					fmt.Printf("  expiry: %s\n", tok.Expiry.Format(time.RFC3339))
				}
				if len(stored.ClientConfig.Scopes) > 0 {
					fmt.Printf("  scopes: %s\n", strings.Join(stored.ClientConfig.Scopes, ", "))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "Show a single account (default: all)")
	cmd.Flags().StringVar(&creds.TokenStoreMode, "token-store", "auto", "Token store backend: auto, keyring or file. Can also use TOKEN_STORE_MODE env var.")
	cmd.Flags().StringVar(&creds.TokenFile, "token-file", "", "Override the encrypted token file location. Can also use TOKEN_FILE env var.")

	return cmd
}

func newAuthLogoutCmd() *cobra.Command {
	var (
		account string
		all     bool
		creds   CredentialConfig
	)

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Remove stored credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			creds.applyEnv()

			logger := cliLogger()
			store, err := creds.tokenStore(logger, nil)
			if err != nil {
				return fmt.Errorf("failed to open token store: %w", err)
			}

			ctx := cmd.Context()

			accounts := []string{account}
			if all {
				accounts, err = store.Accounts(ctx)
				if err != nil {
					return fmt.Errorf("failed to list accounts: %w", err)
				}
				if len(accounts) == 0 {
					fmt.Println("No stored credentials")
					return nil
				}
			}

			for _, acct := range accounts {
				if err := store.Delete(ctx, acct); err != nil {
					return fmt.Errorf("failed to remove credentials for %s: %w", acct, err)
				}
				fmt.Printf("Removed credentials for %s\n", acct)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&account, "account", "default", "Account to log out")
	cmd.Flags().BoolVar(&all, "all", false, "Remove credentials for every stored account")
	cmd.Flags().StringVar(&creds.TokenStoreMode, "token-store", "auto", "Token store backend: auto, keyring or file. Can also use TOKEN_STORE_MODE env var.")
	cmd.Flags().StringVar(&creds.TokenFile, "token-file", "", "Override the encrypted token file location. Can also use TOKEN_FILE env var.")

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the workspace-mcp version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("workspace-mcp version %s\n", version)
		},
	}
}
