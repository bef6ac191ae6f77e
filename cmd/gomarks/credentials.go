package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"gomarks/internal/config"
	"gomarks/internal/credentials"
	"gomarks/internal/utils"
)

func newCredentialsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage the authority token",
		Long: `Securely manage the bearer token sent to the authority.

The token is looked up in three places (in priority order):
  1. System keyring (most secure) - recommended
  2. The GOMARKS_TOKEN environment variable (good for CI/CD)
  3. GOMARKS_TOKEN in a .env file in the working directory

Tokens are stored per remote.base_url and owner_id.

Examples:
  # Store the token in keyring (interactive prompt)
  gomarks credentials set --prompt

  # Check where the token comes from
  gomarks credentials get

  # Remove the token from keyring
  gomarks credentials delete`,
	}

	cmd.AddCommand(newCredentialsSetCmd(opts))
	cmd.AddCommand(newCredentialsGetCmd(opts))
	cmd.AddCommand(newCredentialsDeleteCmd(opts))

	return cmd
}

// remoteIdentity returns the base url and owner that key the stored token
func remoteIdentity(cfg *config.Config) (string, string, error) {
	if cfg.Remote.BaseURL == "" {
		return "", "", utils.ErrInvalidConfig("remote.base_url", "required to store credentials")
	}
	return cfg.Remote.BaseURL, cfg.OwnerID, nil
}

func newCredentialsSetCmd(opts *rootOptions) *cobra.Command {
	var prompt bool

	cmd := &cobra.Command{
		Use:   "set [token]",
		Short: "Store the token in the system keyring",
		Long: `Store the authority token in the system keyring.

With --prompt the token is read without echo (recommended: a token given
as an argument ends up in shell history).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			baseURL, owner, err := remoteIdentity(cfg)
			if err != nil {
				return err
			}

			var token string
			switch {
			case prompt:
				fmt.Fprintf(cmd.OutOrStdout(), "Enter token for %s@%s: ", owner, baseURL)
				raw, err := term.ReadPassword(int(os.Stdin.Fd()))
				fmt.Fprintln(cmd.OutOrStdout())
				if err != nil {
					return fmt.Errorf("failed to read token: %w", err)
				}
				token = string(raw)
			case len(args) == 1:
				token = args[0]
			default:
				return fmt.Errorf("token is required (use --prompt for interactive input)")
			}
			if token == "" {
				return fmt.Errorf("token cannot be empty")
			}

			if err := credentials.Set(baseURL, owner, token); err != nil {
				if !credentials.IsAvailable() {
					return utils.WrapWithSuggestion(err,
						fmt.Sprintf("The system keyring is not available. Export %s=<token> instead", credentials.EnvToken))
				}
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "✓ Token stored for %s@%s\n", owner, baseURL)
			return nil
		},
	}

	cmd.Flags().BoolVar(&prompt, "prompt", false, "Prompt for the token interactively (recommended)")

	return cmd
}

func newCredentialsGetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "Show where the token comes from",
		Long: `Show which source provides the authority token.

The token itself is never printed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			creds, err := credentials.NewResolver().Resolve(cfg.Remote.BaseURL, cfg.OwnerID)
			if errors.Is(err, credentials.ErrNotFound) {
				fmt.Fprintf(out, "✗ No token found for owner %s\n", cfg.OwnerID)
				fmt.Fprintln(out, "  The authority accepts requests without one only if it has no token configured.")
				fmt.Fprintln(out, "  Store one with: gomarks credentials set --prompt")
				return nil
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "✓ Token found for owner %s\n", cfg.OwnerID)
			fmt.Fprintf(out, "  Source: %s\n", creds.Source)
			if creds.Source != credentials.SourceKeyring {
				fmt.Fprintln(out, "  Consider using keyring for better security: gomarks credentials set --prompt")
			}
			return nil
		},
	}
}

func newCredentialsDeleteCmd(opts *rootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Remove the token from the system keyring",
		Long: `Remove the stored token from the system keyring.

Tokens in the environment or a .env file are not affected.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			baseURL, owner, err := remoteIdentity(cfg)
			if err != nil {
				return err
			}

			if !force && !utils.PromptYesNo(fmt.Sprintf("Delete the token for %s@%s from keyring?", owner, baseURL)) {
				fmt.Fprintln(cmd.OutOrStdout(), "Cancelled")
				return nil
			}
			if err := credentials.Delete(baseURL, owner); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "✓ Token removed for %s@%s\n", owner, baseURL)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Skip confirmation prompt")

	return cmd
}
