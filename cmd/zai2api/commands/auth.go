package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/Baozhi888/Z.ai2api/internal/config"
	"github.com/Baozhi888/Z.ai2api/internal/tokensource"
	"github.com/Baozhi888/Z.ai2api/internal/zai"
)

// authCommand returns the 'auth' subcommand for managing upstream credentials.
func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage upstream authentication",
		Commands: []*cli.Command{
			authLoginCommand(),
			authLogoutCommand(),
		},
	}
}

// authLoginCommand returns the 'auth login' subcommand.
func authLoginCommand() *cli.Command {
	return &cli.Command{
		Name:   "login",
		Usage:  "Verify a Z.ai access token and save it to the system keyring",
		Action: authLoginAction,
	}
}

// authLogoutCommand returns the 'auth logout' subcommand.
func authLogoutCommand() *cli.Command {
	return &cli.Command{
		Name:   "logout",
		Usage:  "Remove the saved Z.ai access token",
		Action: authLogoutAction,
	}
}

// authLoginAction prompts for an upstream access token, checks it against
// the live upstream and persists it on success.
func authLoginAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Println("=== Z.ai Login ===")
	fmt.Println()
	fmt.Printf("1. Sign in at %s in your browser\n", cfg.APIBase)
	fmt.Println("2. Copy the access token from the account settings")
	fmt.Println("3. Paste it below")

	token, err := readSecureInput(ctx, "\nEnter access token: ")
	if err != nil {
		return err
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("access token cannot be empty")
	}

	if err := verifyToken(ctx, cfg.APIBase, token); err != nil {
		return err
	}

	if err := tokensource.SaveToken(token); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}

	fmt.Println()
	fmt.Println("=== Login Successful ===")
	fmt.Println("Token saved to the system keyring")
	fmt.Println("The proxy will use it whenever anonymous tokens are disabled or unavailable")

	return nil
}

// authLogoutAction clears the stored upstream token.
func authLogoutAction(ctx context.Context, cmd *cli.Command) error {
	if err := tokensource.DeleteToken(); err != nil {
		return fmt.Errorf("failed to clear token: %w", err)
	}

	fmt.Println()
	fmt.Println("=== Logout Successful ===")
	fmt.Println("Credentials cleared from the system keyring")

	return nil
}

// verifyToken lists the upstream model catalog with the candidate token,
// rejecting tokens the upstream does not accept before they are saved.
func verifyToken(ctx context.Context, baseURL, token string) error {
	client, err := zai.NewClient(baseURL, tokensource.Static(token))
	if err != nil {
		return fmt.Errorf("failed to create upstream client: %w", err)
	}

	if _, err := client.ListModels(ctx); err != nil {
		var zerr *zai.Error
		if errors.As(err, &zerr) && zerr.Kind == zai.KindUnauthorized {
			return fmt.Errorf("upstream rejected the token: %w", err)
		}
		return fmt.Errorf("failed to verify token against %s: %w", baseURL, err)
	}

	return nil
}

// readSecureInput reads user input with hidden display and context cancellation support.
// Goroutine+select pattern required because term.ReadPassword has no native context support.
func readSecureInput(ctx context.Context, prompt string) (string, error) {
	fmt.Print(prompt)
	defer fmt.Println()

	type result struct {
		value string
		err   error
	}
	resultCh := make(chan result, 1)

	go func() {
		inputBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		resultCh <- result{value: string(inputBytes), err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-resultCh:
		if res.err != nil {
			return "", fmt.Errorf("failed to read input: %w", res.err)
		}
		return res.value, nil
	}
}
