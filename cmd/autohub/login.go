package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/nhle/autohub/internal/credential"
)

// login stores an access token. With no token argument the user is
// prompted for one.
func login(creds *credential.Store, args []string) error {
	var token string
	switch len(args) {
	case 0:
		t, err := promptToken()
		if err != nil {
			return err
		}
		token = t
	case 1:
		token = strings.TrimSpace(args[0])
		if err := validateToken(token); err != nil {
			return err
		}
	default:
		return fmt.Errorf("login takes at most one token\n%s", usage)
	}

	if err := creds.Set(credential.AccessTokenKey, token); err != nil {
		return err
	}
	fmt.Println("Access token saved.")
	return nil
}

func promptToken() (string, error) {
	var token string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Access Token").
				Description("Paste the token issued by the marketplace").
				EchoMode(huh.EchoModePassword).
				Value(&token).
				Validate(validateToken),
		),
	)
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return "", errors.New("login cancelled")
		}
		return "", fmt.Errorf("reading token: %w", err)
	}
	return strings.TrimSpace(token), nil
}

func validateToken(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return errors.New("token is required")
	}
	if _, err := credential.ParseSession(s); err != nil {
		return err
	}
	return nil
}
