package cli

import (
	"context"
	"fmt"
)

// Token reads a bearer token without echo and stores it.
func (a *App) Token(ctx context.Context) error {
	token, err := GetSecret("Enter bearer token", a.out)
	if err != nil {
		return err
	}
	if token == "" {
		return fmt.Errorf("token must not be empty")
	}
	if err := a.session.SetToken(ctx, token); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Token saved")
	return nil
}

// Logout wipes every local record, the queue and metadata after the user
// confirms. Unsent changes are counted in the question.
func (a *App) Logout(ctx context.Context) error {
	entries, err := a.entities.Pending(ctx)
	if err != nil {
		return err
	}

	prompt := "Wipe all local data?"
	if n := len(entries); n > 0 {
		prompt = fmt.Sprintf("%d change(s) have not reached the server and will be lost. Wipe all local data?", n)
	}
	ok, err := Confirm(a.reader, prompt, a.out)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(a.out, "Logout cancelled")
		return nil
	}

	if err := a.session.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Logged out, local data cleared")
	return nil
}
