package cli

import (
	"context"
	"fmt"
	"log"
)

func (a *App) getStatus() string {
	s := ""
	if a.config != nil && a.config.City != "" {
		s = a.config.City + " "
	}
	s = s + string(a.mode())
	return fmt.Sprintf("(%s)", s)
}

// Root prints the greeting and runs the REPL on the app's input until the
// user leaves.
func (a *App) Root(ctx context.Context) {
	log.Println("Welcome to TechTrack CLI (type 'help' for commands)")

	token, err := a.session.Token(ctx)
	if err != nil {
		log.Printf("error: %v", err)
	} else if token == "" {
		log.Println("No bearer token stored, the server will refuse queued changes until you run 'token'")
	}

	runREPL(ctx, a, a.getStatus, a.reader)
}
