package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
// Each handler receives the words typed after the command name.
type execIface interface {
	Add(ctx context.Context, args []string) error
	Update(ctx context.Context, args []string) error
	Delete(ctx context.Context, args []string) error
	List(ctx context.Context, args []string) error
	Show(ctx context.Context, args []string) error
	Queue(ctx context.Context) error
	Sync(ctx context.Context) error
	Conflicts(ctx context.Context) error
	Discard(ctx context.Context, args []string) error
	Token(ctx context.Context) error
	Status(ctx context.Context) error
	Logout(ctx context.Context) error
}

const helpText = `Available commands:
  add <type> [field=value ...]          create a record (prompts for fields when none given)
  update <type> <id> field=value ...    change fields of a record
  delete <type> <id>                    delete a record
  (l)ist <type> [index=value]           list records, optionally by index
  show <type> <id>                      show one record
  queue                                 list changes waiting for the server
  sync                                  send queued changes now
  conflicts                             list changes and records that need attention
  discard <seq>                         drop a queued change
  token                                 store the bearer token
  status                                connectivity and sync state
  logout                                wipe all local data
  exit | quit                           leave the program
Types: task, equipment, part, report, trip, user-setting`

// runREPL starts a simple read–eval–print loop for the TechTrack CLI.
//
// It reads a line from reader, parses the first token as the command, and
// dispatches to methods on a. Unknown commands are reported back to the user.
// The loop exits on EOF, when ctx is cancelled, or when the user types
// "exit" or "quit".
//
// Errors returned by handlers are printed and the loop continues.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		if ctx.Err() != nil {
			return
		}
		printlnFn(fmt.Sprintf("tt %s> ", statusFn()))

		line, err := readLine(reader)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				printlnFn("Error:", err)
			}
			return
		}
		parts := splitArgs(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help":
			printlnFn(helpText)

		case "add":
			err = a.Add(ctx, args)

		case "update":
			err = a.Update(ctx, args)

		case "delete":
			err = a.Delete(ctx, args)

		case "l", "list":
			err = a.List(ctx, args)

		case "show":
			err = a.Show(ctx, args)

		case "queue":
			err = a.Queue(ctx)

		case "sync":
			err = a.Sync(ctx)

		case "conflicts":
			err = a.Conflicts(ctx)

		case "discard":
			err = a.Discard(ctx, args)

		case "token":
			err = a.Token(ctx)

		case "status":
			err = a.Status(ctx)

		case "logout":
			err = a.Logout(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}

		if err != nil {
			printlnFn("Error:", err)
		}
	}
}

// splitArgs splits a command line on whitespace. Double quotes group words,
// so title="Calibrate MLC" is one argument.
func splitArgs(line string) []string {
	var (
		args    []string
		cur     strings.Builder
		quoted  bool
		pending bool
	)
	for _, r := range line {
		switch {
		case r == '"':
			quoted = !quoted
			pending = true
		case !quoted && unicode.IsSpace(r):
			if pending {
				args = append(args, cur.String())
				cur.Reset()
				pending = false
			}
		default:
			cur.WriteRune(r)
			pending = true
		}
	}
	if pending {
		args = append(args, cur.String())
	}
	return args
}
