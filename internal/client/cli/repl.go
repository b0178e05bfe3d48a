package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/oficinahq/garagesync/internal/models"
)

// printlnFn is swappable in tests to capture output.
var printlnFn = func(s string) { fmt.Println(s) }

// execIface is the command surface the REPL dispatches to.
type execIface interface {
	Status(ctx context.Context) string
	List(ctx context.Context, kind models.Kind) error
	Add(ctx context.Context, kind models.Kind, args []string) error
	Get(ctx context.Context, kind models.Kind, id string) error
	Del(ctx context.Context, kind models.Kind, id string, permanent bool) error
	Sync(ctx context.Context) error
}

const helpText = `commands:
  status                         show connectivity, mode and pending count
  list <kind>                    list entities of a kind
  add  <kind> <fields...>        create an entity
  get  <kind> <id>               show one entity
  del  <kind> <id> [permanent]   delete an entity (permanent skips the queue)
  sync                           push pending operations now
  exit                           quit

kinds: mechanics, service_orders, vouchers`

// runREPL reads commands line by line from in and dispatches them to a
// until EOF, "exit" or context cancellation.
func runREPL(ctx context.Context, a execIface, in io.Reader) {
	scanner := bufio.NewScanner(in)

	for {
		fmt.Printf("[%s] > ", a.Status(ctx))
		if !scanner.Scan() {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}

		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		if err := dispatch(ctx, a, fields); err != nil {
			if err == errQuit {
				return
			}
			printlnFn("error: " + err.Error())
		}
	}
}

var errQuit = fmt.Errorf("quit")

func dispatch(ctx context.Context, a execIface, fields []string) error {
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "exit", "quit":
		return errQuit
	case "help":
		printlnFn(helpText)
		return nil
	case "status":
		printlnFn(a.Status(ctx))
		return nil
	case "sync":
		return a.Sync(ctx)
	case "list":
		if len(args) < 1 {
			return fmt.Errorf("usage: list <kind>")
		}
		kind, err := models.ParseKind(args[0])
		if err != nil {
			return err
		}
		return a.List(ctx, kind)
	case "add":
		if len(args) < 2 {
			return fmt.Errorf("usage: add <kind> <fields...>")
		}
		kind, err := models.ParseKind(args[0])
		if err != nil {
			return err
		}
		return a.Add(ctx, kind, args[1:])
	case "get":
		if len(args) < 2 {
			return fmt.Errorf("usage: get <kind> <id>")
		}
		kind, err := models.ParseKind(args[0])
		if err != nil {
			return err
		}
		return a.Get(ctx, kind, args[1])
	case "del":
		if len(args) < 2 {
			return fmt.Errorf("usage: del <kind> <id> [permanent]")
		}
		kind, err := models.ParseKind(args[0])
		if err != nil {
			return err
		}
		permanent := len(args) > 2 && args[2] == "permanent"
		return a.Del(ctx, kind, args[1], permanent)
	default:
		return fmt.Errorf("unknown command %q, try help", cmd)
	}
}
