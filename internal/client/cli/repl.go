package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	hasForm() bool
	New(ctx context.Context, args []string) error
	Set(ctx context.Context, args []string) error
	Fields(ctx context.Context) error
	Add(ctx context.Context, args []string) error
	AddFolder(ctx context.Context, args []string) error
	Drop(ctx context.Context, args []string) error
	List(ctx context.Context) error
	Tree(ctx context.Context) error
	Cancel(ctx context.Context, args []string) error
	Retry(ctx context.Context, args []string) error
	Remove(ctx context.Context, args []string) error
	RemoveFolder(ctx context.Context, args []string) error
	Wait(ctx context.Context) error
	Stored(ctx context.Context, args []string) error
	Quote(ctx context.Context, args []string) error
	Submit(ctx context.Context) error
	Show(ctx context.Context, args []string) error
}

const (
	helpNoForm = "Available commands: new, quote, show, stored, help, exit"
	helpForm   = "Available commands: new, set, fields, add, addfolder, drop, (l)ist, tree, cancel, retry, rm, rmdir, wait, stored, quote, submit, show, help, exit"
)

// runREPL reads one command per line from reader and dispatches it to a.
//
// The prompt shows the current status (from statusFn). Errors returned by
// commands are printed and the loop goes on. The loop exits on EOF or when
// the user types "exit" or "quit".
//
//	Without a form:
//	  - new <form-type>             start a form
//	  - new <service> <intent>      start a service request via the wizard
//	  - quote <type> <acres> [...]  price a project
//	  - show [<form-type>] <id>     read back a submission
//	  - stored <prefix>             list stored objects
//
//	With a form, additionally:
//	  - set <field> <value>         fill a field, e.g. set model.acres 3.5
//	  - fields                      print the form and its field names
//	  - add <file>...               attach files
//	  - addfolder <folder>          attach a folder with its structure
//	  - drop <file|folder>...       attach a mixed selection
//	  - list | l, tree              show the attachments
//	  - cancel | retry | rm <#|id>  act on one attachment
//	  - rmdir <folder>              remove a folder of attachments
//	  - wait                        wait for running uploads
//	  - submit                      send the form
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		printlnFn(fmt.Sprintf("intake%s> ", statusFn()))
		line, err := readLine(reader)
		if err != nil {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		var cerr error
		switch cmd {
		case "help":
			if a.hasForm() {
				printlnFn(helpForm)
			} else {
				printlnFn(helpNoForm)
			}
		case "new":
			cerr = a.New(ctx, args)
		case "set":
			cerr = a.Set(ctx, args)
		case "fields":
			cerr = a.Fields(ctx)
		case "add":
			cerr = a.Add(ctx, args)
		case "addfolder":
			cerr = a.AddFolder(ctx, args)
		case "drop":
			cerr = a.Drop(ctx, args)
		case "l", "list":
			cerr = a.List(ctx)
		case "tree":
			cerr = a.Tree(ctx)
		case "cancel":
			cerr = a.Cancel(ctx, args)
		case "retry":
			cerr = a.Retry(ctx, args)
		case "rm":
			cerr = a.Remove(ctx, args)
		case "rmdir":
			cerr = a.RemoveFolder(ctx, args)
		case "wait":
			cerr = a.Wait(ctx)
		case "stored":
			cerr = a.Stored(ctx, args)
		case "quote":
			cerr = a.Quote(ctx, args)
		case "submit":
			cerr = a.Submit(ctx)
		case "show":
			cerr = a.Show(ctx, args)
		case "exit", "quit":
			printlnFn("Bye!")
			return
		default:
			printlnFn("Unknown command:", cmd)
		}
		if cerr != nil {
			printlnFn("Error:", cerr)
		}
	}
}
