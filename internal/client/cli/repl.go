package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn and printFn are test seams for REPL output.
var (
	printlnFn = fmt.Println
	printFn   = fmt.Print
)

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	ForgotPassword(ctx context.Context) error
	ResetPassword(ctx context.Context, link string) error
	Logout(ctx context.Context) error
	WhoAmI(ctx context.Context) error
	Dashboard(ctx context.Context) error
	List(ctx context.Context) error
	Show(ctx context.Context, invoiceNumber string) error
	Add(ctx context.Context) error
	Edit(ctx context.Context, invoiceNumber string) error
	Delete(ctx context.Context, invoiceNumber string) error
}

const (
	helpAnonymous = "Available commands: register, login, forgot, reset <link>, help, exit"
	helpSignedIn  = "Available commands: dashboard, (l)ist, show <number>, add, edit <number>, delete <number>, whoami, logout, help, exit"
)

// runREPL reads commands line by line from reader and dispatches them to a.
// The loop exits on EOF, on "exit" or "quit", or when ctx is done.
//
//	Not logged in:
//	  - register          create an account
//	  - login             authenticate
//	  - forgot            request a password reset link
//	  - reset <link>      set a new password from a reset link
//
//	Logged in:
//	  - dashboard         invoice statistics
//	  - list | l          list invoices
//	  - show <number>     invoice details
//	  - add               create an invoice
//	  - edit <number>     update an invoice
//	  - delete <number>   delete an invoice (asks for confirmation)
//	  - whoami            current user
//	  - logout            end the session
//
// Handler errors are not reported here; handlers print their own messages.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		if ctx.Err() != nil {
			return
		}
		printFn(fmt.Sprintf("ik %s> ", statusFn()))

		line, err := readLine(reader)
		if err != nil {
			printlnFn()
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn(helpSignedIn)
			} else {
				printlnFn(helpAnonymous)
			}

		case "register":
			_ = a.Register(ctx)

		case "login":
			_ = a.Login(ctx)

		case "forgot":
			_ = a.ForgotPassword(ctx)

		case "reset":
			if len(args) == 0 {
				printlnFn("Usage: reset <link>")
				continue
			}
			_ = a.ResetPassword(ctx, args[0])

		case "logout":
			_ = a.Logout(ctx)

		case "whoami":
			_ = a.WhoAmI(ctx)

		case "dashboard":
			_ = a.Dashboard(ctx)

		case "l", "list":
			_ = a.List(ctx)

		case "show", "edit", "delete":
			if len(args) == 0 {
				printlnFn(fmt.Sprintf("Usage: %s <invoice number>", cmd))
				continue
			}
			switch cmd {
			case "show":
				_ = a.Show(ctx, args[0])
			case "edit":
				_ = a.Edit(ctx, args[0])
			default:
				_ = a.Delete(ctx, args[0])
			}

		case "add":
			_ = a.Add(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}
