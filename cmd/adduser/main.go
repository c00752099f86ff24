// Command adduser creates an account in the SQLite store from the terminal.
//
//	adduser -name "Ann" -email ann@example.com
//
// The password is read twice without echo.
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"golang.org/x/term"

	"budget/internal/auth"
	"budget/internal/cli"
	"budget/internal/core"
	blog "budget/internal/log"
	"budget/internal/storage"
)

func main() {
	name := flag.String("name", "", "display name")
	email := flag.String("email", "", "login email")
	dbPath := flag.String("db", "", "SQLite database path (defaults to SQLITE_DB_PATH)")
	flag.Parse()

	cfg, logger, err := cli.Bootstrap(blog.ComponentAdmin)
	if err != nil {
		cli.Fatal(logger, "Startup failed", err)
	}
	if *dbPath == "" {
		*dbPath = cfg.SQLiteDBPath
	}
	if *name == "" || *email == "" {
		flag.Usage()
		os.Exit(2)
	}

	password, err := readPassword()
	if err != nil {
		cli.Fatal(logger, "Cannot read password", err)
	}

	repo, err := storage.NewSQLiteRepository(*dbPath)
	if err != nil {
		cli.Fatal(logger, "Failed to open SQLite repository", err)
	}
	defer repo.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	user, err := auth.NewService(repo, cfg.SessionTTL).Register(ctx, *name, *email, string(password))
	switch {
	case errors.Is(err, core.ErrDuplicateEmail):
		fmt.Fprintf(os.Stderr, "a user with email %s already exists\n", *email)
		repo.Close()
		os.Exit(1)
	case err != nil:
		repo.Close()
		cli.Fatal(logger, "Failed to create user", err)
	}

	fmt.Printf("created user %s (%s)\n", user.ID, user.Email)
}

func readPassword() ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, errors.New("stdin is not a terminal")
	}

	fmt.Fprint(os.Stderr, "Password: ")
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, err
	}

	fmt.Fprint(os.Stderr, "Repeat password: ")
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, err
	}

	if !bytes.Equal(first, second) {
		return nil, errors.New("passwords do not match")
	}
	return first, nil
}
