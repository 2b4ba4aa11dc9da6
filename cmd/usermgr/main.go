// Package main manages go-nzbidx API users: creation, password updates
// and API key listing.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"syscall"

	"golang.org/x/term"

	"github.com/go-while/go-nzbidx/internal/config"
	"github.com/go-while/go-nzbidx/internal/database"
)

var appVersion = "-unset-"

func main() {
	config.AppVersion = appVersion
	log.Printf("go-nzbidx User Manager (version: %s)", config.AppVersion)

	var (
		dataDir    = flag.String("data", "data", "Directory holding the database")
		createUser = flag.Bool("create", false, "Create a new user")
		updateUser = flag.Bool("update", false, "Update a user's password")
		checkUser  = flag.Bool("check", false, "Verify a user's password")
		username   = flag.String("username", "", "Username for user operations")
		admin      = flag.Bool("admin", false, "Grant admin permissions to user")
	)
	flag.Parse()

	if !*createUser && !*updateUser && !*checkUser {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\nOptions:\n", os.Args[0])
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -create -username john -admin\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -update -username john\n", os.Args[0])
		os.Exit(1)
	}
	if *username == "" {
		log.Fatalf("Error: -username is required")
	}

	mainConfig := config.NewDefaultConfig()
	mainConfig.DataDir = *dataDir
	mainConfig.NZBDir = *dataDir + "/nzb"
	mainConfig.MainDB = *dataDir + "/nzbidx.sq3"

	db, err := database.OpenDatabase(mainConfig)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Shutdown()

	switch {
	case *createUser:
		existing, err := db.GetUserByUsername(*username)
		if err != nil {
			log.Fatalf("Failed to check user: %v", err)
		}
		if existing != nil {
			log.Fatalf("User '%s' already exists", *username)
		}
		password := promptPassword()
		user, err := db.InsertUser(*username, password, *admin)
		if err != nil {
			log.Fatalf("Failed to create user: %v", err)
		}
		fmt.Printf("Created user '%s' (id=%d, admin=%v)\nAPI key: %s\n",
			user.Username, user.ID, user.IsAdmin, user.APIKey)

	case *updateUser:
		password := promptPassword()
		if err := db.UpdateUserPassword(*username, password); err != nil {
			log.Fatalf("Failed to update password: %v", err)
		}
		fmt.Printf("Updated password for '%s'\n", *username)

	case *checkUser:
		fmt.Print("Password: ")
		password, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			log.Fatalf("Failed to read password: %v", err)
		}
		ok, err := db.CheckUserPassword(*username, string(password))
		if err != nil {
			log.Fatalf("Failed to check password: %v", err)
		}
		if !ok {
			log.Fatalf("Password check FAILED for '%s'", *username)
		}
		fmt.Printf("Password OK for '%s'\n", *username)
	}
}

// promptPassword reads and confirms a password without echo.
func promptPassword() string {
	fmt.Print("Password: ")
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		log.Fatalf("Failed to read password: %v", err)
	}
	if len(password) < 8 {
		log.Fatalf("Password must be at least 8 characters")
	}
	if len(password) > 72 {
		// bcrypt truncates silently beyond 72 bytes
		log.Fatalf("Password must be at most 72 characters")
	}
	fmt.Print("Confirm password: ")
	confirm, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		log.Fatalf("Failed to read confirmation: %v", err)
	}
	if string(password) != string(confirm) {
		log.Fatalf("Passwords do not match")
	}
	return string(password)
}
