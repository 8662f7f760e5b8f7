package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/linesmerrill/laundry-api/config"
	"github.com/linesmerrill/laundry-api/databases"
	"github.com/linesmerrill/laundry-api/identity"
)

// Quick utility to set a user's password by email, clearing any pending reset
// Usage: go run scripts/set_user_password.go <email> <password>
func main() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: go run scripts/set_user_password.go <email> <password>")
		fmt.Println("Example: go run scripts/set_user_password.go someone@example.com 0i2rinbcp12yc31h")
		os.Exit(1)
	}

	conf, err := config.New()
	if err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := databases.NewClient(conf)
	if err != nil {
		fmt.Printf("Error creating client: %v\n", err)
		os.Exit(1)
	}
	if err := client.Connect(ctx); err != nil {
		fmt.Printf("Error connecting to mongo: %v\n", err)
		os.Exit(1)
	}
	defer client.Disconnect(ctx)

	users := databases.NewUserDirectory(databases.NewUserDatabase(databases.NewDatabase(conf, client)))

	email := identity.NormalizeEmail(os.Args[1])
	user, err := users.FindByEmail(ctx, email)
	if err != nil {
		fmt.Printf("Error finding %s: %v\n", email, err)
		os.Exit(1)
	}

	if err := users.UpdateCredential(ctx, user.ID.Hex(), os.Args[2]); err != nil {
		fmt.Printf("Error updating password: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Password updated for %s (%s)\n", email, user.ID.Hex())
}
