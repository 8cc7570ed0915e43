package main

import (
	"fmt"
	"os"

	"github.com/eldtechnologies/brokenphone/internal/crypto"
)

// genkey prints a fresh node identity in .env form.
func main() {
	salt, err := crypto.NewSalt()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to generate salt: %v\n", err)
		os.Exit(1)
	}
	hashSalt, err := crypto.NewSalt()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to generate salt: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("NODE_UUID=%s\n", crypto.NewUUIDv7())
	fmt.Printf("NODE_SALT=%s\n", salt)
	fmt.Printf("HASH_SALT=%s\n", hashSalt)
}
