package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/eldtechnologies/brokenphone/internal/crypto"
)

// sign computes the hash a node with the given salt would put in its
// signature for a message, so a play's signature trail can be checked by hand.
func main() {
	salt := flag.String("salt", "", "Base64-encoded node salt (NODE_SALT)")
	algorithm := flag.String("alg", crypto.AlgorithmSHA512, "Hash algorithm (sha512, sha3-512, blake2b-512)")
	bodyFile := flag.String("body", "", "File containing the message (or use stdin)")
	flag.Parse()

	if *salt == "" {
		fmt.Fprintln(os.Stderr, "Usage: sign -salt <salt-base64> [-alg <algorithm>] [-body <file>]")
		fmt.Fprintln(os.Stderr, "  Reads the message from stdin if -body not specified")
		os.Exit(1)
	}

	hasher, err := crypto.NewHasher(*salt, *algorithm)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid hasher settings: %v\n", err)
		os.Exit(1)
	}

	// Read body
	var body []byte
	if *bodyFile != "" {
		body, err = os.ReadFile(*bodyFile)
	} else {
		body, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read body: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("hash:           %s\n", hasher.Sum(body))
	fmt.Printf("content length: %d\n", len(body))
}
