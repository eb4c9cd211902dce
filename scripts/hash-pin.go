package main

import (
	"fmt"
	"os"
	"regexp"

	"golang.org/x/crypto/bcrypt"
)

var pinPattern = regexp.MustCompile(`^\d{4}$`)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: go run scripts/hash-pin.go <pin>\n")
		os.Exit(1)
	}

	pin := os.Args[1]
	if !pinPattern.MatchString(pin) {
		fmt.Fprintf(os.Stderr, "Error: pin must be exactly 4 digits\n")
		os.Exit(1)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(pin), 10)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(string(hash))
}
