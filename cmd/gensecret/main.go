package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/pflag"
)

const defaultSecretBytes = 32

// Print random hex secret suitable for JWT_SECRET_KEY
func main() {
	n := pflag.IntP("bytes", "b", defaultSecretBytes, "Secret length in bytes")
	pflag.Parse()

	secret, err := generate(*n)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error while generating secret key: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(secret)
}

func generate(n int) (string, error) {
	if n < 16 {
		return "", fmt.Errorf("secret must be at least 16 bytes, got %d", n)
	}

	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
