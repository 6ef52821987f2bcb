// Prints a fresh hex-encoded signing key for the SECRET_KEY setting.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
)

// 256 bits, which is as much as HS256 can use
const keyLen = 32

func main() {
	key := make([]byte, keyLen)
	if _, err := rand.Read(key); err != nil {
		fmt.Fprintf(os.Stderr, "can't read random bytes: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(hex.EncodeToString(key))
}
