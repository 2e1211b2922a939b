package main

import (
	"chalet/shared/apikey"
	"fmt"
	"log"
	"os"
)

const (
	argLength = 2
)

// Prints the value for APP_API_KEY_HASH.
func main() {
	if len(os.Args) < argLength {
		log.Fatal("API key is required")
	}

	hash, err := apikey.Hash(os.Args[1])
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(hash) //nolint:forbidigo
}
