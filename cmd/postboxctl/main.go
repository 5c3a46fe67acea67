package main

import (
	"log"

	"postbox/cmd/postboxctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
