package main

import (
	"log"

	"bondoracle/oracle"
)

func main() {
	if err := oracle.Main(); err != nil {
		log.Fatalf("bond-oracle: %v", err)
	}
}
