package main

import (
	"log"

	"ticket-workflow/cmd"
)

func main() {
	if err := cmd.Start(); err != nil {
		log.Fatal(err)
	}
}
