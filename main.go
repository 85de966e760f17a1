package main

import (
	"os"

	log "github.com/sirupsen/logrus"

	"feedhaven/cmd"
)

func main() {
	if err := cmd.App().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
