package main

import (
	"log"

	tool "github.com/resumekit/resumekit/internal/tools/loadgen"
)

func main() {
	if err := tool.NewRootCommand().Execute(); err != nil {
		log.Fatal(err)
	}
}
