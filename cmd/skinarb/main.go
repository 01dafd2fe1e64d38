package main

import (
	"github.com/joho/godotenv"

	"skinarb/internal/cli"
)

func main() {
	// Optional .env for local runs; real deployments set the environment.
	_ = godotenv.Load()

	cli.Execute()
}
