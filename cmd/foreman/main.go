package main

import "github.com/vietddude/foreman/internal/cli"

func main() {
	cli.Execute()
}
