package main

import "github.com/naka-gawa/prdash/cmd"

func main() {
	cmd.Execute()
}
