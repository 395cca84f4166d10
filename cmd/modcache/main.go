package main

import "github.com/aweris/modcache/cmd/modcache/cmd"

func main() {
	cmd.Execute()
}
