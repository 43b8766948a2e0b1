package main

import "github.com/AzielCF/az-postsync/cmd"

func main() {
	cmd.Execute()
}
