package main

import "github.com/nextlevelbuilder/relaychat/cmd"

func main() {
	cmd.Execute()
}
