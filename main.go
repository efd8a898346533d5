package main

import "github.com/user/verify/cmd"

func main() {
	cmd.Execute()
}
