package main

import "github.com/rpitalk/rpitalk-gadget/cmd/rpitalk-gadget/cmd"

func main() {
	cmd.Execute()
}
