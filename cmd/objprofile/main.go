package main

import "github.com/rekby/objprofile/cmd/objprofile/cmd"

func main() {
	cmd.Execute()
}
