package main

import "github.com/bernard-assistant/bernard/cmd/root"

func main() {
	root.Execute()
}
