package main

import "github.com/frahmantamala/atelier/cmd"

func main() {
	cmd.Execute()
}
