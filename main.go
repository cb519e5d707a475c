package main

import "github.com/dengzhu-hub/ivi-toolbox-pro/cmd"

func main() {
	cmd.Execute()
}
