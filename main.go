package main

import "github.com/khanhnv2901/webrecon/cmd"

var execCmd = cmd.Execute

func main() {
	execCmd()
}
