package main

import "github.com/ValentinKolb/sqc/cmd"

func main() {
	cmd.Execute()
}
