package main

import "github.com/ValentinKolb/docKV/cmd"

func main() {
	cmd.Execute()
}
