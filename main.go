package main

import "github.com/ValentinKolb/lwtnt/cmd"

func main() {
	cmd.Execute()
}
