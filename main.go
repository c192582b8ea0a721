/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/Fjallroth/matesrace/cmd"

func main() {
	cmd.Execute()
}
