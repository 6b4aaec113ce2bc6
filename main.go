/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "jeev/cmd"

func main() {
	cmd.Execute()
}
