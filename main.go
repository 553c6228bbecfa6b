/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/ByAncort/JwtAuth/cmd"

func main() {
	cmd.Execute()
}
