// Package main implements the lazaret CLI.
package main

func main() {
	Execute()
}
