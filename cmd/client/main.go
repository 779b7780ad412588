// Package main is the NoteLedger command line client.
package main

func main() {
	Execute()
}
