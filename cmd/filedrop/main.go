// Package main provides the filedrop command-line tool.
//
// It runs the relay that hosts a channel and the send, receive and history
// commands used by participants.
package main

func main() {
	Execute()
}
