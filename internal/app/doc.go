// Package app wires application dependencies for the CLI.
//
// It loads Config from config.yaml in the home directory and PRIVMSG_*
// environment variables, then builds the stores, directory client, key store,
// mixnet client and messaging services, exposing them via the Wire struct for
// commands to use.
package app
