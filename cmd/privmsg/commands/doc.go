// Package commands defines the privmsg CLI and wires dependencies for subcommands.
//
// Commands
//
//   - init           Create and publish the local encryption key pair
//   - status         Bring up private messaging and print the privacy level
//   - send           Encrypt and send a message to a peer
//   - read           Fetch queued messages and print a conversation
//   - rotate         Replace the key pair, keeping old ones for decryption
//   - fingerprint    Print the public key fingerprint
//
// # Implementation
//
// The root command loads config.yaml and PRIVMSG_* overrides from the home
// directory, applies flags on top, and builds the dependency graph (stores,
// directory client, key store, mixnet client, services) before any subcommand
// runs. The graph is closed after the subcommand returns.
package commands
