// Package cmd provides the command-line interface for comicshare.
//
// # Available Commands
//
//   - serve: Serve the configured shares, reloading on configuration changes
//   - info: Describe a share served by a peer
//   - servers: List publicly announced servers
//   - config init|validate|show: Manage the configuration file
//   - version: Show version information
//
// # Command Examples
//
//	// Create a configuration
//	comicshare config init
//
//	// Serve on another port with a specific catalog
//	comicshare serve --port 9000 --catalog comics.jsonc
//
//	// Describe a peer's share
//	comicshare info https://comics.example.net:7612/library
//
// # Configuration Integration
//
// Commands respect configuration from multiple sources in order of precedence:
//
//  1. Command-line flags (highest priority)
//  2. Environment variables (COMICSHARE_*)
//  3. Configuration file (.comicshare.yml)
//  4. Default values (lowest priority)
package cmd
