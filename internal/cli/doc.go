// Package cli wires the doctranslate commands: translate a single document from the
// terminal, or serve the HTTP job API.
package cli
