// Command spectral is the operator CLI: it inspects the encounter store and
// work queue directly and drives moderation through the daemon's HTTP API.
package main
