// Package mediasession publishes what is playing to the operating system
// and routes its transport buttons back to the player. On Linux this is
// the MPRIS D-Bus interface; elsewhere Noop is used.
package mediasession
