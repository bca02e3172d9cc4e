//go:build windows

package app

// watchResetSignal is a no-op on Windows; the reset combo covers it.
func watchResetSignal(reset func()) {}
