//go:build !windows

package tasks

const discardPath = "/dev/null"
