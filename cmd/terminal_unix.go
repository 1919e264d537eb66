//go:build !windows
// +build !windows

package cmd

import (
	"os"
	"strconv"
	"syscall"
	"unsafe"
)

// getTerminalSize returns terminal dimensions for Unix-like systems.
// COLUMNS/LINES win when both are set, then the TIOCGWINSZ ioctl on stdout.
func getTerminalSize() (int, int) {
	if cols := os.Getenv("COLUMNS"); cols != "" {
		if rows := os.Getenv("LINES"); rows != "" {
			if c, err := strconv.Atoi(cols); err == nil {
				if r, err := strconv.Atoi(rows); err == nil {
					return c, r
				}
			}
		}
	}

	type winsize struct {
		Row    uint16
		Col    uint16
		Xpixel uint16
		Ypixel uint16
	}

	ws := &winsize{}
	retCode, _, _ := syscall.Syscall(syscall.SYS_IOCTL,
		os.Stdout.Fd(),
		uintptr(syscall.TIOCGWINSZ),
		uintptr(unsafe.Pointer(ws)))
	if int(retCode) == -1 {
		return 0, 0
	}
	return int(ws.Col), int(ws.Row)
}
