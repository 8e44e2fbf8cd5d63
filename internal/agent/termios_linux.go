//go:build linux

package agent

import (
	"os"

	"golang.org/x/sys/unix"
)

func disableEcho(tty *os.File) error {
	fd := int(tty.Fd())
	termios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return err
	}
	termios.Lflag &^= unix.ECHO | unix.ECHONL
	return unix.IoctlSetTermios(fd, unix.TCSETS, termios)
}
