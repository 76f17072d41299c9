//go:build linux

package brood

import (
	"encoding/binary"

	"golang.org/x/sys/unix"
)

// createWakeFd creates an eventfd for wake-up notifications (Linux).
// Returns the single eventfd as both read and write ends.
func createWakeFd() (int, int, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	return fd, fd, err
}

func closeWakeFd(r, w int) {
	unix.Close(r)
}

// wakeFdSignal bumps the eventfd counter. EAGAIN means the counter is
// already saturated, so a wake is pending and the poll will return.
func wakeFdSignal(w int) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	for {
		_, err := unix.Write(w, buf[:])
		if err != unix.EINTR {
			return
		}
	}
}

// wakeFdDrain resets the eventfd counter so the next poll blocks
// again.
func wakeFdDrain(r int) {
	var buf [8]byte
	for {
		_, err := unix.Read(r, buf[:])
		if err != unix.EINTR {
			return
		}
	}
}
