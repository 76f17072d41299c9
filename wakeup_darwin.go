//go:build darwin

package brood

import (
	"golang.org/x/sys/unix"
)

// createWakeFd creates a non-blocking self-pipe for wake-up
// notifications (Darwin). Returns the read end and the write end.
func createWakeFd() (int, int, error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return 0, 0, err
	}
	for _, fd := range fds {
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			unix.Close(fds[0])
			unix.Close(fds[1])
			return 0, 0, err
		}
	}
	return fds[0], fds[1], nil
}

func closeWakeFd(r, w int) {
	unix.Close(r)
	unix.Close(w)
}

// wakeFdSignal writes one byte to the pipe. EAGAIN means the pipe is
// full, so a wake is already pending.
func wakeFdSignal(w int) {
	buf := []byte{1}
	for {
		_, err := unix.Write(w, buf)
		if err != unix.EINTR {
			return
		}
	}
}

// wakeFdDrain empties the pipe so the next poll blocks again.
func wakeFdDrain(r int) {
	var buf [64]byte
	for {
		n, err := unix.Read(r, buf[:])
		if err == unix.EINTR {
			continue
		}
		if err != nil || n < len(buf) {
			return
		}
	}
}
