//go:build linux

package brood

import (
	"time"

	"golang.org/x/sys/unix"
)

// platformPoller is the epoll backend. The wake path uses an eventfd
// registered for read readiness alongside the task registrations.
type platformPoller struct {
	epfd  int
	wakeR int
	wakeW int
	buf   [128]unix.EpollEvent
}

func (p *platformPoller) init() error {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return err
	}
	wr, ww, err := createWakeFd()
	if err != nil {
		unix.Close(epfd)
		return err
	}
	ev := &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wr)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wr, ev); err != nil {
		unix.Close(epfd)
		closeWakeFd(wr, ww)
		return err
	}
	p.epfd = epfd
	p.wakeR = wr
	p.wakeW = ww
	return nil
}

func (p *platformPoller) close() {
	unix.Close(p.epfd)
	closeWakeFd(p.wakeR, p.wakeW)
}

func (p *platformPoller) arm(fd int, old, want uint8) error {
	if want == 0 {
		return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	}
	var events uint32
	if want&maskRead != 0 {
		events |= unix.EPOLLIN
	}
	if want&maskWrite != 0 {
		events |= unix.EPOLLOUT
	}
	op := unix.EPOLL_CTL_MOD
	if old == 0 {
		op = unix.EPOLL_CTL_ADD
	}
	ev := &unix.EpollEvent{Events: events, Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, op, fd, ev)
}

func (p *platformPoller) wait(timeout time.Duration) ([]readyEvent, error) {
	ms := -1
	if timeout >= 0 {
		// Round up so a short timeout cannot busy-loop.
		ms = int((timeout + time.Millisecond - 1) / time.Millisecond)
	}
	n, err := unix.EpollWait(p.epfd, p.buf[:], ms)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	events := make([]readyEvent, 0, n)
	for i := 0; i < n; i++ {
		e := &p.buf[i]
		fd := int(e.Fd)
		if fd == p.wakeR {
			events = append(events, readyEvent{fd: fd, wakeup: true})
			continue
		}
		errcond := e.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0
		events = append(events, readyEvent{
			fd:    fd,
			read:  e.Events&unix.EPOLLIN != 0 || errcond,
			write: e.Events&unix.EPOLLOUT != 0 || errcond,
		})
	}
	return events, nil
}

func (p *platformPoller) wake() { wakeFdSignal(p.wakeW) }

func (p *platformPoller) drainWake() { wakeFdDrain(p.wakeR) }
