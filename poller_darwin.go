//go:build darwin

package brood

import (
	"time"

	"golang.org/x/sys/unix"
)

// platformPoller is the kqueue backend. The wake path uses a
// self-pipe whose read end carries a persistent EVFILT_READ filter.
type platformPoller struct {
	kq    int
	wakeR int
	wakeW int
	buf   [128]unix.Kevent_t
}

func (p *platformPoller) init() error {
	kq, err := unix.Kqueue()
	if err != nil {
		return err
	}
	unix.CloseOnExec(kq)
	wr, ww, err := createWakeFd()
	if err != nil {
		unix.Close(kq)
		return err
	}
	ev := unix.Kevent_t{
		Ident:  uint64(wr),
		Filter: unix.EVFILT_READ,
		Flags:  unix.EV_ADD,
	}
	if _, err := unix.Kevent(kq, []unix.Kevent_t{ev}, nil, nil); err != nil {
		unix.Close(kq)
		closeWakeFd(wr, ww)
		return err
	}
	p.kq = kq
	p.wakeR = wr
	p.wakeW = ww
	return nil
}

func (p *platformPoller) close() {
	unix.Close(p.kq)
	closeWakeFd(p.wakeR, p.wakeW)
}

func (p *platformPoller) arm(fd int, old, want uint8) error {
	var changes []unix.Kevent_t
	change := func(filter int16, add bool) {
		flags := uint16(unix.EV_DELETE)
		if add {
			flags = unix.EV_ADD
		}
		changes = append(changes, unix.Kevent_t{
			Ident:  uint64(fd),
			Filter: filter,
			Flags:  flags,
		})
	}
	if old&maskRead != want&maskRead {
		change(unix.EVFILT_READ, want&maskRead != 0)
	}
	if old&maskWrite != want&maskWrite {
		change(unix.EVFILT_WRITE, want&maskWrite != 0)
	}
	if len(changes) == 0 {
		return nil
	}
	if _, err := unix.Kevent(p.kq, changes, nil, nil); err != nil {
		// A delete may race a filter the kernel already dropped.
		if err == unix.ENOENT {
			return nil
		}
		return err
	}
	return nil
}

func (p *platformPoller) wait(timeout time.Duration) ([]readyEvent, error) {
	var ts *unix.Timespec
	if timeout >= 0 {
		t := unix.NsecToTimespec(timeout.Nanoseconds())
		ts = &t
	}
	n, err := unix.Kevent(p.kq, nil, p.buf[:], ts)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	events := make([]readyEvent, 0, n)
	for i := 0; i < n; i++ {
		e := &p.buf[i]
		fd := int(e.Ident)
		if fd == p.wakeR {
			events = append(events, readyEvent{fd: fd, wakeup: true})
			continue
		}
		errcond := e.Flags&(unix.EV_EOF|unix.EV_ERROR) != 0
		events = append(events, readyEvent{
			fd:    fd,
			read:  e.Filter == unix.EVFILT_READ || errcond,
			write: e.Filter == unix.EVFILT_WRITE || errcond,
		})
	}
	return events, nil
}

func (p *platformPoller) wake() { wakeFdSignal(p.wakeW) }

func (p *platformPoller) drainWake() { wakeFdDrain(p.wakeR) }
