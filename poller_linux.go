//go:build linux

package corort

import (
	"golang.org/x/sys/unix"
)

// epollPoller wraps a Linux epoll instance in edge-triggered mode. It is
// the kernel-facing half of a [Reactor]; all interest-mask bookkeeping,
// coroutine resume semantics, and timer integration live in reactor.go.
type epollPoller struct {
	epfd     int
	eventBuf [256]unix.EpollEvent
}

func newEpollPoller() (*epollPoller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollPoller{epfd: fd}, nil
}

func (p *epollPoller) close() error {
	return unix.Close(p.epfd)
}

func (p *epollPoller) add(fd int, mask Interest) error {
	ev := unix.EpollEvent{Events: interestToEpoll(mask), Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (p *epollPoller) modify(fd int, mask Interest) error {
	ev := unix.EpollEvent{Events: interestToEpoll(mask), Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

func (p *epollPoller) del(fd int) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// wait blocks up to timeoutMS (or indefinitely if negative) for readiness
// on any registered descriptor, and returns the fds that became ready
// together with the readiness bits observed for each, up to len(eventBuf)
// events per call (spec's 256-event cap).
func (p *epollPoller) wait(timeoutMS int) ([]int, []Interest, error) {
	n, err := unix.EpollWait(p.epfd, p.eventBuf[:], timeoutMS)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil, nil
		}
		return nil, nil, err
	}

	fds := make([]int, n)
	masks := make([]Interest, n)
	for i := 0; i < n; i++ {
		fds[i] = int(p.eventBuf[i].Fd)
		masks[i] = epollToInterest(p.eventBuf[i].Events)
	}
	return fds, masks, nil
}

func interestToEpoll(mask Interest) uint32 {
	var ev uint32
	if mask&InterestRead != 0 {
		ev |= unix.EPOLLIN
	}
	if mask&InterestWrite != 0 {
		ev |= unix.EPOLLOUT
	}
	// Edge-triggered per spec: handlers must drain the descriptor until
	// EAGAIN, because no further notification arrives otherwise.
	ev |= unix.EPOLLET
	return ev
}

func epollToInterest(ev uint32) Interest {
	var mask Interest
	if ev&(unix.EPOLLIN|unix.EPOLLERR|unix.EPOLLHUP) != 0 {
		mask |= InterestRead
	}
	if ev&(unix.EPOLLOUT|unix.EPOLLERR|unix.EPOLLHUP) != 0 {
		mask |= InterestWrite
	}
	return mask
}
