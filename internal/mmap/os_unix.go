//go:build unix

package mmap

import "golang.org/x/sys/unix"

func osMapAnon(size int) ([]byte, func([]byte) error, error) {
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, nil, err
	}
	return data, unix.Munmap, nil
}

func osAdvise(data []byte, a Advice) error {
	if len(data) == 0 {
		return nil
	}

	advice := unix.MADV_NORMAL
	switch a {
	case AdviceRandom:
		advice = unix.MADV_RANDOM
	case AdviceFree:
		advice = unix.MADV_DONTNEED
	}
	return unix.Madvise(data, advice)
}
