// Package mmap maps anonymous memory for arenas that live outside the Go
// heap. The garbage collector neither scans nor accounts for a Mapping;
// its pages go back to the operating system on Close.
//
// Unix uses mmap(2) and madvise(2). Windows uses VirtualAlloc, where only
// AdviceFree has an effect (MEM_RESET).
package mmap
