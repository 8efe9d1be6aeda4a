//go:build !linux
// +build !linux

package socket

import (
	"io"
	"net"
	"os"
)

// SendFile copies count bytes of file starting at offset directly to
// conn. On platforms without a kernel zero-copy path this is plain
// io.Copy over an io.SectionReader — correct, just not zero-copy — so
// callers can use the same signature everywhere regardless of platform.
func SendFile(conn net.Conn, file *os.File, offset int64, count int64) (written int64, err error) {
	section := io.NewSectionReader(file, offset, count)
	return io.Copy(conn, section)
}

// SendFileAll sends file in its entirety, from offset 0 through the size
// reported by Stat.
func SendFileAll(conn net.Conn, file *os.File) (written int64, err error) {
	info, err := file.Stat()
	if err != nil {
		return 0, err
	}
	return SendFile(conn, file, 0, info.Size())
}

// SendFileRange sends the inclusive byte range [start, end] of file.
func SendFileRange(conn net.Conn, file *os.File, start, end int64) (written int64, err error) {
	if end < start {
		return 0, io.EOF
	}
	return SendFile(conn, file, start, end-start+1)
}

// CanUseSendFile reports whether conn supports a kernel zero-copy send
// path. Always false here: this file only builds where the Linux
// sendfile implementation does not apply.
func CanUseSendFile(conn net.Conn) bool {
	return false
}
