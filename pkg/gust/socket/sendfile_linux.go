//go:build linux
// +build linux

package socket

import (
	"io"
	"net"
	"os"
	"syscall"
)

// maxSendfileChunk bounds a single sendfile(2) call; the syscall caps
// transfers around 2GB, so a margin below that keeps every call in
// range regardless of how large count is.
const maxSendfileChunk = 1 << 30

// SendFile transmits count bytes of file starting at offset directly
// through the kernel via sendfile(2), skipping the userspace copy
// io.Copy would otherwise do. Falls back to io.Copy whenever sendfile
// isn't applicable (non-TCP conn) or fails outright.
func SendFile(conn net.Conn, file *os.File, offset int64, count int64) (written int64, err error) {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return copyFallback(conn, file, offset, count)
	}

	rawConn, err := tcpConn.SyscallConn()
	if err != nil {
		return copyFallback(conn, file, offset, count)
	}

	srcFd := int(file.Fd())
	var totalWritten int64
	var sendfileErr error

	ctrlErr := rawConn.Write(func(dstFd uintptr) bool {
		curOffset := offset
		remaining := count

		for remaining > 0 {
			chunk := remaining
			if chunk > maxSendfileChunk {
				chunk = maxSendfileChunk
			}

			n, serr := syscall.Sendfile(int(dstFd), srcFd, &curOffset, int(chunk))
			if serr != nil {
				if serr == syscall.EAGAIN || serr == syscall.EINTR {
					continue
				}
				sendfileErr = serr
				return false
			}
			if n == 0 {
				break
			}

			totalWritten += int64(n)
			remaining -= int64(n)
		}

		return true
	})

	if ctrlErr != nil {
		return copyFallback(conn, file, offset, count)
	}

	if sendfileErr != nil {
		if totalWritten > 0 {
			remaining := count - totalWritten
			if remaining > 0 {
				n, err := io.Copy(conn, io.NewSectionReader(file, offset+totalWritten, remaining))
				totalWritten += n
				if err != nil {
					return totalWritten, err
				}
			}
			return totalWritten, nil
		}
		return copyFallback(conn, file, offset, count)
	}

	return totalWritten, nil
}

func copyFallback(conn net.Conn, file *os.File, offset, count int64) (int64, error) {
	return io.Copy(conn, io.NewSectionReader(file, offset, count))
}

// SendFileAll sends file in its entirety via SendFile.
func SendFileAll(conn net.Conn, file *os.File) (written int64, err error) {
	info, err := file.Stat()
	if err != nil {
		return 0, err
	}
	return SendFile(conn, file, 0, info.Size())
}

// SendFileRange sends the inclusive byte range [start, end] of file,
// the shape an HTTP Range request needs.
func SendFileRange(conn net.Conn, file *os.File, start, end int64) (written int64, err error) {
	if end < start {
		return 0, io.EOF
	}
	return SendFile(conn, file, start, end-start+1)
}

// CanUseSendFile reports whether conn is a TCP connection sendfile can
// target.
func CanUseSendFile(conn net.Conn) bool {
	_, ok := conn.(*net.TCPConn)
	return ok
}
