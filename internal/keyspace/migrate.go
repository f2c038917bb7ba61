package keyspace

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sys/unix"

	"github.com/adred-codev/kvstore-core/internal/protocol"
	"github.com/adred-codev/kvstore-core/internal/reactor"
)

// IOError marks a Migrate failure that happened talking to the
// target — dialing, writing the request, or waiting for a reply never
// arrived — as distinct from an error reply the target actually sent
// back. Callers use errors.As to tell the two apart: an IOError gets
// an "IOERR " prefix, a bare error from a target reply (e.g. a
// RESTORE BUSYKEY failure) is surfaced exactly as the target sent it.
type IOError struct {
	err error
}

func (e *IOError) Error() string { return e.err.Error() }
func (e *IOError) Unwrap() error { return e.err }

// MigrateResult reports what a Migrate call did so the caller (the
// command dispatcher) can decide how to rewrite the command it
// propagates to replicas.
type MigrateResult struct {
	// NoKey is true when the source key didn't exist: MIGRATE still
	// reports success in this case, but there's nothing to propagate.
	NoKey bool
	// Rewrite is the command the source should propagate in place of
	// the original MIGRATE, e.g. ["DEL", key] on success.
	Rewrite []string
}

// Migrate dials host:port, sends SELECT dbid followed by RESTORE key
// ttlMillis <dumped payload>, and on a successful target reply deletes
// key locally. timeoutMillis bounds the dial and every subsequent
// read/write.
func Migrate(ks Keyspace, p Persistence, host string, port int, key string, dbid int, timeoutMillis int64) (MigrateResult, error) {
	o, ok := ks.Lookup(key)
	if !ok {
		return MigrateResult{NoKey: true}, nil
	}

	ttlMillis := int64(0)
	if expiry, hasTTL := ks.GetExpire(key); hasTTL {
		if d := time.Until(expiry); d > 0 {
			ttlMillis = d.Milliseconds()
		}
	}
	payload := Dump(o, p)

	fd, err := dialWithDeadline(host, port, timeoutMillis)
	if err != nil {
		return MigrateResult{}, &IOError{err}
	}
	defer unix.Close(fd)

	var req []byte
	req = appendCommand(req, "SELECT", strconv.Itoa(dbid))
	req = appendCommand(req, "RESTORE", key, strconv.FormatInt(ttlMillis, 10), string(payload))

	if err := writeAllWithDeadline(fd, req, timeoutMillis); err != nil {
		return MigrateResult{}, &IOError{err}
	}

	// readTwoReplies returns an IOError for a read/timeout failure and
	// a bare error for a target-sent reply (e.g. RESTORE BUSYKEY) —
	// the caller distinguishes the two with errors.As.
	if err := readTwoReplies(fd, timeoutMillis); err != nil {
		return MigrateResult{}, err
	}

	ks.Delete(key)
	return MigrateResult{Rewrite: []string{"DEL", key}}, nil
}

// appendCommand encodes args as a RESP multi-bulk command and appends
// it to buf.
func appendCommand(buf []byte, args ...string) []byte {
	buf = protocol.AppendMultiBulkHeader(buf, len(args))
	for _, a := range args {
		buf = protocol.AppendBulk(buf, []byte(a))
	}
	return buf
}

func dialWithDeadline(host string, port int, timeoutMillis int64) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, err
	}

	addr, err := resolveIPv4(host)
	if err != nil {
		unix.Close(fd)
		return -1, err
	}
	sa := &unix.SockaddrInet4{Port: port, Addr: addr}

	err = unix.Connect(fd, sa)
	if err != nil && err != unix.EINPROGRESS {
		unix.Close(fd)
		return -1, err
	}
	if err == unix.EINPROGRESS {
		ready, waitErr := reactor.Wait(fd, reactor.Writable, timeoutMillis)
		if waitErr != nil {
			unix.Close(fd)
			return -1, waitErr
		}
		if ready&reactor.Writable == 0 {
			unix.Close(fd)
			return -1, fmt.Errorf("connect to %s:%d timed out", host, port)
		}
		if errno, getErr := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR); getErr == nil && errno != 0 {
			unix.Close(fd)
			return -1, unix.Errno(errno)
		}
	}
	return fd, nil
}

func writeAllWithDeadline(fd int, buf []byte, timeoutMillis int64) error {
	for len(buf) > 0 {
		ready, err := reactor.Wait(fd, reactor.Writable, timeoutMillis)
		if err != nil {
			return err
		}
		if ready&reactor.Writable == 0 {
			return fmt.Errorf("write to migration target timed out")
		}
		n, err := unix.Write(fd, buf)
		if err != nil && err != unix.EAGAIN {
			return err
		}
		buf = buf[n:]
	}
	return nil
}

// readTwoReplies reads the SELECT and RESTORE replies off fd,
// surfacing the RESTORE target's error verbatim (stripped of its
// leading '-') if it failed. MIGRATE acts as a client here, so replies
// are read as raw status/error lines rather than through the
// command-request parser.
func readTwoReplies(fd int, timeoutMillis int64) error {
	var buf bytes.Buffer
	readBuf := make([]byte, 4096)
	var lastLine []byte

	for linesSeen := 0; linesSeen < 2; {
		if idx := bytes.Index(buf.Bytes(), []byte("\r\n")); idx >= 0 {
			line := append([]byte(nil), buf.Bytes()[:idx]...)
			rest := append([]byte(nil), buf.Bytes()[idx+2:]...)
			buf.Reset()
			buf.Write(rest)
			lastLine = line
			linesSeen++
			continue
		}

		ready, err := reactor.Wait(fd, reactor.Readable, timeoutMillis)
		if err != nil {
			return &IOError{err}
		}
		if ready&reactor.Readable == 0 {
			return &IOError{fmt.Errorf("read from migration target timed out")}
		}
		n, err := unix.Read(fd, readBuf)
		if err != nil && err != unix.EAGAIN {
			return &IOError{err}
		}
		if n > 0 {
			buf.Write(readBuf[:n])
		}
	}

	if len(lastLine) > 0 && lastLine[0] == '-' {
		return fmt.Errorf("%s", lastLine[1:])
	}
	return nil
}

func resolveIPv4(host string) (addr [4]byte, err error) {
	var a, b, c, d int
	n, scanErr := fmt.Sscanf(host, "%d.%d.%d.%d", &a, &b, &c, &d)
	if scanErr != nil || n != 4 {
		return addr, fmt.Errorf("keyspace: migrate requires a dotted IPv4 target, got %q", host)
	}
	addr[0], addr[1], addr[2], addr[3] = byte(a), byte(b), byte(c), byte(d)
	return addr, nil
}
