package device

import (
	"fmt"
	"log"
	"net"
	"syscall"
	"time"

	"github.com/gosnmp/gosnmp"
	"golang.org/x/sys/unix"

	"github.com/awksedgreep/snmpherd/internal/metrics"
)

const readDeadline = 1 * time.Second

func (d *Device) bind() error {
	addr := net.UDPAddr{
		Port: d.port,
		IP:   net.ParseIP(d.host),
	}
	conn, err := net.ListenUDP("udp", &addr)
	if err != nil {
		return fmt.Errorf("device: listen on port %d: %w", d.port, err)
	}
	if err := setSocketOptions(conn); err != nil {
		conn.Close()
		return fmt.Errorf("device: socket options on port %d: %w", d.port, err)
	}
	d.conn = conn
	return nil
}

// setSocketOptions raises the kernel buffers so poll bursts against
// thousands of ports do not drop datagrams before we read them.
func setSocketOptions(conn *net.UDPConn) error {
	file, err := conn.File()
	if err != nil {
		return err
	}
	defer file.Close()

	fd := int(file.Fd())
	if err := syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_RCVBUF, 256*1024); err != nil {
		return fmt.Errorf("set SO_RCVBUF: %w", err)
	}
	if err := syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_SNDBUF, 256*1024); err != nil {
		return fmt.Errorf("set SO_SNDBUF: %w", err)
	}
	// SO_REUSEPORT needs Linux 3.9+; not fatal without it.
	if err := syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, int(unix.SO_REUSEPORT), 1); err != nil {
		log.Printf("device: SO_REUSEPORT not available: %v", err)
	}
	return nil
}

// readLoop pulls datagrams off the socket, decodes them and posts them to
// the actor. The 1s deadline keeps shutdown prompt.
func (d *Device) readLoop() {
	defer d.wg.Done()
	for {
		select {
		case <-d.done:
			return
		default:
		}

		d.conn.SetReadDeadline(time.Now().Add(readDeadline))
		buf := d.bufPool.Get().([]byte)
		n, addr, err := d.conn.ReadFromUDP(buf)
		if err != nil {
			d.bufPool.Put(buf)
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			if d.stopped.Load() {
				return
			}
			log.Printf("device %d: read: %v", d.port, err)
			continue
		}

		// The buffer goes back to the pool immediately; the decoded
		// packet owns copies of everything it needs.
		data := make([]byte, n)
		copy(data, buf[:n])
		d.bufPool.Put(buf)

		d.ingest(data, addr)
	}
}

func (d *Device) ingest(data []byte, addr *net.UDPAddr) {
	d.stats.packetsReceived.Add(1)

	version, ok := sniffVersion(data)
	if !ok {
		d.stats.decodeErrors.Add(1)
		metrics.RecordDecodeError()
		return
	}
	// v3 (and anything else unknown) is refused before the full parser
	// sees it; the sender just times out.
	if version != gosnmp.Version1 && version != gosnmp.Version2c {
		d.stats.versionRejects.Add(1)
		metrics.RecordVersionReject()
		return
	}

	pkt, err := d.dec.SnmpDecodePacket(data)
	if err != nil {
		d.stats.decodeErrors.Add(1)
		metrics.RecordDecodeError()
		return
	}

	select {
	case d.inbox <- message{packet: pkt, addr: addr}:
	default:
		d.stats.queueDrops.Add(1)
		metrics.RecordQueueDrop()
	}
}

// sniffVersion reads the SNMP version integer without a full decode. The
// message starts SEQUENCE { INTEGER version ... }, so only the outer
// length needs skipping.
func sniffVersion(b []byte) (gosnmp.SnmpVersion, bool) {
	if len(b) < 5 || b[0] != 0x30 {
		return 0, false
	}
	i := 1
	if b[i]&0x80 != 0 {
		n := int(b[i] & 0x7f)
		if n == 0 || n > 4 || i+1+n >= len(b) {
			return 0, false
		}
		i += 1 + n
	} else {
		i++
	}
	if i+2 >= len(b) || b[i] != 0x02 || b[i+1] != 0x01 {
		return 0, false
	}
	return gosnmp.SnmpVersion(b[i+2]), true
}
