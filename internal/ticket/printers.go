package ticket

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

var ErrNoPrinter = errors.New("no printer configured")

// FilePrinter writes each job as <name>.txt into a spool directory.
type FilePrinter struct {
	dir string
}

func NewFilePrinter(dir string) *FilePrinter {
	return &FilePrinter{dir: dir}
}

func (p *FilePrinter) Print(ctx context.Context, doc *Document) error {
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return fmt.Errorf("create spool dir: %w", err)
	}

	body := doc.Body
	if doc.QR != "" {
		body += "\n[QR] " + doc.QR + "\n"
	}

	final := filepath.Join(p.dir, FileName(doc.Name)+".txt")
	tmp := final + ".part"
	if err := os.WriteFile(tmp, []byte(body), 0o644); err != nil {
		return fmt.Errorf("write spool file: %w", err)
	}
	return os.Rename(tmp, final)
}

// ESC/POS command bytes.
var (
	escInit     = []byte{0x1b, 0x40}
	escCodePage = []byte{0x1b, 0x74, 0x02}
	escCenter   = []byte{0x1b, 0x61, 0x01}
	escLeft     = []byte{0x1b, 0x61, 0x00}
	escFeedCut  = []byte{0x1b, 0x64, 0x04, 0x1d, 0x56, 0x42, 0x00}
)

// RawPrinter speaks ESC/POS to a thermal printer reached through open,
// which returns a fresh connection per job.
type RawPrinter struct {
	open func(ctx context.Context) (io.WriteCloser, error)
}

func NewRawPrinter(open func(ctx context.Context) (io.WriteCloser, error)) *RawPrinter {
	return &RawPrinter{open: open}
}

// NewDevicePrinter targets a network printer ("tcp://host:9100") or a
// device file such as /dev/usb/lp0.
func NewDevicePrinter(target string) *RawPrinter {
	if addr, ok := strings.CutPrefix(target, "tcp://"); ok {
		return NewRawPrinter(func(ctx context.Context) (io.WriteCloser, error) {
			d := net.Dialer{Timeout: 5 * time.Second}
			return d.DialContext(ctx, "tcp", addr)
		})
	}
	return NewRawPrinter(func(ctx context.Context) (io.WriteCloser, error) {
		return os.OpenFile(target, os.O_WRONLY|os.O_APPEND, 0)
	})
}

func (p *RawPrinter) Print(ctx context.Context, doc *Document) error {
	if p.open == nil {
		return ErrNoPrinter
	}

	payload, err := EncodeESCPOS(doc)
	if err != nil {
		return err
	}

	w, err := p.open(ctx)
	if err != nil {
		return fmt.Errorf("open printer: %w", err)
	}
	defer w.Close()

	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write printer: %w", err)
	}
	return nil
}

// EncodeESCPOS wraps doc in printer init, code page 850 text, an optional
// QR code and a feed-and-cut. Runes outside the code page are replaced.
func EncodeESCPOS(doc *Document) ([]byte, error) {
	text, err := encoding.ReplaceUnsupported(charmap.CodePage850.NewEncoder()).String(doc.Body)
	if err != nil {
		return nil, fmt.Errorf("encode ticket text: %w", err)
	}

	var buf bytes.Buffer
	buf.Write(escInit)
	buf.Write(escCodePage)
	buf.WriteString(text)
	if doc.QR != "" {
		buf.Write(escCenter)
		buf.Write(qrCommands(doc.QR))
		buf.Write(escLeft)
	}
	buf.Write(escFeedCut)
	return buf.Bytes(), nil
}

// qrCommands builds the GS ( k sequence for a model 2 QR code.
func qrCommands(data string) []byte {
	n := len(data) + 3
	var buf bytes.Buffer
	buf.Write([]byte{0x1d, 0x28, 0x6b, 0x04, 0x00, 0x31, 0x41, 0x32, 0x00})
	buf.Write([]byte{0x1d, 0x28, 0x6b, 0x03, 0x00, 0x31, 0x43, 0x06})
	buf.Write([]byte{0x1d, 0x28, 0x6b, 0x03, 0x00, 0x31, 0x45, 0x30})
	buf.Write([]byte{0x1d, 0x28, 0x6b, byte(n % 256), byte(n / 256), 0x31, 0x50, 0x30})
	buf.WriteString(data)
	buf.Write([]byte{0x1d, 0x28, 0x6b, 0x03, 0x00, 0x31, 0x51, 0x30})
	return buf.Bytes()
}
