package ticket

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"
	"unicode/utf8"

	"github.com/appetiteclub/comanda/internal/backend"
	"github.com/appetiteclub/comanda/internal/kitchen"
	"github.com/shopspring/decimal"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

// Document kinds.
const (
	KindKitchen = "kitchen"
	KindInvoice = "invoice"
)

// Document is a rendered fixed-width ticket ready for a printer.
type Document struct {
	Kind  string `json:"kind"`
	Name  string `json:"name"`
	Body  string `json:"body"`
	QR    string `json:"qr,omitempty"`
	Width int    `json:"width"`
}

// KitchenTicket is the input for a kitchen batch ticket. The ticket is
// built from the confirmed batch alone, so a reprint matches the original.
type KitchenTicket struct {
	OrderNumber string
	TableLabel  string
	Batch       kitchen.Batch
}

// Renderer renders documents for one layout.
type Renderer struct {
	layout Layout
	tmpl   *template.Template
}

func NewRenderer(layout Layout) (*Renderer, error) {
	if layout.Width <= 0 {
		layout.Width = DefaultWidth
	}
	r := &Renderer{layout: layout}

	tmpl, err := template.New("ticket").Funcs(r.funcs()).ParseFS(templatesFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse ticket templates: %w", err)
	}
	r.tmpl = tmpl
	return r, nil
}

func (r *Renderer) Layout() Layout {
	return r.layout
}

// RenderKitchen renders the ticket for a confirmed batch.
func (r *Renderer) RenderKitchen(t KitchenTicket) (*Document, error) {
	sent := "--/-- --:--"
	if t.Batch.SentAt != nil {
		sent = t.Batch.SentAt.Format("02/01 15:04")
	}

	data := struct {
		Layout      Layout
		Destination string
		OrderNumber string
		Batch       kitchen.Batch
		Sent        string
	}{
		Layout:      r.layout,
		Destination: DestinationLabel(t.TableLabel),
		OrderNumber: t.OrderNumber,
		Batch:       t.Batch,
		Sent:        sent,
	}

	body, err := r.execute("kitchen.tmpl", data)
	if err != nil {
		return nil, err
	}
	return &Document{
		Kind:  KindKitchen,
		Name:  FileName(fmt.Sprintf("comanda-%s-b%d", t.OrderNumber, t.Batch.Number)),
		Body:  body,
		Width: r.layout.Width,
	}, nil
}

// RenderInvoice renders an invoice. A nil invoice renders nothing.
func (r *Renderer) RenderInvoice(inv *backend.Invoice) (*Document, error) {
	if inv == nil {
		return nil, nil
	}

	issuer := inv.IssuerTaxID
	if issuer == "" {
		issuer = r.layout.TaxID
	}

	data := struct {
		Layout      Layout
		Destination string
		IssuerTaxID string
		Invoice     *backend.Invoice
	}{
		Layout:      r.layout,
		Destination: DestinationLabel(inv.TableLabel),
		IssuerTaxID: issuer,
		Invoice:     inv,
	}

	body, err := r.execute("invoice.tmpl", data)
	if err != nil {
		return nil, err
	}
	number := inv.Number
	if number == "" {
		number = inv.OrderNumber
	}
	return &Document{
		Kind:  KindInvoice,
		Name:  FileName("invoice-" + number),
		Body:  body,
		QR:    inv.QRPayload,
		Width: r.layout.Width,
	}, nil
}

func (r *Renderer) execute(name string, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " ")
	}
	return strings.Join(lines, "\n") + "\n", nil
}

func (r *Renderer) funcs() template.FuncMap {
	width := r.layout.Width
	if width <= 0 {
		width = DefaultWidth
	}

	return template.FuncMap{
		"rule": func(ch string) string {
			return strings.Repeat(ch, width)
		},
		"center": func(s string) string {
			return center(s, width)
		},
		"columns": func(left, right string) string {
			return columns(left, right, width)
		},
		"wrap": func(s string) string {
			return strings.Join(wrap(s, width), "\n")
		},
		"item": func(qty int, name string) string {
			return hanging(fmt.Sprintf("%2dx ", qty), name, width)
		},
		"note": func(s string) string {
			return hanging("    * ", s, width)
		},
		"line": func(qty int, desc string, amount decimal.Decimal) string {
			right := money(amount)
			prefix := fmt.Sprintf("%dx ", qty)
			avail := width - utf8.RuneCountInString(right) - 1
			parts := wrap(prefix+desc, avail)
			if len(parts) == 0 {
				parts = []string{prefix}
			}
			parts[0] = columns(parts[0], right, width)
			return strings.Join(parts, "\n")
		},
		"money":   money,
		"percent": percent,
	}
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// percent renders a tax rate given either as a fraction or as a percentage.
func percent(rate decimal.Decimal) string {
	if rate.LessThanOrEqual(decimal.NewFromInt(1)) {
		rate = rate.Mul(decimal.NewFromInt(100))
	}
	return rate.String()
}

func center(s string, width int) string {
	s = truncate(s, width)
	pad := (width - utf8.RuneCountInString(s)) / 2
	return strings.Repeat(" ", pad) + s
}

func columns(left, right string, width int) string {
	right = truncate(right, width)
	room := width - utf8.RuneCountInString(right) - 1
	if room < 0 {
		room = 0
	}
	left = truncate(left, room)
	gap := width - utf8.RuneCountInString(left) - utf8.RuneCountInString(right)
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right
}

// hanging wraps s after prefix and indents continuation lines under it.
func hanging(prefix, s string, width int) string {
	indent := utf8.RuneCountInString(prefix)
	parts := wrap(s, width-indent)
	if len(parts) == 0 {
		return prefix
	}
	out := make([]string, len(parts))
	for i, p := range parts {
		if i == 0 {
			out[i] = prefix + p
			continue
		}
		out[i] = strings.Repeat(" ", indent) + p
	}
	return strings.Join(out, "\n")
}

func truncate(s string, width int) string {
	if utf8.RuneCountInString(s) <= width {
		return s
	}
	return string([]rune(s)[:width])
}

// wrap breaks s into lines of at most width runes, splitting long words.
func wrap(s string, width int) []string {
	if width < 1 {
		width = 1
	}

	var lines []string
	var cur []rune
	for _, word := range strings.Fields(s) {
		w := []rune(word)
		for len(w) > width {
			if len(cur) > 0 {
				lines = append(lines, string(cur))
				cur = nil
			}
			lines = append(lines, string(w[:width]))
			w = w[width:]
		}
		switch {
		case len(cur) == 0:
			cur = w
		case len(cur)+1+len(w) <= width:
			cur = append(append(cur, ' '), w...)
		default:
			lines = append(lines, string(cur))
			cur = w
		}
	}
	if len(cur) > 0 {
		lines = append(lines, string(cur))
	}
	return lines
}
