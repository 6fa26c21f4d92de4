package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/dmitrijs2005/invoicekeeper/internal/client/models"
)

// printer writes user-facing output. Colors are applied only when enabled.
type printer struct {
	out       io.Writer
	err       io.Writer
	useColors bool
}

func newPrinter(out, errOut io.Writer, useColors bool) *printer {
	return &printer{out: out, err: errOut, useColors: useColors}
}

// colorsEnabled honors NO_COLOR and dumb terminals on top of the tty
// detection done by fatih/color.
func colorsEnabled() bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	if os.Getenv("TERM") == "dumb" {
		return false
	}
	return !color.NoColor
}

func (p *printer) print(w io.Writer, c *color.Color, format string, args ...any) {
	if p.useColors && c != nil {
		c.Fprintf(w, format+"\n", args...)
		return
	}
	fmt.Fprintf(w, format+"\n", args...)
}

func (p *printer) Info(format string, args ...any) {
	p.print(p.out, nil, format, args...)
}

func (p *printer) Success(format string, args ...any) {
	p.print(p.out, color.New(color.FgGreen), format, args...)
}

func (p *printer) Warn(format string, args ...any) {
	p.print(p.err, color.New(color.FgYellow), format, args...)
}

func (p *printer) Error(format string, args ...any) {
	p.print(p.err, color.New(color.FgRed), format, args...)
}

func (p *printer) Title(title string) {
	if p.useColors {
		color.New(color.FgWhite, color.Bold).Fprintf(p.out, "\n%s\n", title)
	} else {
		fmt.Fprintf(p.out, "\n%s\n", title)
	}
	for range title {
		fmt.Fprint(p.out, "-")
	}
	fmt.Fprintln(p.out)
}

// status renders an invoice status, colored by how urgent it is.
func (p *printer) status(s models.InvoiceStatus) string {
	if !p.useColors {
		return string(s)
	}
	switch s {
	case models.InvoiceStatusPaid:
		return color.GreenString(string(s))
	case models.InvoiceStatusOverdue:
		return color.RedString(string(s))
	default:
		return color.YellowString(string(s))
	}
}

func (p *printer) newTable() *tablewriter.Table {
	return tablewriter.NewTable(p.out,
		tablewriter.WithConfig(tablewriter.Config{
			Row: tw.CellConfig{
				Formatting: tw.CellFormatting{AutoWrap: tw.WrapNone},
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			},
			Header: tw.CellConfig{
				Formatting: tw.CellFormatting{AutoFormat: tw.On},
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			},
		}),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Separators: tw.Separators{ShowHeader: tw.Off},
			},
		}),
	)
}

// Table renders rows under header.
func (p *printer) Table(header []string, rows [][]string) error {
	t := p.newTable()
	t.Header(header)
	if err := t.Bulk(rows); err != nil {
		return err
	}
	return t.Render()
}

// Invoices renders the invoice collection.
func (p *printer) Invoices(invoices []models.Invoice) error {
	if len(invoices) == 0 {
		p.Info("No invoices yet. Use 'add' to create one.")
		return nil
	}
	rows := make([][]string, 0, len(invoices))
	for _, inv := range invoices {
		rows = append(rows, []string{
			inv.InvoiceNumber,
			inv.Description,
			inv.Amount.USD(),
			inv.DueDate.String(),
			p.status(inv.Status),
		})
	}
	return p.Table([]string{"Number", "Description", "Amount", "Due date", "Status"}, rows)
}

// Invoice renders one invoice as a key/value table.
func (p *printer) Invoice(inv models.Invoice) error {
	created := ""
	if !inv.CreatedAt.IsZero() {
		created = inv.CreatedAt.Local().Format("2006-01-02 15:04")
	}
	return p.Table([]string{"Field", "Value"}, [][]string{
		{"Invoice number", inv.InvoiceNumber},
		{"Description", inv.Description},
		{"Amount", inv.Amount.USD()},
		{"Due date", inv.DueDate.String()},
		{"Status", p.status(inv.Status)},
		{"Created", created},
	})
}
