package export

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/ledgerline/ledgerline/internal/reports"
	"github.com/ledgerline/ledgerline/internal/shared"
	"github.com/ledgerline/ledgerline/web"
)

const (
	balanceSheetTemplate = "balance_sheet.html"
	cashFlowTemplate     = "cash_flow.html"
)

// PDFClient exposes the subset of the Gotenberg client used by the renderer.
type PDFClient interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// Renderer turns statements into HTML and then PDF.
type Renderer struct {
	client    PDFClient
	templates map[string]*template.Template
}

type view struct {
	Title        string
	Subtitle     string
	Warnings     []string
	BalanceSheet *reports.BalanceSheetData
	CashFlow     *reports.CashFlowData
}

// NewRenderer parses the embedded statement templates. A nil client still
// allows HTML rendering.
func NewRenderer(client PDFClient) (*Renderer, error) {
	printer := message.NewPrinter(language.English)
	title := cases.Title(language.English)
	funcs := template.FuncMap{
		"money": func(d decimal.Decimal) string { return FormatMoney(printer, d) },
		"sum":   func(a, b decimal.Decimal) decimal.Decimal { return a.Add(b) },
		"title": func(a reports.Activity) string { return title.String(string(a)) },
	}
	r := &Renderer{client: client, templates: map[string]*template.Template{}}
	for _, name := range []string{balanceSheetTemplate, cashFlowTemplate} {
		tpl, err := template.New(name).Funcs(funcs).ParseFS(web.Templates,
			"templates/reports/statement_base.html", "templates/reports/"+name)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		r.templates[name] = tpl
	}
	return r, nil
}

// Ready reports whether PDF conversion is available.
func (r *Renderer) Ready() bool {
	return r != nil && r.client != nil
}

// BalanceSheetHTML renders the balance sheet document.
func (r *Renderer) BalanceSheetHTML(data reports.BalanceSheetData) (string, error) {
	v := view{
		Title:        "Balance Sheet",
		Subtitle:     fmt.Sprintf("Company %d · as of %s", data.CompanyID, data.AsOf.Format("02 Jan 2006")),
		BalanceSheet: &data,
	}
	if !data.Balanced {
		v.Warnings = append(v.Warnings, "Assets do not equal liabilities plus equity")
	}
	return r.execute(balanceSheetTemplate, v)
}

// CashFlowHTML renders the cash flow document.
func (r *Renderer) CashFlowHTML(data reports.CashFlowData) (string, error) {
	v := view{
		Title: "Cash Flow Statement",
		Subtitle: fmt.Sprintf("Company %d · %s to %s", data.CompanyID,
			data.StartDate.Format(shared.DateLayout), data.EndDate.Format(shared.DateLayout)),
		CashFlow: &data,
	}
	if !data.Reconciles {
		v.Warnings = append(v.Warnings, "Computed ending cash differs from the cash accounts")
	}
	return r.execute(cashFlowTemplate, v)
}

// BalanceSheetPDF renders the balance sheet to PDF.
func (r *Renderer) BalanceSheetPDF(ctx context.Context, data reports.BalanceSheetData) ([]byte, error) {
	html, err := r.BalanceSheetHTML(data)
	if err != nil {
		return nil, err
	}
	return r.pdf(ctx, html)
}

// CashFlowPDF renders the cash flow statement to PDF.
func (r *Renderer) CashFlowPDF(ctx context.Context, data reports.CashFlowData) ([]byte, error) {
	html, err := r.CashFlowHTML(data)
	if err != nil {
		return nil, err
	}
	return r.pdf(ctx, html)
}

func (r *Renderer) execute(name string, v view) (string, error) {
	buf := &bytes.Buffer{}
	if err := r.templates[name].ExecuteTemplate(buf, name, v); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

func (r *Renderer) pdf(ctx context.Context, html string) ([]byte, error) {
	if !r.Ready() {
		return nil, fmt.Errorf("pdf renderer not configured")
	}
	return r.client.RenderHTML(ctx, html)
}

// FormatMoney groups thousands and shows negatives in parentheses. The
// integer part is formatted separately so no precision is lost.
func FormatMoney(p *message.Printer, d decimal.Decimal) string {
	rounded := d.Round(2)
	whole, frac, _ := strings.Cut(rounded.Abs().StringFixed(2), ".")
	n, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return rounded.StringFixed(2)
	}
	out := p.Sprintf("%d", n) + "." + frac
	if rounded.IsNegative() {
		return "(" + out + ")"
	}
	return out
}
