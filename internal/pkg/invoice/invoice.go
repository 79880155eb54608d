// Package invoice renders purchase-proof invoices to PDF attachments.
package invoice

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	wkhtmltopdf "github.com/SebastiaanKlippert/go-wkhtmltopdf"
	"github.com/gofiber/template/html/v2"

	"github.com/moncompte-mobilite/mcm-api/app/models"
	"github.com/moncompte-mobilite/mcm-api/internal/pkg/storage"
)

// Generated invoice PDFs carry this proof type in the attachment index.
const ProofTypeInvoice = "invoice"

var paris = func() *time.Location {
	loc, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		return time.UTC
	}
	return loc
}()

// Renderer turns Invoice records into PDF files through the invoice HTML
// template.
type Renderer struct {
	engine *html.Engine
}

// NewRenderer loads the view templates from dir (expects invoice.html).
func NewRenderer(dir string) (*Renderer, error) {
	engine := html.New(dir, ".html")
	if err := engine.Load(); err != nil {
		return nil, fmt.Errorf("invoice: load templates: %w", err)
	}
	return &Renderer{engine: engine}, nil
}

// GeneratePDFInvoices renders each invoice and returns the resulting PDF
// files in input order.
func (r *Renderer) GeneratePDFInvoices(invoices []models.Invoice) ([]storage.File, error) {
	files := make([]storage.File, 0, len(invoices))
	for _, inv := range invoices {
		var page bytes.Buffer
		err := r.engine.Render(&page, "invoice", map[string]interface{}{
			"Invoice":      inv,
			"PurchaseDate": inv.Transaction.PurchaseDate.In(paris).Format("02/01/2006"),
		})
		if err != nil {
			return nil, fmt.Errorf("invoice: render template: %w", err)
		}

		pdf, err := htmlToPDF(page.Bytes())
		if err != nil {
			return nil, err
		}

		files = append(files, storage.File{
			Name:      Filename(inv),
			Body:      pdf,
			MimeType:  "application/pdf",
			ProofType: ProofTypeInvoice,
		})
	}
	return files, nil
}

func htmlToPDF(page []byte) ([]byte, error) {
	generator, err := wkhtmltopdf.NewPDFGenerator()
	if err != nil {
		return nil, fmt.Errorf("invoice: init pdf generator: %w", err)
	}
	generator.AddPage(wkhtmltopdf.NewPageReader(bytes.NewReader(page)))
	if err := generator.Create(); err != nil {
		return nil, fmt.Errorf("invoice: convert to pdf: %w", err)
	}
	return generator.Bytes(), nil
}

// Filename derives the attachment name of a generated invoice:
// <purchaseDate dd-MM-yyyy>_<productName>_<customerSurname>_<customerName>.pdf
// with every space replaced by an underscore.
func Filename(inv models.Invoice) string {
	productName := ""
	if len(inv.Products) > 0 {
		productName = inv.Products[0].ProductName
	}
	purchaseDate := inv.Transaction.PurchaseDate.In(paris).Format("02-01-2006")
	name := fmt.Sprintf("%s_%s_%s_%s.pdf",
		purchaseDate, productName, inv.Customer.CustomerSurname, inv.Customer.CustomerName)
	return strings.ReplaceAll(name, " ", "_")
}

// FormatAttachments deduplicates attachment names within one upload batch.
// The second "proof.pdf" becomes "proof(1).pdf", the third "proof(2).pdf",
// keeping every stored object addressable.
func FormatAttachments(files []storage.File) []storage.File {
	namesCounter := make(map[string]int, len(files))
	out := make([]storage.File, len(files))
	for i, file := range files {
		base, extension := splitExtension(file.Name)
		name := base
		if count, ok := namesCounter[base]; ok {
			name = fmt.Sprintf("%s(%d)", base, count)
			namesCounter[base]++
		} else {
			namesCounter[base] = 1
		}
		if extension != "" {
			name += "." + extension
		}
		out[i] = file
		out[i].Name = name
	}
	return out
}

func splitExtension(name string) (string, string) {
	idx := strings.LastIndex(name, ".")
	if idx <= 0 || idx == len(name)-1 {
		return name, ""
	}
	return name[:idx], name[idx+1:]
}
