// Package domain models the SAF-T PT audit file and its mapping from
// stored fiscal documents.
package domain

import (
	"encoding/xml"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	billingdomain "github.com/mesapos/mesa-backend/internal/billing/domain"
	billingrepo "github.com/mesapos/mesa-backend/internal/billing/repository"
)

// FinalConsumerTaxID is the tax registry placeholder for documents
// issued without a customer tax number.
const FinalConsumerTaxID = "999999990"

const (
	auditFileVersion = "1.04_01"
	productID        = "MesaPOS"
	currencyCode     = "EUR"
)

// AuditFile is the SAF-T PT document root.
type AuditFile struct {
	XMLName         xml.Name        `xml:"urn:OECD:StandardAuditFile-Tax:PT_1.04_01 AuditFile"`
	Header          Header          `xml:"Header"`
	MasterFiles     MasterFiles     `xml:"MasterFiles"`
	SourceDocuments SourceDocuments `xml:"SourceDocuments"`
}

// Header carries the exporting entity and the covered period.
type Header struct {
	AuditFileVersion string `xml:"AuditFileVersion"`
	CompanyID        string `xml:"CompanyID"`
	CompanyName      string `xml:"CompanyName"`
	FiscalYear       int    `xml:"FiscalYear"`
	StartDate        string `xml:"StartDate"`
	EndDate          string `xml:"EndDate"`
	CurrencyCode     string `xml:"CurrencyCode"`
	DateCreated      string `xml:"DateCreated"`
	ProductID        string `xml:"ProductID"`
	ProductVersion   string `xml:"ProductVersion"`
}

// MasterFiles lists the customers the period's documents reference.
type MasterFiles struct {
	Customers []Customer `xml:"Customer"`
}

// Customer is one tax registry entry. Documents without a customer tax
// number share the final-consumer entry.
type Customer struct {
	CustomerID    string `xml:"CustomerID"`
	CustomerTaxID string `xml:"CustomerTaxID"`
	CompanyName   string `xml:"CompanyName"`
}

// SourceDocuments wraps the invoice section.
type SourceDocuments struct {
	SalesInvoices SalesInvoices `xml:"SalesInvoices"`
}

// SalesInvoices lists the period's documents with control totals.
type SalesInvoices struct {
	NumberOfEntries int       `xml:"NumberOfEntries"`
	TotalCredit     string    `xml:"TotalCredit"`
	Invoices        []Invoice `xml:"Invoice"`
}

// Invoice is one fiscal document entry.
type Invoice struct {
	InvoiceNo      string         `xml:"InvoiceNo"`
	DocumentStatus DocumentStatus `xml:"DocumentStatus"`
	InvoiceDate    string         `xml:"InvoiceDate"`
	InvoiceType    string         `xml:"InvoiceType"`
	CustomerTaxID  string         `xml:"CustomerTaxID"`
	DocumentTotals DocumentTotals `xml:"DocumentTotals"`
}

// DocumentStatus marks a document normal (N) or annulled (A).
type DocumentStatus struct {
	InvoiceStatus     string `xml:"InvoiceStatus"`
	InvoiceStatusDate string `xml:"InvoiceStatusDate"`
}

// DocumentTotals carries the document's gross amount.
type DocumentTotals struct {
	GrossTotal string `xml:"GrossTotal"`
}

// invoiceType maps stored document types onto SAF-T PT type codes.
func invoiceType(documentType string) string {
	switch documentType {
	case billingdomain.DocInvoice:
		return "FT"
	case billingdomain.DocCreditNote:
		return "NC"
	default:
		return "FS"
	}
}

// invoiceNo renders the official document reference: type code, series
// (the site), and the gap-free number.
func invoiceNo(d *billingrepo.FiscalDocument) string {
	series := d.SiteID
	if len(series) > 8 {
		series = series[:8]
	}
	return fmt.Sprintf("%s %s/%d", invoiceType(d.DocumentType), series, d.DocumentNumber)
}

// Build assembles the audit file for one tenant over [from, to).
func Build(companyID, companyName string, from, to, generatedAt time.Time, docs []billingrepo.FiscalDocument) *AuditFile {
	invoices := make([]Invoice, 0, len(docs))
	total := decimal.Zero
	customers := []Customer{}
	seen := map[string]bool{}
	for i := range docs {
		d := &docs[i]

		status := "N"
		if d.Voided {
			status = "A"
		}
		taxID := FinalConsumerTaxID
		if d.CustomerTaxID != nil {
			taxID = *d.CustomerTaxID
		}
		if !seen[taxID] {
			seen[taxID] = true
			name := "Desconhecido"
			if taxID == FinalConsumerTaxID {
				name = "Consumidor final"
			}
			customers = append(customers, Customer{
				CustomerID:    taxID,
				CustomerTaxID: taxID,
				CompanyName:   name,
			})
		}
		if !d.Voided {
			total = total.Add(d.TotalAmount)
		}

		invoices = append(invoices, Invoice{
			InvoiceNo: invoiceNo(d),
			DocumentStatus: DocumentStatus{
				InvoiceStatus:     status,
				InvoiceStatusDate: d.IssuedAt.UTC().Format(time.RFC3339),
			},
			InvoiceDate:    d.IssuedAt.UTC().Format("2006-01-02"),
			InvoiceType:    invoiceType(d.DocumentType),
			CustomerTaxID:  taxID,
			DocumentTotals: DocumentTotals{GrossTotal: d.TotalAmount.StringFixed(2)},
		})
	}

	return &AuditFile{
		Header: Header{
			AuditFileVersion: auditFileVersion,
			CompanyID:        companyID,
			CompanyName:      companyName,
			FiscalYear:       from.Year(),
			StartDate:        from.Format("2006-01-02"),
			EndDate:          to.AddDate(0, 0, -1).Format("2006-01-02"),
			CurrencyCode:     currencyCode,
			DateCreated:      generatedAt.UTC().Format("2006-01-02"),
			ProductID:        productID,
			ProductVersion:   "1.0",
		},
		MasterFiles: MasterFiles{Customers: customers},
		SourceDocuments: SourceDocuments{
			SalesInvoices: SalesInvoices{
				NumberOfEntries: len(invoices),
				TotalCredit:     total.StringFixed(2),
				Invoices:        invoices,
			},
		},
	}
}

// Encode renders the audit file as an XML document with declaration.
func (a *AuditFile) Encode() ([]byte, error) {
	body, err := xml.MarshalIndent(a, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}

// Decode parses a previously generated audit file.
func Decode(data []byte) (*AuditFile, error) {
	var a AuditFile
	if err := xml.Unmarshal(data, &a); err != nil {
		return nil, err
	}
	return &a, nil
}
