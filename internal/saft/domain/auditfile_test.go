package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	billingrepo "github.com/mesapos/mesa-backend/internal/billing/repository"
	"github.com/mesapos/mesa-backend/pkg/testutil"
)

func sampleDocuments() []billingrepo.FiscalDocument {
	taxID := "123456789"
	issued := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)
	return []billingrepo.FiscalDocument{
		{
			ID:             "d1",
			TenantID:       testutil.TenantID,
			SiteID:         "a1b2c3d4-0000-0000-0000-000000000000",
			OrderID:        "o1",
			DocumentType:   "INVOICE",
			DocumentNumber: 1,
			CustomerTaxID:  &taxID,
			TotalAmount:    decimal.RequireFromString("17.30"),
			IssuedAt:       issued,
		},
		{
			ID:             "d2",
			TenantID:       testutil.TenantID,
			SiteID:         "a1b2c3d4-0000-0000-0000-000000000000",
			OrderID:        "o2",
			DocumentType:   "RECEIPT",
			DocumentNumber: 1,
			TotalAmount:    decimal.RequireFromString("8.00"),
			Voided:         true,
			IssuedAt:       issued.Add(time.Hour),
		},
	}
}

func buildSample() *AuditFile {
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	until := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	generated := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	return Build(testutil.TenantID, "Tasca do Zé", from, until, generated, sampleDocuments())
}

func TestBuild_MapsDocuments(t *testing.T) {
	file := buildSample()

	require.Len(t, file.SourceDocuments.SalesInvoices.Invoices, 2)
	assert.Equal(t, 2, file.SourceDocuments.SalesInvoices.NumberOfEntries)

	invoice := file.SourceDocuments.SalesInvoices.Invoices[0]
	assert.Equal(t, "FT a1b2c3d4/1", invoice.InvoiceNo)
	assert.Equal(t, "FT", invoice.InvoiceType)
	assert.Equal(t, "N", invoice.DocumentStatus.InvoiceStatus)
	assert.Equal(t, "123456789", invoice.CustomerTaxID)
	assert.Equal(t, "17.30", invoice.DocumentTotals.GrossTotal)
	assert.Equal(t, "2026-03-10", invoice.InvoiceDate)

	receipt := file.SourceDocuments.SalesInvoices.Invoices[1]
	assert.Equal(t, "FS", receipt.InvoiceType)
	assert.Equal(t, "A", receipt.DocumentStatus.InvoiceStatus)
	assert.Equal(t, FinalConsumerTaxID, receipt.CustomerTaxID)
}

func TestBuild_CollectsDistinctCustomers(t *testing.T) {
	file := buildSample()

	require.Len(t, file.MasterFiles.Customers, 2)
	assert.Equal(t, "123456789", file.MasterFiles.Customers[0].CustomerTaxID)
	assert.Equal(t, FinalConsumerTaxID, file.MasterFiles.Customers[1].CustomerTaxID)
	assert.Equal(t, "Consumidor final", file.MasterFiles.Customers[1].CompanyName)
}

func TestBuild_TotalExcludesVoided(t *testing.T) {
	file := buildSample()
	assert.Equal(t, "17.30", file.SourceDocuments.SalesInvoices.TotalCredit)
}

func TestBuild_HeaderPeriod(t *testing.T) {
	file := buildSample()
	assert.Equal(t, 2026, file.Header.FiscalYear)
	assert.Equal(t, "2026-03-01", file.Header.StartDate)
	assert.Equal(t, "2026-03-31", file.Header.EndDate)
	assert.Equal(t, "EUR", file.Header.CurrencyCode)
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	file := buildSample()

	first, err := file.Encode()
	require.NoError(t, err)
	assert.Contains(t, string(first), "urn:OECD:StandardAuditFile-Tax:PT_1.04_01")

	decoded, err := Decode(first)
	require.NoError(t, err)
	assert.Equal(t, file.Header, decoded.Header)
	assert.Equal(t, file.MasterFiles, decoded.MasterFiles)
	assert.Equal(t, file.SourceDocuments, decoded.SourceDocuments)

	second, err := decoded.Encode()
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestBuild_EmptyPeriod(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	until := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	file := Build(testutil.TenantID, "Tasca do Zé", from, until, until, nil)

	assert.Equal(t, 0, file.SourceDocuments.SalesInvoices.NumberOfEntries)
	assert.Equal(t, "0.00", file.SourceDocuments.SalesInvoices.TotalCredit)

	data, err := file.Encode()
	require.NoError(t, err)
	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Empty(t, decoded.SourceDocuments.SalesInvoices.Invoices)
}
