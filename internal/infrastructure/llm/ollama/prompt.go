package ollama

import "fmt"

const maxSnippet = 6000

func buildInvoicePrompt(filename, mimeType, text string) string {
	snippet := text
	if len(snippet) > maxSnippet {
		snippet = snippet[:maxSnippet]
	}
	document := "(see attached image)"
	if snippet != "" {
		document = snippet
	}

	return fmt.Sprintf(`You are an accounts payable assistant classifying an email attachment.
Return strict JSON object with keys:
date (string, invoice date as YYYY-MM-DD), vendorName (string), invoiceNumber (string),
amount (string, grand total without currency symbol), invoiceStatus (one of "inflow", "outflow", "irrelevant", "unknown"),
documentType (string, e.g. "tax invoice", "bill", "receipt", "bank statement"), isFinancialDocument (boolean),
gst (string), tds (string), ot (string, other taxes), na (string, notes).
Use "outflow" for bills the company must pay and "inflow" for invoices the company issued.
Use empty strings for fields you cannot read. No markdown, no extra keys.

Filename: %s
Content type: %s

Document:
%s
`, filename, mimeType, document)
}
