package domain

// Rules are the keyword lists the classification adapter and intake use for
// their rule-based decisions. They can be overridden from a rules file.
type Rules struct {
	NonInvoiceFilenamePatterns []string `yaml:"non_invoice_filename_patterns"`
	InvoiceDocumentTypes       []string `yaml:"invoice_document_types"`
	InflowKeywords             []string `yaml:"inflow_keywords"`
	OutflowKeywords            []string `yaml:"outflow_keywords"`
	IrrelevantKeywords         []string `yaml:"irrelevant_keywords"`
	FilenameStopwords          []string `yaml:"filename_stopwords"`
	PlaceholderPatterns        []string `yaml:"placeholder_patterns"`
}

func DefaultRules() Rules {
	return Rules{
		NonInvoiceFilenamePatterns: []string{
			"statement", "report", "contract", "agreement", "proposal", "quotation",
			"brochure", "newsletter", "resume", "cv", "presentation", "catalog",
			"policy", "terms", "manual", "payslip", "salary",
		},
		InvoiceDocumentTypes: []string{
			"invoice", "bill", "tax invoice", "receipt", "credit note", "debit note",
			"purchase order", "proforma",
		},
		InflowKeywords:     []string{"inflow", "income", "sale", "sales", "receivable", "revenue", "credit"},
		OutflowKeywords:    []string{"outflow", "expense", "purchase", "payable", "cost", "debit", "bill", "payment"},
		IrrelevantKeywords: []string{"irrelevant", "none", "not applicable", "n/a", "non-financial", "other"},
		FilenameStopwords: []string{
			"the", "and", "for", "from", "with", "copy", "scan", "scanned", "final",
			"document", "doc", "file", "attachment", "pdf", "img", "image", "new",
			"draft", "signed", "page", "of", "to", "a", "an",
		},
		PlaceholderPatterns: []string{
			`^image\d{3}\.(png|jpe?g|gif)$`,
			`^att\d{5}\.(htm|html|txt|dat)$`,
			`^noname(\.\w+)?$`,
			`^unnamed(\.\w+)?$`,
			`^outlook-\w+\.(png|jpe?g|gif)$`,
			`^~wrl\d+\.tmp$`,
			`^smime\.p7s$`,
			`^winmail\.dat$`,
		},
	}
}
