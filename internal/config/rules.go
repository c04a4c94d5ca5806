package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/accruals-router/internal/core/domain"
)

// LoadRules reads the optional YAML rules file. Lists present in the file
// replace the built-in list of the same name; absent lists keep the default.
func LoadRules(path string) (domain.Rules, error) {
	rules := domain.DefaultRules()
	if path == "" {
		return rules, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.Rules{}, fmt.Errorf("read rules file: %w", err)
	}
	var override domain.Rules
	if err := yaml.Unmarshal(raw, &override); err != nil {
		return domain.Rules{}, fmt.Errorf("parse rules file %s: %w", path, err)
	}

	replace(&rules.NonInvoiceFilenamePatterns, override.NonInvoiceFilenamePatterns)
	replace(&rules.InvoiceDocumentTypes, override.InvoiceDocumentTypes)
	replace(&rules.InflowKeywords, override.InflowKeywords)
	replace(&rules.OutflowKeywords, override.OutflowKeywords)
	replace(&rules.IrrelevantKeywords, override.IrrelevantKeywords)
	replace(&rules.FilenameStopwords, override.FilenameStopwords)
	replace(&rules.PlaceholderPatterns, override.PlaceholderPatterns)
	return rules, nil
}

func replace(dst *[]string, src []string) {
	if len(src) > 0 {
		*dst = src
	}
}
