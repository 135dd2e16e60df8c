package extract

import (
	"github.com/ledongthuc/pdf"
)

// maxPDFPages is the number of leading pages read from a PDF.
const maxPDFPages = 5

func extractPDF(path string, max int) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	out := &limitedBuilder{max: max}
	pages := r.NumPage()
	if pages > maxPDFPages {
		pages = maxPDFPages
	}
	for i := 1; i <= pages && !out.full(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", err
		}
		out.add(text)
		out.add("\n")
	}
	return out.String(), nil
}
