package convert

import (
	"github.com/gen2brain/go-fitz"
)

// PreflightPDF opens the PDF with MuPDF and rejects files that are not
// actually PDFs or contain no pages, before any subprocess is spawned.
// Uploads are unauthenticated presigned PUTs, so the declared content type
// cannot be trusted. Returns the page count; pages beyond the converter's
// cap are truncated, not rejected.
func PreflightPDF(path string) (int, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return 0, conversionErrorf(err, "file is not a readable PDF")
	}
	defer doc.Close()

	pages := doc.NumPage()
	if pages == 0 {
		return 0, conversionErrorf(nil, "PDF has no pages")
	}
	return pages, nil
}
