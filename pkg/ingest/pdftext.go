package ingest

import (
	"os"
	"regexp"
	"strings"
)

// textOperandRe matches the literal-string operand of a PDF `Tj`/`TJ` text
// showing operator in an uncompressed content stream, e.g. `(Invoice #42) Tj`.
var textOperandRe = regexp.MustCompile(`\(((?:[^()\\]|\\.)*)\)\s*T[Jj]`)

var pdfEscapeReplacer = strings.NewReplacer(`\(`, "(", `\)`, ")", `\\`, `\`, `\n`, "\n")

// PDFTextExtractor is a minimal DocumentExtractor for uncompressed PDF
// content streams: it pulls the literal-string operands out of every
// Tj/TJ text-showing operator, which is enough to recover the field text
// the invoice fixtures in this fleet are generated with. It does not
// decode FlateDecode-compressed streams; a production deployment should
// swap in a full PDF text-extraction library for scanned/compressed
// documents.
type PDFTextExtractor struct{}

// ExtractText implements DocumentExtractor.
func (PDFTextExtractor) ExtractText(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	matches := textOperandRe.FindAllSubmatch(raw, -1)
	var b strings.Builder
	for _, m := range matches {
		b.WriteString(pdfEscapeReplacer.Replace(string(m[1])))
		b.WriteString(" ")
	}
	return b.String(), nil
}
