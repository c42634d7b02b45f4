// Package pdfinfo inspects uploaded PDFs before they enter the pipeline.
package pdfinfo

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

type Info struct {
	Pages int
}

// Inspect parses the PDF structure and reports the page count. It does not
// touch page content, so it stays cheap even for large files. The parser
// panics on some malformed inputs, hence the recover.
func Inspect(data []byte) (info *Info, err error) {
	defer func() {
		if p := recover(); p != nil {
			info = nil
			err = fmt.Errorf("parse pdf: %v", p)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("parse pdf: %w", err)
	}

	return &Info{Pages: reader.NumPage()}, nil
}
