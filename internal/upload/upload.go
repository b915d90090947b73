package upload

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"strconv"
	"strings"

	"examprephub/internal/gateway"
)

// MaxFileSize is the largest PDF accepted for quiz generation.
const MaxFileSize = 10 << 20

const pdfContentType = "application/pdf"

var pdfMagic = []byte("%PDF-")

const (
	MsgTooLarge     = "File size exceeds 10MB limit"
	MsgNotPDF       = "Please upload a PDF file"
	MsgEmptyFile    = "The selected file is empty"
	MsgBadCount     = "Number of questions must be one of 3, 5, 10, 15 or 20"
	MsgNotPDFHeader = "The selected file is not a valid PDF document"
)

// File is a validated source document waiting in the Configure step.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Data        []byte
}

// Document converts f into the gateway request payload.
func (f *File) Document() gateway.Document {
	return gateway.Document{Name: f.Name, ContentType: f.ContentType, Data: f.Data}
}

// Validate applies the client-side checks. No request is ever sent for a file
// that fails them. head is the first bytes of the body (may be the whole body).
func Validate(name, contentType string, size int64, head []byte) error {
	if size > MaxFileSize {
		return gateway.Validation(MsgTooLarge)
	}
	if size <= 0 {
		return gateway.Validation(MsgEmptyFile)
	}
	if !isPDFType(contentType, name) {
		return gateway.Validation(MsgNotPDF)
	}
	if !bytes.HasPrefix(head, pdfMagic) {
		return gateway.Validation(MsgNotPDFHeader)
	}
	return nil
}

// Read validates and buffers an uploaded file. size is the declared size; the
// reader is never consumed past MaxFileSize+1 bytes.
func Read(name, contentType string, size int64, r io.Reader) (*File, error) {
	if size > MaxFileSize {
		return nil, gateway.Validation(MsgTooLarge)
	}
	if !isPDFType(contentType, name) {
		return nil, gateway.Validation(MsgNotPDF)
	}
	data, err := io.ReadAll(io.LimitReader(r, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("read upload %q: %w", name, err)
	}
	if err := Validate(name, contentType, int64(len(data)), data); err != nil {
		return nil, err
	}
	return &File{Name: name, ContentType: pdfContentType, Size: int64(len(data)), Data: data}, nil
}

// isPDFType checks the declared media type. Browsers sometimes send an empty
// type; the .pdf extension is accepted then.
func isPDFType(contentType, name string) bool {
	if strings.TrimSpace(contentType) == "" {
		return strings.EqualFold(extension(name), ".pdf")
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == pdfContentType
}

func extension(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i:]
	}
	return ""
}

// QuestionCount is the number of questions requested from the generator.
type QuestionCount int

// QuestionCounts is the closed set offered in the Configure step.
var QuestionCounts = []QuestionCount{3, 5, 10, 15, 20}

// DefaultQuestionCount is preselected in the Configure step.
const DefaultQuestionCount QuestionCount = 5

// Valid reports whether n is one of QuestionCounts.
func (n QuestionCount) Valid() bool {
	for _, c := range QuestionCounts {
		if n == c {
			return true
		}
	}
	return false
}

// ParseQuestionCount accepts "5" or " 10 ".
func ParseQuestionCount(s string) (QuestionCount, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || !QuestionCount(v).Valid() {
		return 0, gateway.Validation(MsgBadCount)
	}
	return QuestionCount(v), nil
}
