// Package pdf probes, decrypts, and extracts text from PDF documents.
package pdf

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/Veraticus/inward-bound/internal/common"
	lpdf "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Codec handles the document-format concerns of attachment processing:
// encryption probing, decryption, and text extraction in reading order.
type Codec struct{}

// NewCodec creates a codec. pdfcpu is kept from writing its config
// directory so the codec works in read-only environments.
func NewCodec() *Codec {
	api.DisableConfigDir()
	return &Codec{}
}

// IsEncrypted reports whether the document needs a password to open.
// Documents that fail to parse for reasons other than encryption are
// reported as unreadable.
func (c *Codec) IsEncrypted(data []byte) (bool, error) {
	_, err := api.ReadContext(bytes.NewReader(data), model.NewDefaultConfiguration())
	if err == nil {
		return false, nil
	}
	if isAuthError(err) {
		return true, nil
	}
	return false, fmt.Errorf("%w: %v", common.ErrUnreadableContent, err)
}

// Decrypt opens the document with the given user password and returns the
// decrypted bytes.
func (c *Codec) Decrypt(data []byte, pw string) ([]byte, error) {
	conf := model.NewDefaultConfiguration()
	conf.UserPW = pw

	var buf bytes.Buffer
	if err := api.Decrypt(bytes.NewReader(data), &buf, conf); err != nil {
		return nil, fmt.Errorf("decrypting document: %w", err)
	}
	return buf.Bytes(), nil
}

// Text flattens the document into a single text stream, top to bottom page
// by page, with one line per visual row.
func (c *Codec) Text(data []byte) (text string, err error) {
	// The underlying parser panics on some malformed content streams.
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("%w: %v", common.ErrUnreadableContent, r)
		}
	}()

	reader, err := lpdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrUnreadableContent, err)
	}

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		rows, err := page.GetTextByRow()
		if err != nil {
			// A page whose content stream fails to parse is skipped; the
			// remaining pages may still carry the transaction details.
			continue
		}
		for _, row := range rows {
			for j, word := range row.Content {
				if j > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(word.S)
			}
			sb.WriteByte('\n')
		}
	}

	return sb.String(), nil
}

// isAuthError distinguishes password failures from structural corruption.
// pdfcpu does not export a stable sentinel for authentication errors, so
// this matches on the error text.
func isAuthError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "password") || strings.Contains(msg, "encrypt")
}
