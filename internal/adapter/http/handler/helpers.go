package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ErrMissingFile is returned when no upload field is present
var ErrMissingFile = errors.New("file is required")

// UploadFields are the multipart field names accepted for an image
var UploadFields = []string{"file", "image"}

// FormulaParam is the query/form/JSON key carrying the formula to solve
const FormulaParam = "formula"

// ReadUpload returns the bytes of the first present upload field.
// The request body must already be wrapped with http.MaxBytesReader.
func ReadUpload(c *gin.Context, fields ...string) ([]byte, error) {
	if len(fields) == 0 {
		fields = UploadFields
	}

	for _, field := range fields {
		fh, err := c.FormFile(field)
		if err != nil {
			if errors.Is(err, http.ErrMissingFile) {
				continue
			}
			if IsPayloadTooLarge(err) {
				return nil, err
			}
			if errors.Is(err, http.ErrNotMultipart) {
				return nil, ErrMissingFile
			}
			return nil, fmt.Errorf("failed to parse upload: %w", err)
		}

		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open upload: %w", err)
		}
		defer f.Close()

		data, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read upload: %w", err)
		}
		return data, nil
	}

	return nil, ErrMissingFile
}

// IsPayloadTooLarge reports whether err came from an exhausted http.MaxBytesReader
func IsPayloadTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "request body too large")
}

type formulaBody struct {
	Formula string `json:"formula"`
}

// ExtractFormula reads the formula from the query string, a form field or a JSON body
func ExtractFormula(c *gin.Context) (string, error) {
	if formula, ok := c.GetQuery(FormulaParam); ok {
		return formula, nil
	}

	if c.ContentType() == gin.MIMEJSON {
		var body formulaBody
		if err := c.ShouldBindJSON(&body); err != nil {
			return "", fmt.Errorf("invalid JSON body: %w", err)
		}
		return body.Formula, nil
	}

	return c.PostForm(FormulaParam), nil
}
