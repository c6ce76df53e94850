package extract

import (
	"fmt"
	"strings"

	"github.com/reportai-inc/reportai-engine/pkg/apperrors"
	"github.com/reportai-inc/reportai-engine/pkg/models"
)

var extensionForType = map[string][]string{
	models.SourceTypeCSV:  {".csv"},
	models.SourceTypeXLSX: {".xlsx", ".xlsm"},
}

// ValidateUpload checks an uploaded file against the declared source
// type and the configured size limit before any parsing happens.
func ValidateUpload(sourceType, filename string, size, maxBytes int64) error {
	if !models.FileBasedTypes[sourceType] {
		return fmt.Errorf("%w: %q is not a file-based source type", apperrors.ErrValidation, sourceType)
	}
	if size == 0 {
		return fmt.Errorf("%w: file is empty", apperrors.ErrValidation)
	}
	if size > maxBytes {
		return fmt.Errorf("%w: file size %d exceeds the %d byte limit", apperrors.ErrValidation, size, maxBytes)
	}

	lower := strings.ToLower(filename)
	for _, ext := range extensionForType[sourceType] {
		if strings.HasSuffix(lower, ext) {
			return nil
		}
	}
	return fmt.Errorf("%w: filename %q does not match source type %q", apperrors.ErrValidation, filename, sourceType)
}
