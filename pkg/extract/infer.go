package extract

import (
	"net/mail"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/reportai-inc/reportai-engine/pkg/models"
)

// Value profiling for file-based sources. Every column is inferred from
// its observed values: a structural type first (integer, decimal, date,
// boolean), then a semantic refinement (email, url, phone, currency,
// percentage, identifier, categorical) when the values warrant it.

const (
	maxSampleValues = 5

	// A text column is categorical when its distinct values are few in
	// absolute terms and relative to the row count.
	categoricalMaxUnique = 20
	categoricalMaxRatio  = 0.5
)

var (
	phonePattern = regexp.MustCompile(`^\+?[0-9][0-9\-\s().]{6,19}$`)
	uuidPattern  = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
)

var dateLayouts = []string{"2006-01-02", "01/02/2006", "02/01/2006", "2006/01/02"}

var datetimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"01/02/2006 15:04:05",
}

var timeLayouts = []string{"15:04:05", "15:04"}

// inferColumn profiles one column's raw values into a typed schema
// column with statistics and sample values.
func inferColumn(name string, values []string) models.ColumnSchema {
	stats := &models.ColumnStatistics{Count: int64(len(values))}

	nonNull := make([]string, 0, len(values))
	distinct := make(map[string]struct{})
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			stats.NullCount++
			continue
		}
		nonNull = append(nonNull, trimmed)
		distinct[trimmed] = struct{}{}
	}
	stats.UniqueCount = int64(len(distinct))

	col := models.ColumnSchema{
		Name:       name,
		IsNullable: stats.NullCount > 0,
		Statistics: stats,
	}

	if len(nonNull) == 0 {
		col.DataType = models.DataTypeUnknown
		return col
	}

	col.DataType = inferDataType(nonNull, stats)
	col.IsUnique = stats.UniqueCount == int64(len(nonNull)) && len(nonNull) > 1

	seen := make(map[string]struct{})
	for _, v := range nonNull {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		col.SampleValues = append(col.SampleValues, v)
		if len(col.SampleValues) == maxSampleValues {
			break
		}
	}
	return col
}

func inferDataType(values []string, stats *models.ColumnStatistics) models.DataType {
	switch {
	case allMatch(values, isBoolean):
		return models.DataTypeBoolean
	case allMatch(values, isInteger):
		fillNumericStats(values, stats)
		return models.DataTypeInteger
	case allMatch(values, isDecimal):
		fillNumericStats(values, stats)
		return models.DataTypeDecimal
	case allMatch(values, isCurrency):
		return models.DataTypeCurrency
	case allMatch(values, isPercentage):
		return models.DataTypePercentage
	case allMatch(values, matchesLayouts(dateLayouts)):
		return models.DataTypeDate
	case allMatch(values, matchesLayouts(datetimeLayouts)):
		return models.DataTypeDatetime
	case allMatch(values, matchesLayouts(timeLayouts)):
		return models.DataTypeTime
	case allMatch(values, isEmail):
		return models.DataTypeEmail
	case allMatch(values, isURL):
		return models.DataTypeURL
	case allMatch(values, uuidPattern.MatchString):
		return models.DataTypeIdentifier
	case allMatch(values, phonePattern.MatchString):
		return models.DataTypePhone
	}

	fillLengthStats(values, stats)
	if isCategorical(values, stats) {
		return models.DataTypeCategorical
	}
	return models.DataTypeText
}

func allMatch(values []string, pred func(string) bool) bool {
	for _, v := range values {
		if !pred(v) {
			return false
		}
	}
	return true
}

func isBoolean(v string) bool {
	switch strings.ToLower(v) {
	case "true", "false", "yes", "no", "0", "1":
		return true
	}
	return false
}

func isInteger(v string) bool {
	_, err := strconv.ParseInt(v, 10, 64)
	return err == nil
}

func isDecimal(v string) bool {
	_, err := strconv.ParseFloat(v, 64)
	return err == nil
}

func isCurrency(v string) bool {
	for _, symbol := range []string{"$", "€", "£"} {
		if strings.HasPrefix(v, symbol) {
			return isDecimal(strings.ReplaceAll(strings.TrimPrefix(v, symbol), ",", ""))
		}
	}
	return false
}

func isPercentage(v string) bool {
	if !strings.HasSuffix(v, "%") {
		return false
	}
	return isDecimal(strings.TrimSuffix(v, "%"))
}

func matchesLayouts(layouts []string) func(string) bool {
	return func(v string) bool {
		for _, layout := range layouts {
			if _, err := time.Parse(layout, v); err == nil {
				return true
			}
		}
		return false
	}
}

func isEmail(v string) bool {
	addr, err := mail.ParseAddress(v)
	return err == nil && addr.Address == v && strings.Contains(v, "@")
}

func isURL(v string) bool {
	u, err := url.Parse(v)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func isCategorical(values []string, stats *models.ColumnStatistics) bool {
	if stats.UniqueCount > categoricalMaxUnique {
		return false
	}
	ratio := float64(stats.UniqueCount) / float64(len(values))
	return ratio <= categoricalMaxRatio && len(values) >= 4
}

func fillNumericStats(values []string, stats *models.ColumnStatistics) {
	var sum float64
	var minV, maxV float64
	for i, v := range values {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			continue
		}
		if i == 0 {
			minV, maxV = f, f
		}
		if f < minV {
			minV = f
		}
		if f > maxV {
			maxV = f
		}
		sum += f
	}
	avg := sum / float64(len(values))
	stats.Min = &minV
	stats.Max = &maxV
	stats.Avg = &avg
}

func fillLengthStats(values []string, stats *models.ColumnStatistics) {
	minLen := int64(len(values[0]))
	maxLen := minLen
	for _, v := range values[1:] {
		l := int64(len(v))
		if l < minLen {
			minLen = l
		}
		if l > maxLen {
			maxLen = l
		}
	}
	stats.MinLength = &minLen
	stats.MaxLength = &maxLen
}
