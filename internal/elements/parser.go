// Package elements parses and stores two-line orbital element sets.
//
// Catalog text arrives from an external collaborator (file or pasted text)
// in the standard 3-line NORAD format: an optional name line followed by the
// "1 " and "2 " designator lines. Real-world catalogs always contain a few
// corrupt records, so batch ingestion skips bad records individually instead
// of failing the whole batch.
package elements

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// Sentinel parse errors, matched with errors.Is.
var (
	// ErrMalformed indicates a structural violation: wrong line length,
	// missing designator prefix, or an unparseable numeric field.
	ErrMalformed = errors.New("malformed element set")

	// ErrOutOfRange indicates a decoded physical quantity outside its valid
	// range (inclination, eccentricity, mean motion).
	ErrOutOfRange = errors.New("element value out of range")
)

// minLineLen is the minimum length of a TLE data line. The standard format
// is exactly 69 columns; trailing whitespace may be stripped in transit, so
// anything shorter than the last mandatory field is rejected.
const minLineLen = 69

// Ingest validates and decodes a single element set.
func Ingest(name, line1, line2 string) (ElementSet, error) {
	line1 = strings.TrimRight(line1, "\r\n ")
	line2 = strings.TrimRight(line2, "\r\n ")

	if len(line1) < minLineLen {
		return ElementSet{}, fmt.Errorf("%w: line1 length %d, expected >= %d", ErrMalformed, len(line1), minLineLen)
	}
	if len(line2) < minLineLen {
		return ElementSet{}, fmt.Errorf("%w: line2 length %d, expected >= %d", ErrMalformed, len(line2), minLineLen)
	}
	if !strings.HasPrefix(line1, "1 ") {
		return ElementSet{}, fmt.Errorf("%w: line1 must start with \"1 \"", ErrMalformed)
	}
	if !strings.HasPrefix(line2, "2 ") {
		return ElementSet{}, fmt.Errorf("%w: line2 must start with \"2 \"", ErrMalformed)
	}

	// Catalog number: line1 cols 3-7.
	catNum, err := strconv.Atoi(strings.TrimSpace(line1[2:7]))
	if err != nil {
		return ElementSet{}, fmt.Errorf("%w: invalid catalog number %q", ErrMalformed, line1[2:7])
	}

	// Epoch: line1 cols 19-32 in YYDDD.DDDDDDDD form.
	epoch, err := parseEpoch(strings.TrimSpace(line1[18:32]))
	if err != nil {
		return ElementSet{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	// Inclination: line2 cols 9-16 (degrees).
	incl, err := strconv.ParseFloat(strings.TrimSpace(line2[8:16]), 64)
	if err != nil {
		return ElementSet{}, fmt.Errorf("%w: invalid inclination %q", ErrMalformed, line2[8:16])
	}
	if incl < 0 || incl > 180 {
		return ElementSet{}, fmt.Errorf("%w: inclination %.4f deg", ErrOutOfRange, incl)
	}

	// Eccentricity: line2 cols 27-33 with implied leading decimal point.
	eccStr := strings.TrimSpace(line2[26:33])
	eccDigits, err := strconv.ParseUint(eccStr, 10, 64)
	if err != nil {
		return ElementSet{}, fmt.Errorf("%w: invalid eccentricity %q", ErrMalformed, eccStr)
	}
	ecc, err := strconv.ParseFloat("0."+fmt.Sprintf("%07d", eccDigits), 64)
	if err != nil || ecc >= 1 {
		return ElementSet{}, fmt.Errorf("%w: eccentricity %q", ErrOutOfRange, eccStr)
	}

	// Mean motion: line2 cols 53-63 (revolutions per day).
	mm, err := strconv.ParseFloat(strings.TrimSpace(line2[52:63]), 64)
	if err != nil {
		return ElementSet{}, fmt.Errorf("%w: invalid mean motion %q", ErrMalformed, line2[52:63])
	}
	if mm <= 0 {
		return ElementSet{}, fmt.Errorf("%w: mean motion %.8f rev/day", ErrOutOfRange, mm)
	}

	return ElementSet{
		Name:                strings.TrimSpace(name),
		CatalogNumber:       catNum,
		Epoch:               epoch,
		Line1:               line1,
		Line2:               line2,
		InclinationDeg:      incl,
		Eccentricity:        ecc,
		MeanMotionRevPerDay: mm,
	}, nil
}

// IngestBatch reads a full catalog from r, splitting on record boundaries.
// A record boundary is a "1 " line immediately followed by a "2 " line; the
// preceding line, if not itself a designator line, is the object name.
// Malformed records are skipped with a warning rather than failing the batch.
func IngestBatch(r io.Reader, logger *slog.Logger) (BatchResult, error) {
	scanner := bufio.NewScanner(r)
	var lines []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return BatchResult{}, fmt.Errorf("reading element data: %w", err)
	}

	var res BatchResult
	for i := 0; i < len(lines); {
		if !strings.HasPrefix(lines[i], "1 ") {
			// A name line must be followed by a designator pair.
			if i+2 >= len(lines) || !strings.HasPrefix(lines[i+1], "1 ") || !strings.HasPrefix(lines[i+2], "2 ") {
				logger.Warn("skipping stray catalog line", "line_index", i, "text", truncate(lines[i], 24))
				res.Skipped++
				i++
				continue
			}
			es, err := Ingest(lines[i], lines[i+1], lines[i+2])
			if err != nil {
				logger.Warn("skipping malformed element set", "name", lines[i], "error", err)
				res.Skipped++
			} else {
				res.Records = append(res.Records, es)
				res.Valid++
			}
			i += 3
			continue
		}

		// Nameless record: "1 " line directly followed by "2 ".
		if i+1 >= len(lines) || !strings.HasPrefix(lines[i+1], "2 ") {
			logger.Warn("skipping unpaired designator line", "line_index", i)
			res.Skipped++
			i++
			continue
		}
		es, err := Ingest("", lines[i], lines[i+1])
		if err != nil {
			logger.Warn("skipping malformed element set", "line_index", i, "error", err)
			res.Skipped++
		} else {
			res.Records = append(res.Records, es)
			res.Valid++
		}
		i += 2
	}

	return res, nil
}

// parseEpoch converts a TLE epoch string in YYDDD.DDDDDDDD format to time.Time.
// Year 00-56 maps to the 2000s, 57-99 to the 1900s.
func parseEpoch(s string) (time.Time, error) {
	if len(s) < 5 {
		return time.Time{}, fmt.Errorf("epoch string too short: %q", s)
	}

	year, err := strconv.Atoi(s[:2])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch year %q: %w", s[:2], err)
	}
	if year >= 57 {
		year += 1900
	} else {
		year += 2000
	}

	dayOfYear, err := strconv.ParseFloat(s[2:], 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch day %q: %w", s[2:], err)
	}

	// Day of year is 1-based: day 1.0 = Jan 1 00:00.
	t := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	return t.Add(time.Duration((dayOfYear - 1) * float64(24*time.Hour))), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
