package kyc

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/taxfiler/kyc-ocr-service/internal/models"
)

var (
	// PAN: 5 letters, 4 digits, 1 letter
	panPattern = regexp.MustCompile(`[A-Z]{5}[0-9]{4}[A-Z]`)
	// Aadhaar: 12 digits printed as three space separated groups
	aadhaarPattern = regexp.MustCompile(`\b[0-9]{4} [0-9]{4} [0-9]{4}\b`)
	// DD/MM/YYYY or DD-MM-YYYY
	dobPattern = regexp.MustCompile(`\d{2}[/-]\d{2}[/-]\d{4}`)

	lettersAndSpaces = regexp.MustCompile(`^[A-Z ]+$`)
)

// Lines that mention these are issuer boilerplate, never the holder's name
var nameBoilerplate = []string{"DEPARTMENT", "INDIA", "GOVERNMENT"}

// Extraction is everything the heuristics read out of one OCR text
type Extraction struct {
	Fields       models.ExtractedFields
	DetectedType models.DocumentType
}

// Extract runs the ID, name and DOB extractors over raw OCR text
func Extract(text string) Extraction {
	id, docType := ExtractID(text)
	return Extraction{
		Fields: models.ExtractedFields{
			Name:     ExtractName(text),
			IDNumber: id,
			DOB:      ExtractDOB(text),
		},
		DetectedType: docType,
	}
}

// ExtractID looks for a PAN number first and an Aadhaar number second.
// The document type follows from whichever pattern matched.
func ExtractID(text string) (*string, models.DocumentType) {
	upper := strings.ToUpper(text)

	if m := panPattern.FindString(upper); m != "" {
		return &m, models.DocumentTypePAN
	}
	if m := aadhaarPattern.FindString(upper); m != "" {
		return &m, models.DocumentTypeAadhaar
	}
	return nil, models.DocumentTypeUnknown
}

// ExtractName finds the holder's name with an ordered two-tier heuristic.
//
// Tier 1: the line after the first line mentioning NAME (but not FATHER).
// Tier 2: the first line that normalizes to two or more words of letters
// only and carries no issuer boilerplate.
//
// The tiers must stay in this order; identity cards print the name in
// inconsistent places and the order decides which guess wins.
func ExtractName(text string) *string {
	lines := candidateLines(text)

	for i, line := range lines {
		upper := strings.ToUpper(line)
		if strings.Contains(upper, "NAME") && !strings.Contains(upper, "FATHER") && i+1 < len(lines) {
			return models.StringPtr(Normalize(lines[i+1]))
		}
	}

	for _, line := range lines {
		n := Normalize(line)
		if n == "" || !lettersAndSpaces.MatchString(n) {
			continue
		}
		if len(strings.Fields(n)) < 2 || hasBoilerplate(n) {
			continue
		}
		return &n
	}

	return nil
}

// ExtractDOB returns the first DD/MM/YYYY shaped token
func ExtractDOB(text string) *string {
	if m := dobPattern.FindString(text); m != "" {
		return &m
	}
	return nil
}

// candidateLines splits OCR text into trimmed lines, dropping the very short
// ones OCR produces from specks and borders.
func candidateLines(text string) []string {
	raw := strings.Split(text, "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		l = strings.TrimSpace(l)
		if utf8.RuneCountInString(l) > 3 {
			lines = append(lines, l)
		}
	}
	return lines
}

func hasBoilerplate(normalized string) bool {
	for _, token := range nameBoilerplate {
		if strings.Contains(normalized, token) {
			return true
		}
	}
	return false
}
