package settings

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	pdf "github.com/ledongthuc/pdf"

	"github.com/ttsites/facturemanager/internal/tariff"
)

var (
	ErrNoTariffFound      = errors.New("no low-voltage tariff found in document")
	ErrUnreadableDocument = errors.New("unreadable tariff document")
)

// TariffSheet holds the low-voltage figures read from a published tariff.
// Nil entries were not found.
type TariffSheet struct {
	TierUnitPrices [4]*float64
	TierBounds     [3]*float64
	FixedFee       *float64
	VATPercent     *float64
}

// TierCount returns the number of tier prices found.
func (t TariffSheet) TierCount() int {
	n := 0
	for _, p := range t.TierUnitPrices {
		if p != nil {
			n++
		}
	}
	return n
}

// Merge returns s with the sheet's figures substituted.
func (t TariffSheet) Merge(s tariff.Settings) tariff.Settings {
	bt := &s.BasseTension
	for i, p := range t.TierUnitPrices {
		if p != nil {
			bt.TierUnitPrices[i] = *p
		}
	}
	for i, b := range t.TierBounds {
		if b != nil {
			bt.TierBounds[i] = *b
		}
	}
	if t.FixedFee != nil {
		bt.FixedFee = *t.FixedFee
	}
	if t.VATPercent != nil {
		bt.VATPercent = *t.VATPercent
	}
	return s
}

// ParseTariffPDF opens a tariff PDF, extracts its text and delegates to
// ParseTariffText.
func ParseTariffPDF(path string) (*TariffSheet, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open pdf: %v", ErrUnreadableDocument, err)
	}
	defer f.Close()

	rc, err := r.GetPlainText()
	if err != nil {
		return nil, fmt.Errorf("%w: extract pdf text: %v", ErrUnreadableDocument, err)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, rc); err != nil {
		return nil, fmt.Errorf("read pdf text: %w", err)
	}
	return ParseTariffText(buf.String())
}

var (
	sectionRe = regexp.MustCompile(`(?is)basse\s+tension(.+?)(?:moyenne?\s+tension|$)`)
	tierRe    = regexp.MustCompile(`(?i)tranche\s*([1-4])\b`)
	priceRe   = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*(millimes?|mil|dt|tnd)\s*/\s*kwh`)
	rangeRe   = regexp.MustCompile(`(?i)(\d+)\s*(?:à|a|-)\s*(\d+)\s*kwh`)
	feeRe     = regexp.MustCompile(`(?i)redevance\s+fixe[^\d\n]*(\d+(?:[.,]\d+)?)\s*(millimes?|dt|tnd)?`)
	vatRe     = regexp.MustCompile(`(?i)\btva\b[^\d\n]*(\d+(?:[.,]\d+)?)\s*%`)
)

// ParseTariffText extracts tier prices, tier bounds, the fixed fee and the VAT
// rate from the text of a tariff document. Prices quoted in millimes are
// converted to dinars.
func ParseTariffText(text string) (*TariffSheet, error) {
	section := text
	if m := sectionRe.FindStringSubmatch(text); len(m) >= 2 {
		section = m[1]
	}

	var sheet TariffSheet
	starts := tierRe.FindAllStringSubmatchIndex(section, -1)
	for i, m := range starts {
		idx, _ := strconv.Atoi(section[m[2]:m[3]])
		// A tier's text runs to the next tier or the end of the line.
		end := len(section)
		if i+1 < len(starts) {
			end = starts[i+1][0]
		}
		line := section[m[1]:end]
		if nl := strings.IndexByte(line, '\n'); nl >= 0 {
			line = line[:nl]
		}
		if pm := priceRe.FindStringSubmatch(line); pm != nil {
			v := toDinars(parseNumber(pm[1]), pm[2])
			sheet.TierUnitPrices[idx-1] = &v
		}
		if idx <= 3 {
			if rm := rangeRe.FindStringSubmatch(line); rm != nil {
				v := parseNumber(rm[2])
				sheet.TierBounds[idx-1] = &v
			}
		}
	}
	if sheet.TierCount() == 0 {
		return nil, ErrNoTariffFound
	}

	if m := feeRe.FindStringSubmatch(section); m != nil {
		v := toDinars(parseNumber(m[1]), m[2])
		sheet.FixedFee = &v
	}
	if m := vatRe.FindStringSubmatch(section); m != nil {
		v := parseNumber(m[1])
		sheet.VATPercent = &v
	}
	return &sheet, nil
}

func parseNumber(s string) float64 {
	v, _ := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	return v
}

func toDinars(v float64, unit string) float64 {
	if strings.HasPrefix(strings.ToLower(unit), "mil") {
		return v / 1000
	}
	return v
}
