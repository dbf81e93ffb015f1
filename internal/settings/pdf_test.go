package settings

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ttsites/facturemanager/internal/storage"
	"github.com/ttsites/facturemanager/internal/tariff"
)

const sampleTariff = `
TARIFS DE L'ELECTRICITE
Basse tension - usage domestique
Tranche 1 : de 1 à 200 kWh/mois : 195 millimes/kWh
Tranche 2 : de 201 à 300 kWh/mois : 240 millimes/kWh
Tranche 3 : de 301 à 500 kWh/mois : 333 millimes/kWh
Tranche 4 : plus de 500 kWh/mois : 0,410 DT/kWh
Redevance fixe : 28,500 DT par mois
TVA : 13 %
Moyenne tension
Tranche 1 : 999 millimes/kWh
`

func TestParseTariffText(t *testing.T) {
	sheet, err := ParseTariffText(sampleTariff)
	require.NoError(t, err)

	require.Equal(t, 4, sheet.TierCount())
	assert.InDelta(t, 0.195, *sheet.TierUnitPrices[0], 1e-12)
	assert.InDelta(t, 0.240, *sheet.TierUnitPrices[1], 1e-12)
	assert.InDelta(t, 0.333, *sheet.TierUnitPrices[2], 1e-12)
	assert.InDelta(t, 0.410, *sheet.TierUnitPrices[3], 1e-12)

	require.NotNil(t, sheet.TierBounds[2])
	assert.Equal(t, 500.0, *sheet.TierBounds[2])
	require.NotNil(t, sheet.FixedFee)
	assert.Equal(t, 28.5, *sheet.FixedFee)
	require.NotNil(t, sheet.VATPercent)
	assert.Equal(t, 13.0, *sheet.VATPercent)
}

func TestParseTariffText_SingleLine(t *testing.T) {
	sheet, err := ParseTariffText("Basse Tension Tranche 1 de 0 a 150 kWh 181 millimes/kWh Tranche 2 de 151 a 300 kWh 230 millimes/kWh")
	require.NoError(t, err)
	assert.Equal(t, 2, sheet.TierCount())
	assert.Equal(t, 150.0, *sheet.TierBounds[0])
	assert.InDelta(t, 0.230, *sheet.TierUnitPrices[1], 1e-12)
	assert.Nil(t, sheet.FixedFee)
}

func TestParseTariffText_NothingFound(t *testing.T) {
	_, err := ParseTariffText("Conditions générales de vente")
	assert.ErrorIs(t, err, ErrNoTariffFound)
}

func TestTariffSheet_MergeKeepsMissingFigures(t *testing.T) {
	price := 0.5
	sheet := TariffSheet{}
	sheet.TierUnitPrices[3] = &price

	s := sheet.Merge(tariff.DefaultSettings())
	assert.Equal(t, [4]float64{0.195, 0.239, 0.330, 0.5}, s.BasseTension.TierUnitPrices)
	assert.Equal(t, 28.0, s.BasseTension.FixedFee)
}

// writeTextPDF writes a one-page PDF showing text as a single line.
func writeTextPDF(t *testing.T, text string) string {
	t.Helper()
	content := fmt.Sprintf("BT /F1 10 Tf 20 700 Td (%s) Tj ET", text)
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 4 0 R >> >> /Contents 5 0 R >>",
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)

	path := filepath.Join(t.TempDir(), "tarif.pdf")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

const singleLineTariff = "Basse Tension Tranche 1 de 0 a 150 kWh 181 millimes/kWh " +
	"Tranche 2 de 151 a 300 kWh 230 millimes/kWh Redevance fixe 29 DT"

func TestImportPDF_MergesAndStoresSettings(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	path := writeTextPDF(t, singleLineTariff)
	p := NewProvider(Config{PDFPath: path}, st, zap.NewNop())

	got, err := p.ImportPDF(ctx, "")
	require.NoError(t, err)

	bt := got.BasseTension
	assert.InDelta(t, 0.181, bt.TierUnitPrices[0], 1e-12)
	assert.InDelta(t, 0.230, bt.TierUnitPrices[1], 1e-12)
	assert.Equal(t, tariff.DefaultSettings().BasseTension.TierUnitPrices[2], bt.TierUnitPrices[2])
	assert.Equal(t, [3]float64{150, 300, 500}, bt.TierBounds)
	assert.Equal(t, 29.0, bt.FixedFee)
	assert.Equal(t, tariff.DefaultSettings().BasseTension.VATPercent, bt.VATPercent)

	snap, err := st.LatestSettingsSnapshot(ctx)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, SourcePDF, snap.Source)

	current, err := p.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, got, current)
}

func TestImportPDF_UnreadableDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.pdf")
	require.NoError(t, os.WriteFile(path, []byte("this is not a pdf"), 0o644))

	p := NewProvider(Config{}, storage.NewMemory(), zap.NewNop())
	_, err := p.ImportPDF(context.Background(), path)
	assert.ErrorIs(t, err, ErrUnreadableDocument)
}
