package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ttsites/facturemanager/internal/storage"
	"github.com/ttsites/facturemanager/internal/tariff"
)

// Snapshot sources.
const (
	SourceDefaults = "defaults"
	SourceFile     = "file"
	SourceUpdate   = "update"
	SourcePDF      = "pdf"
)

var ErrInvalidPowerTier = errors.New("invalid power tier")

// Config locates the fallback settings sources.
type Config struct {
	// SettingsFile is an optional YAML file consulted when no snapshot has
	// been stored yet.
	SettingsFile string
	// PDFPath is the default location of the published low-voltage tariff.
	PDFPath string
}

// Provider serves the current tariff settings and per-meter power tiers.
type Provider struct {
	cfg   Config
	store storage.Storage
	log   *zap.Logger
}

func NewProvider(cfg Config, st storage.Storage, log *zap.Logger) *Provider {
	return &Provider{cfg: cfg, store: st, log: log.Named("settings")}
}

// Get returns the current settings. It consults storage first; on a miss it
// loads the settings file or the built-in defaults and writes them back.
func (p *Provider) Get(ctx context.Context) (tariff.Settings, error) {
	snap, err := p.store.LatestSettingsSnapshot(ctx)
	if err != nil {
		p.log.Warn("read settings snapshot failed, falling back", zap.Error(err))
	}
	if snap != nil && len(snap.Payload) > 0 {
		s := tariff.DefaultSettings()
		if err := json.Unmarshal(snap.Payload, &s); err == nil {
			return s, nil
		}
		p.log.Warn("settings snapshot is not decodable, falling back", zap.Uint("snapshot_id", snap.ID))
	}

	s, source, err := p.load()
	if err != nil {
		return tariff.Settings{}, err
	}
	p.warnUnpriced(s)

	if payload, err := json.Marshal(s); err == nil {
		if err := p.store.SaveSettingsSnapshot(ctx, storage.SettingsSnapshot{
			Payload:   payload,
			Source:    source,
			CreatedAt: time.Now(),
		}); err != nil {
			p.log.Warn("write back settings snapshot failed", zap.Error(err))
		}
	}
	return s, nil
}

func (p *Provider) load() (tariff.Settings, string, error) {
	if p.cfg.SettingsFile == "" {
		return tariff.DefaultSettings(), SourceDefaults, nil
	}
	s, err := LoadFile(p.cfg.SettingsFile)
	if err != nil {
		return tariff.Settings{}, "", err
	}
	p.log.Info("loaded tariff settings from file", zap.String("path", p.cfg.SettingsFile))
	return s, SourceFile, nil
}

// Update validates s and stores it as the current settings.
func (p *Provider) Update(ctx context.Context, s tariff.Settings) error {
	return p.save(ctx, s, SourceUpdate)
}

func (p *Provider) save(ctx context.Context, s tariff.Settings, source string) error {
	if err := s.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := p.store.SaveSettingsSnapshot(ctx, storage.SettingsSnapshot{
		Payload:   payload,
		Source:    source,
		CreatedAt: time.Now(),
	}); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	p.warnUnpriced(s)
	p.log.Info("tariff settings updated", zap.String("source", source))
	return nil
}

func (p *Provider) warnUnpriced(s tariff.Settings) {
	if s.MoyenTensionHoraire.Evening.UnitPrice == 0 {
		p.log.Warn("evening channel has no unit price; time-of-use evening consumption is billed at 0")
	}
}

// PowerTier returns the power tier of a meter, or nil when none is stored.
func (p *Provider) PowerTier(ctx context.Context, meterID string) (*tariff.PowerTier, error) {
	row, err := p.store.GetPowerTier(ctx, meterID)
	if err != nil || row == nil {
		return nil, err
	}
	return &tariff.PowerTier{
		MeterID: row.MeterID,
		PPH:     row.PPH,
		PPE:     row.PPE,
		PJ:      row.PJ,
		PS:      row.PS,
		PI:      row.PI,
	}, nil
}

// SetPowerTier stores the power tier of a meter.
func (p *Provider) SetPowerTier(ctx context.Context, pt tariff.PowerTier) error {
	if strings.TrimSpace(pt.MeterID) == "" {
		return fmt.Errorf("%w: meter_id is required", ErrInvalidPowerTier)
	}
	for name, v := range map[string]float64{"pph": pt.PPH, "ppe": pt.PPE, "pj": pt.PJ, "ps": pt.PS, "pi": pt.PI} {
		if v < 0 {
			return fmt.Errorf("%w: %s is negative", ErrInvalidPowerTier, name)
		}
	}
	return p.store.UpsertPowerTier(ctx, storage.PowerTier{
		MeterID: pt.MeterID,
		PPH:     pt.PPH,
		PPE:     pt.PPE,
		PJ:      pt.PJ,
		PS:      pt.PS,
		PI:      pt.PI,
	})
}

// ImportPDF parses a published low-voltage tariff and merges whatever it
// finds into the current settings. An empty path uses the configured one.
func (p *Provider) ImportPDF(ctx context.Context, path string) (tariff.Settings, error) {
	if path == "" {
		path = p.cfg.PDFPath
	}
	if path == "" {
		return tariff.Settings{}, fmt.Errorf("no tariff PDF path configured")
	}
	sheet, err := ParseTariffPDF(path)
	if err != nil {
		return tariff.Settings{}, err
	}
	current, err := p.Get(ctx)
	if err != nil {
		return tariff.Settings{}, err
	}
	merged := sheet.Merge(current)
	if err := p.save(ctx, merged, SourcePDF); err != nil {
		return tariff.Settings{}, err
	}
	p.log.Info("imported tariff PDF", zap.String("path", path), zap.Int("tiers", sheet.TierCount()))
	return merged, nil
}
