package engine

import (
	"strings"

	"sensorlog/internal/config"
	"sensorlog/internal/model"
)

// ChannelFilter decides which channel posts reach the decoder.
type ChannelFilter struct {
	Channels         map[int64]struct{}
	RequireSignature bool
	BlockedSigners   map[string]struct{}
}

func buildChannelFilter(cfg *config.Config) *ChannelFilter {
	f := &ChannelFilter{RequireSignature: cfg.Filter.RequireSignature}
	if len(cfg.Filter.ChannelIDs) > 0 {
		f.Channels = make(map[int64]struct{}, len(cfg.Filter.ChannelIDs))
		for _, id := range cfg.Filter.ChannelIDs {
			f.Channels[id] = struct{}{}
		}
	}
	f.BlockedSigners = buildSignerSet(cfg.Filter.BlockedSigners)
	return f
}

func buildSignerSet(values []string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		signer := normalizeSigner(v)
		if signer == "" {
			continue
		}
		set[signer] = struct{}{}
	}
	if len(set) == 0 {
		return nil
	}
	return set
}

// Allow reports whether msg passes; reason names the failing rule.
func (f *ChannelFilter) Allow(msg model.ChannelMessage) (bool, string) {
	if f == nil {
		return true, ""
	}
	if f.Channels != nil {
		if _, ok := f.Channels[msg.ChannelID]; !ok {
			return false, "channel_not_allowed"
		}
	}
	signer := normalizeSigner(msg.Signature)
	if f.RequireSignature && signer == "" {
		return false, "unsigned"
	}
	if f.BlockedSigners != nil && signer != "" {
		if _, ok := f.BlockedSigners[signer]; ok {
			return false, "signer_blocked"
		}
	}
	return true, ""
}

func normalizeSigner(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
