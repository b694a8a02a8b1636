package models

import (
	"fmt"
	"strconv"
)

// SourceKind says how a reference was written by the user.
type SourceKind int

const (
	// KindID is a bare numeric model id.
	KindID SourceKind = iota + 1
	// KindSite is a civitai.com/models web URL: model id, optional version id.
	KindSite
	// KindAPI is a civitai.com/api URL naming a version id.
	KindAPI
)

func (k SourceKind) String() string {
	switch k {
	case KindID:
		return "id"
	case KindSite:
		return "site"
	case KindAPI:
		return "api"
	default:
		return "unknown"
	}
}

// SourceRef is one parsed model reference. Build it with NewSourceRef.
type SourceRef struct {
	Kind     SourceKind
	Tokens   []string
	Original string
}

// NewSourceRef validates token arity for kind: one token for KindID and
// KindAPI, one or two for KindSite. Every token must be a decimal id.
func NewSourceRef(kind SourceKind, original string, tokens ...string) (SourceRef, error) {
	switch kind {
	case KindID, KindAPI:
		if len(tokens) != 1 {
			return SourceRef{}, fmt.Errorf("%s reference needs exactly 1 id, got %d", kind, len(tokens))
		}
	case KindSite:
		if len(tokens) != 1 && len(tokens) != 2 {
			return SourceRef{}, fmt.Errorf("site reference needs 1 or 2 ids, got %d", len(tokens))
		}
	default:
		return SourceRef{}, fmt.Errorf("unknown reference kind %d", kind)
	}
	for _, tok := range tokens {
		if _, err := strconv.ParseUint(tok, 10, 64); err != nil {
			return SourceRef{}, fmt.Errorf("invalid id %q in reference %q", tok, original)
		}
	}
	return SourceRef{Kind: kind, Tokens: append([]string(nil), tokens...), Original: original}, nil
}

func (r SourceRef) String() string {
	return r.Original
}

// ResolvedMetadata is everything the download stages need for one reference.
type ResolvedMetadata struct {
	ModelID     string
	VersionID   string
	Model       *Model
	Version     *ModelVersion
	DownloadURL string
	Images      []ModelImage
	Nsfw        bool
	Name        string
}

// Validate reports a missing model or version id.
func (m *ResolvedMetadata) Validate() error {
	if m.ModelID == "" || m.VersionID == "" {
		return fmt.Errorf("incomplete metadata: model id %q, version id %q", m.ModelID, m.VersionID)
	}
	if m.Model == nil || m.Version == nil {
		return fmt.Errorf("incomplete metadata for model %s version %s", m.ModelID, m.VersionID)
	}
	return nil
}

// DestinationPaths are the four directories produced by a layout.
type DestinationPaths struct {
	ModelDir    string
	MetadataDir string
	ImageDir    string
	PromptDir   string
}
