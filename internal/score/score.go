// Package score holds the in-memory representation of a shared musical
// project and the edit operations defined over it. The rest of the server
// treats a *Project as an opaque document: it is loaded once into the
// checkout pool, mutated under the project lock, and serialized back to
// storage on flush.
package score

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Project is a shared score under collaborative edit. Metadata carries at
// least the "owner" and "name" keys; clients may attach arbitrary extras.
type Project struct {
	ID       string            `json:"id"`
	Metadata map[string]string `json:"metadata"`
	Parts    []*Part           `json:"parts"`
}

// New creates a project with a fresh identifier and a single empty part
// carrying the default metronome mark.
func New(metadata map[string]string) *Project {
	if metadata == nil {
		metadata = map[string]string{}
	}
	return &Project{
		ID:       uuid.NewString(),
		Metadata: metadata,
		Parts:    []*Part{newPart(0)},
	}
}

// Owner returns the owning username recorded in the metadata.
func (p *Project) Owner() string { return p.Metadata["owner"] }

// Part returns the part at index, or ErrPartIndex.
func (p *Project) Part(index int) (*Part, error) {
	if index < 0 || index >= len(p.Parts) {
		return nil, fmt.Errorf("%w: %d of %d", ErrPartIndex, index, len(p.Parts))
	}
	return p.Parts[index], nil
}

// AddPart appends a new empty part.
func (p *Project) AddPart() {
	p.Parts = append(p.Parts, newPart(len(p.Parts)))
}

// UpdateMetadata sets a single metadata field.
func (p *Project) UpdateMetadata(field, value string) {
	p.Metadata[field] = value
}

// SwapParts exchanges the display positions of two parts. Purely cosmetic:
// only the order shown by clients changes.
func (p *Project) SwapParts(first, second int) error {
	if first < 0 || first >= len(p.Parts) || second < 0 || second >= len(p.Parts) {
		return fmt.Errorf("%w: swap %d,%d of %d", ErrPartIndex, first, second, len(p.Parts))
	}
	fst := p.Parts[first].DisplayIndex
	p.Parts[first].DisplayIndex = p.Parts[second].DisplayIndex
	p.Parts[second].DisplayIndex = fst
	return nil
}

// RemovePart deletes a part and closes the display-index gap it leaves.
func (p *Project) RemovePart(index int) error {
	if index < 0 || index >= len(p.Parts) {
		return fmt.Errorf("%w: %d of %d", ErrPartIndex, index, len(p.Parts))
	}
	removed := p.Parts[index].DisplayIndex
	p.Parts = append(p.Parts[:index], p.Parts[index+1:]...)
	for _, part := range p.Parts {
		if part.DisplayIndex > removed {
			part.DisplayIndex--
		}
	}
	return nil
}

// Serialize renders the project as two JSON documents, metadata and parts,
// stored as discrete fields so either can be inspected without the other.
func (p *Project) Serialize() (metadata, parts string, err error) {
	metaBytes, err := json.Marshal(p.Metadata)
	if err != nil {
		return "", "", fmt.Errorf("encoding metadata: %w", err)
	}
	partBytes, err := json.Marshal(p.Parts)
	if err != nil {
		return "", "", fmt.Errorf("encoding parts: %w", err)
	}
	return string(metaBytes), string(partBytes), nil
}

// Deserialize rebuilds a project from its stored fields.
func Deserialize(id, metadata, parts string) (*Project, error) {
	proj := &Project{ID: id}
	if err := json.Unmarshal([]byte(metadata), &proj.Metadata); err != nil {
		return nil, fmt.Errorf("decoding metadata: %w", err)
	}
	if err := json.Unmarshal([]byte(parts), &proj.Parts); err != nil {
		return nil, fmt.Errorf("decoding parts: %w", err)
	}
	if proj.Metadata == nil {
		proj.Metadata = map[string]string{}
	}
	return proj, nil
}
