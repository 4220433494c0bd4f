package decompose

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainsentry/audit-be/internal/api/domain"
)

// Metadata artifacts that ZIP tools leave behind and must never become records
const (
	macosMetadataPrefix = "__MACOSX/"
	hiddenFilePrefix    = "._"
	dsStoreName         = ".DS_Store"
)

// SourceFetcher resolves a contract address to its verified source code
type SourceFetcher interface {
	FetchSource(ctx context.Context, address string) (string, error)
}

// File is one uploaded multipart file part, already read into memory
type File struct {
	Name    string
	Content []byte
}

// Input is a raw submission before decomposition
type Input struct {
	Files     []File
	Addresses []string
}

// RecordInput is one decomposed unit of audit work, ready for persistence
type RecordInput struct {
	Name       string
	SourceType string
	SourceCode string
}

// Decomposer expands a heterogeneous submission into a flat record list
type Decomposer struct {
	logger    *slog.Logger
	resolver  SourceFetcher
	sourceExt string
}

// NewDecomposer creates a new Decomposer. sourceExt is the extension archive
// entries must carry to qualify (e.g. ".sol").
func NewDecomposer(resolver SourceFetcher, sourceExt string, logger *slog.Logger) *Decomposer {
	if sourceExt == "" {
		sourceExt = ".sol"
	}

	return &Decomposer{
		logger:    logger,
		resolver:  resolver,
		sourceExt: sourceExt,
	}
}

// Decompose expands the submission into an ordered record list. Any archive or
// address failure aborts the whole submission; nothing is persisted by this
// stage, so a failed call leaves no partial state behind.
func (d *Decomposer) Decompose(ctx context.Context, in Input) ([]RecordInput, error) {
	var records []RecordInput

	for _, f := range in.Files {
		if isArchive(f.Name) {
			entries, err := d.expandArchive(f)
			if err != nil {
				return nil, fmt.Errorf("failed to extract archive %q: %w", f.Name, err)
			}
			records = append(records, entries...)
			continue
		}

		records = append(records, RecordInput{
			Name:       f.Name,
			SourceType: domain.SourceTypeFile,
			SourceCode: string(f.Content),
		})
	}

	for _, addr := range in.Addresses {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}

		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("invalid contract address %q", addr)
		}

		source, err := d.resolver.FetchSource(ctx, addr)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve address %s: %w", addr, err)
		}

		records = append(records, RecordInput{
			Name:       addr,
			SourceType: domain.SourceTypeAddress,
			SourceCode: source,
		})
	}

	if len(records) == 0 {
		return nil, domain.ErrEmptySubmission
	}

	d.logger.Debug("Submission decomposed",
		slog.Int("files", len(in.Files)),
		slog.Int("addresses", len(in.Addresses)),
		slog.Int("records", len(records)),
	)

	return records, nil
}

// expandArchive walks a ZIP blob and emits one record per qualifying entry,
// preserving archive order
func (d *Decomposer) expandArchive(f File) ([]RecordInput, error) {
	reader, err := zip.NewReader(bytes.NewReader(f.Content), int64(len(f.Content)))
	if err != nil {
		return nil, err
	}

	var records []RecordInput
	for _, entry := range reader.File {
		if !d.qualifies(entry) {
			continue
		}

		rc, err := entry.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open entry %q: %w", entry.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read entry %q: %w", entry.Name, err)
		}

		records = append(records, RecordInput{
			Name:       entry.Name,
			SourceType: domain.SourceTypeFile,
			SourceCode: string(content),
		})
	}

	return records, nil
}

// qualifies filters out directories, non-source entries, and ZIP tool metadata
func (d *Decomposer) qualifies(entry *zip.File) bool {
	if entry.FileInfo().IsDir() {
		return false
	}
	name := entry.Name
	if !strings.HasSuffix(strings.ToLower(name), d.sourceExt) {
		return false
	}
	if strings.HasPrefix(name, macosMetadataPrefix) {
		return false
	}
	base := path.Base(name)
	if strings.HasPrefix(base, hiddenFilePrefix) || base == dsStoreName {
		return false
	}
	return true
}

// isArchive detects ZIP uploads by filename
func isArchive(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".zip")
}
